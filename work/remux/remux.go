package remux

import (
	"context"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"syscall"

	"stream-front/work/config"
	"stream-front/work/logger"
	"stream-front/work/metrics"
	"stream-front/work/utils"
)

// Remuxer rewraps MPEG-TS streams into fragmented MP4 on the fly so browsers
// can play them in a plain video element. One ffmpeg process per request,
// piped straight to the response.
type Remuxer struct {
	cfg *config.Config
	log *logger.Logger
}

// New creates a remuxer using the configured ffmpeg binary and arguments.
func New(cfg *config.Config) *Remuxer {
	return &Remuxer{
		cfg: cfg,
		log: logger.New(logger.GetLogLevel()).WithTag("remux"),
	}
}

// buildArgs assembles the ffmpeg argument list: configured pre-input flags,
// the source URL, configured pre-output flags, then fragmented MP4 to stdout.
func (r *Remuxer) buildArgs(streamURL string) []string {
	args := []string{}
	args = append(args, r.cfg.FFmpegPreInput...)
	args = append(args, "-i", streamURL)
	args = append(args, r.cfg.FFmpegPreOutput...)
	if !hasMovflags(r.cfg.FFmpegPreOutput) {
		args = append(args, "-movflags", "frag_keyframe+empty_moov")
	}
	args = append(args, "-f", "mp4", "-")
	return args
}

func hasMovflags(preOutput []string) bool {
	for _, arg := range preOutput {
		if arg == "-movflags" {
			return true
		}
	}
	return false
}

// Serve runs ffmpeg against the stream URL and copies its output to the
// response until the stream ends or the client disconnects.
func (r *Remuxer) Serve(ctx context.Context, w http.ResponseWriter, streamURL string) {
	args := r.buildArgs(streamURL)
	r.log.Debug("starting remux for %s: %s %s",
		utils.LogURL(r.cfg, streamURL), r.cfg.FFmpegPath, strings.Join(args, " "))

	cmdCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, r.cfg.FFmpegPath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.log.Error("failed to create stdout pipe: %v", err)
		http.Error(w, "Transcoder unavailable", http.StatusBadGateway)
		return
	}

	if err := cmd.Start(); err != nil {
		r.log.Error("failed to start %s: %v", r.cfg.FFmpegPath, err)
		http.Error(w, "Transcoder unavailable", http.StatusBadGateway)
		return
	}

	metrics.RemuxSessions.Inc()
	defer metrics.RemuxSessions.Dec()

	// kill the whole process group; ffmpeg forks on some builds
	defer func() {
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			cmd.Wait()
		}
	}()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)

	var totalBytes int64
	buffer := make([]byte, 32*1024)

	for {
		select {
		case <-ctx.Done():
			r.log.Debug("client disconnected after %d bytes", totalBytes)
			return
		default:
		}

		n, readErr := stdout.Read(buffer)
		if n > 0 {
			if _, writeErr := w.Write(buffer[:n]); writeErr != nil {
				r.log.Debug("client write failed after %d bytes: %v", totalBytes, writeErr)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			totalBytes += int64(n)
			metrics.BytesTransferred.WithLabelValues("transcode").Add(float64(n))
		}

		if readErr != nil {
			if readErr == io.EOF {
				r.log.Debug("remux finished for %s: %d bytes", utils.LogURL(r.cfg, streamURL), totalBytes)
				return
			}
			r.log.Warn("remux read error for %s: %v", utils.LogURL(r.cfg, streamURL), readErr)
			return
		}
	}
}
