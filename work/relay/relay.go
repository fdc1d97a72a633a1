package relay

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"stream-front/work/client"
	"stream-front/work/config"
	"stream-front/work/logger"
	"stream-front/work/metrics"
	"stream-front/work/utils"
)

// Relay forwards a stream through the application origin byte for byte. It
// exists to lift http:// streams onto the page's https origin so the browser
// does not block them as mixed content, and to keep provider credentials in
// URLs off the client network tab.
type Relay struct {
	cfg        *config.Config
	httpClient *client.HeaderSettingClient
	log        *logger.Logger
}

// New creates a relay over the shared outbound client.
func New(cfg *config.Config, httpClient *client.HeaderSettingClient) *Relay {
	return &Relay{
		cfg:        cfg,
		httpClient: httpClient,
		log:        logger.New(logger.GetLogLevel()).WithTag("relay"),
	}
}

// forwarded end to end so seeking keeps working through the relay
var passthroughRequestHeaders = []string{"Range", "Accept", "Accept-Encoding"}

var passthroughResponseHeaders = []string{
	"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges", "Cache-Control",
}

// Serve fetches the target URL and copies the response to the client,
// streaming as bytes arrive.
func (r *Relay) Serve(ctx context.Context, w http.ResponseWriter, req *http.Request, target string) {
	if !validTarget(target) {
		r.log.Warn("rejected relay target %q", utils.LogURL(r.cfg, target))
		http.Error(w, "Invalid stream URL", http.StatusBadRequest)
		return
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		http.Error(w, "Invalid stream URL", http.StatusBadRequest)
		return
	}
	for _, header := range passthroughRequestHeaders {
		if value := req.Header.Get(header); value != "" {
			upstreamReq.Header.Set(header, value)
		}
	}

	resp, err := r.httpClient.Do(upstreamReq)
	if err != nil {
		r.log.Warn("upstream fetch failed for %s: %v", utils.LogURL(r.cfg, target), err)
		http.Error(w, "Upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for _, header := range passthroughResponseHeaders {
		if value := resp.Header.Get(header); value != "" {
			w.Header().Set(header, value)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)

	var totalBytes int64
	buffer := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if _, writeErr := w.Write(buffer[:n]); writeErr != nil {
				r.log.Debug("client write failed after %d bytes: %v", totalBytes, writeErr)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			totalBytes += int64(n)
			metrics.BytesTransferred.WithLabelValues("proxy").Add(float64(n))
		}
		if readErr != nil {
			if readErr != io.EOF && ctx.Err() == nil {
				r.log.Warn("upstream read error for %s: %v", utils.LogURL(r.cfg, target), readErr)
			}
			return
		}
	}
}

// validTarget accepts only absolute http(s) URLs with a host.
func validTarget(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
