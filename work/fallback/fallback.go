package fallback

import (
	"sync"
	"time"

	"stream-front/work/logger"
)

// Playlist export constants. The exported file is a minimal single-entry
// playlist any external player opens directly.
const (
	PlaylistFilename = "stream.m3u"
	PlaylistMimeType = "audio/x-mpegurl"
)

// Copy action labels. The confirmation label is shown transiently after a
// successful clipboard write and then reverts.
const (
	CopyLabelDefault = "Copy URL for VLC"
	CopyLabelConfirm = "Copied! Paste in VLC → Media → Open Network Stream"

	HelpText = "If the video does not play in your browser, copy the URL and paste it in VLC: Media → Open Network Stream. Or download the .m3u file and open it with VLC."
)

// Clipboard abstracts the system clipboard the copy action writes to.
type Clipboard interface {
	WriteText(text string) error
}

// Presenter renders the manual playback fallback: a copy-to-clipboard action
// for the raw stream URL and a downloadable single-entry playlist, both built
// client-side with no network round-trip. Presenting a new URL fully replaces
// prior contents; there is never an accumulation of stale actions.
//
// The confirmation revert timer is a single slot: re-presenting or re-copying
// cancels the pending revert before scheduling a new one, so the last action
// always wins.
type Presenter struct {
	mu         sync.Mutex
	clipboard  Clipboard
	resetAfter time.Duration
	log        *logger.Logger

	url          string
	copyLabel    string
	confirmTimer *time.Timer // single revert-timer slot
}

// New creates a presenter. resetAfter controls how long the copy confirmation
// stays up before reverting.
func New(clipboard Clipboard, resetAfter time.Duration) *Presenter {
	return &Presenter{
		clipboard:  clipboard,
		resetAfter: resetAfter,
		copyLabel:  CopyLabelDefault,
		log:        logger.New(logger.GetLogLevel()).WithTag("fallback"),
	}
}

// Present installs the fallback UI for the given URL, replacing any prior
// contents. The URL must be the original stream location; callers never hand
// a transcoded or proxied working URL here.
func (p *Presenter) Present(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.confirmTimer != nil {
		p.confirmTimer.Stop()
		p.confirmTimer = nil
	}
	p.url = url
	p.copyLabel = CopyLabelDefault
	p.log.Debug("manual fallback presented")
}

// URL returns the stream URL currently offered by the fallback.
func (p *Presenter) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// CopyLabel returns the current label of the copy action.
func (p *Presenter) CopyLabel() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyLabel
}

// Copy writes the presented URL to the clipboard and shows the confirmation
// label, scheduling a revert to the default label. A pending revert from an
// earlier copy is cancelled first.
func (p *Presenter) Copy() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.clipboard.WriteText(p.url); err != nil {
		p.log.Warn("clipboard write failed: %v", err)
		return err
	}

	p.copyLabel = CopyLabelConfirm
	if p.confirmTimer != nil {
		p.confirmTimer.Stop()
	}
	p.confirmTimer = time.AfterFunc(p.resetAfter, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.copyLabel = CopyLabelDefault
	})
	return nil
}

// Playlist returns the downloadable playlist bytes for the presented URL: the
// format header line followed by the raw URL.
func (p *Presenter) Playlist() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PlaylistBytes(p.url)
}

// PlaylistBytes builds a minimal single-entry playlist for a stream URL.
func PlaylistBytes(url string) []byte {
	return []byte("#EXTM3U\n" + url + "\n")
}
