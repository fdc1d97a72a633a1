package resolver

import (
	"net/url"

	"stream-front/work/logger"
	"stream-front/work/metrics"
)

// Strategy represents the closed set of delivery strategies the resolver can
// select for a stream reference. Exactly one strategy is chosen per reference
// and it is never re-chosen during a session: a failed strategy degrades to the
// manual fallback instead of cascading to the next one.
type Strategy string

const (
	StrategyRemux         Strategy = "remux"          // transport-stream container, server-side remux via /transcode
	StrategyProxiedDirect Strategy = "proxied_direct" // insecure URL rewritten through the same-origin /proxy relay
	StrategyDirectPlay    Strategy = "direct_play"    // URL used as-is
	StrategyAdaptive      Strategy = "adaptive"       // manifest-based delivery through an adaptive engine
	StrategyUnsupported   Strategy = "unsupported"    // container known to be unplayable in-browser
)

// State is the lifecycle of a single resolution attempt. Failed is terminal
// for the session and always hands off to the manual fallback presenter.
type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving"
	StatePlaying   State = "playing"
	StateFailed    State = "failed"
)

// User-facing failure messages. Every resolver failure surfaces one of these;
// there are no silent failures on the playback path.
const (
	MsgRemuxFailed    = "TS stream could not be played/transcoded. The server might be unable to reach the stream or the transcoder failed."
	MsgUnsupported    = "MKV/HEVC/4K files are not supported in browsers. Use MP4 (H.264/AAC) or HLS (.m3u8)."
	MsgAdaptiveFailed = "HLS playback failed. Please check the stream."
	MsgNoAdaptive     = "Browser does not support HLS. Use an external player instead."
	MsgCannotPlay     = "Browser cannot play this file type. Use an external player instead."
)

// failure causes used as metric labels
const (
	causeRemuxError    = "remux_error"
	causeUnsupported   = "unsupported_container"
	causeAdaptiveFatal = "adaptive_fatal"
	causeNoAdaptive    = "adaptive_unavailable"
	causeMimeRejected  = "mime_rejected"
)

// Reference identifies a piece of media to play: the stream URL plus an
// optional, purely presentational title.
type Reference struct {
	URL   string
	Title string
}

// Surface is the video presentation element the resolver drives, together with
// its auxiliary UI (title display, error display). Implementations are not
// required to be safe for concurrent use; the resolver calls them from the
// goroutine that invoked Resolve, and error callbacks fire from whoever owns
// the playback pipeline.
type Surface interface {
	SetSource(url, mimeType string) // point the element at a working URL with the given MIME type
	CanPlay(mimeType string) bool   // whether the runtime reports it can play the MIME type
	OnError(fn func())              // bind a playback-error callback; nil clears it
	SetTitle(title string)          // update the title display
	ShowError(msg string)           // surface a user-facing failure message
	Hide()                          // hide the presentation element
}

// Engine is a client-side adaptive-streaming engine instance. The resolver
// owns at most one engine at a time; installing a new one always destroys the
// previous occupant first.
type Engine interface {
	Load(url string)        // begin loading the manifest at url
	OnFatalError(fn func()) // bind the fatal-error callback; nil clears it
	Destroy()               // tear down the engine and release the media element
}

// EngineFactory creates a fresh adaptive engine attached to the surface.
type EngineFactory func(Surface) Engine

// FallbackPresenter receives the original, unmodified stream URL whenever
// resolution fails terminally.
type FallbackPresenter interface {
	Present(url string)
}

// Resolver drives a presentation surface through a bounded set of delivery
// strategies until playback starts or the reference is handed to the manual
// fallback. One resolver exists per player instance.
//
// Strategy selection is one-shot: a failed adaptive load does not retry direct
// play. That matches the behavior this front end has always had; change it
// deliberately or not at all.
type Resolver struct {
	surface   Surface
	fallback  FallbackPresenter
	newEngine EngineFactory
	caps      Capabilities
	pageQuery url.Values
	log       *logger.Logger

	engine      Engine // single adaptive-engine slot, superseded on re-resolve
	state       State
	strategy    Strategy
	originalURL string
	workingURL  string
}

// Option customizes a Resolver at construction time.
type Option func(*Resolver)

// WithPageQuery supplies the page's query parameters, used as the fallback
// source for url/title when the injected reference is unset.
func WithPageQuery(q url.Values) Option {
	return func(r *Resolver) { r.pageQuery = q }
}

// WithLogger replaces the default tagged logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// New creates a resolver bound to a surface, a fallback presenter, an engine
// factory and the runtime capabilities of the requesting client. The factory
// may be nil when no adaptive engine is available.
func New(surface Surface, fb FallbackPresenter, factory EngineFactory, caps Capabilities, opts ...Option) *Resolver {
	r := &Resolver{
		surface:   surface,
		fallback:  fb,
		newEngine: factory,
		caps:      caps,
		state:     StateIdle,
		log:       logger.New(logger.GetLogLevel()).WithTag("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the lifecycle state of the current resolution attempt.
func (r *Resolver) State() State { return r.state }

// Strategy returns the delivery strategy selected for the current reference.
func (r *Resolver) Strategy() Strategy { return r.strategy }

// WorkingURL returns the URL actually handed to the delivery path. For remux
// and proxied strategies this differs from the original reference URL.
func (r *Resolver) WorkingURL() string { return r.workingURL }

// OriginalURL returns the unmodified reference URL. This is what the manual
// fallback always receives, never a rewritten working URL.
func (r *Resolver) OriginalURL() string { return r.originalURL }

// Engine returns the currently attached adaptive engine, or nil.
func (r *Resolver) Engine() Engine { return r.engine }

// Resolve classifies the reference, selects a delivery strategy, and drives
// the surface accordingly. Calling it again with a new reference first tears
// down any previously attached adaptive engine, so the last call always wins.
func (r *Resolver) Resolve(ref Reference) {

	// supersession: dispose the previous engine before reclassifying
	if r.engine != nil {
		r.engine.Destroy()
		r.engine = nil
	}
	r.state = StateIdle
	r.strategy = ""
	r.originalURL = ""
	r.workingURL = ""
	r.surface.OnError(nil)

	ref = Normalize(ref, r.pageQuery)

	// an empty player is a valid idle state, not an error
	if ref.URL == "" {
		r.log.Debug("no stream reference; staying idle")
		return
	}

	r.state = StateResolving
	r.originalURL = ref.URL

	if ref.Title != "" {
		r.surface.SetTitle(ref.Title)
	}

	cls := Classify(ref.URL, r.caps.PageSecure)
	r.log.Debug("classified reference: ext=%q mixed=%v", cls.Ext, cls.MixedContent)

	// Logic flow:
	//   1. TS -> remux. The server fetches the stream itself, so mixed
	//      content is never a concern on this path.
	//   2. Everything else -> mixed-content check -> proxy if needed.
	if cls.Ext == "ts" {
		r.resolveRemux(ref)
		return
	}

	working := ref.URL
	mixed := cls.MixedContent
	if mixed {
		r.log.Debug("mixed content detected, relaying through proxy")
		working = ProxyURL(ref.URL)
	}

	switch {
	case unsupportedExts[cls.Ext]:
		r.choose(StrategyUnsupported, "")
		r.fail(causeUnsupported, MsgUnsupported)

	case cls.Ext == "m3u8":
		r.resolveAdaptive(working)

	default:
		r.resolveDirect(cls.Ext, working, mixed)
	}
}

// resolveRemux routes a transport-stream container through the server-side
// transcode endpoint.
func (r *Resolver) resolveRemux(ref Reference) {
	r.choose(StrategyRemux, TranscodeURL(ref.URL))
	r.surface.SetSource(r.workingURL, "video/mp4")
	r.surface.OnError(func() {
		r.fail(causeRemuxError, MsgRemuxFailed)
	})
	r.state = StatePlaying
}

// resolveAdaptive handles manifest-based delivery. Preference order: engine,
// native manifest support, then failure.
func (r *Resolver) resolveAdaptive(working string) {
	switch {
	case r.caps.EngineAvailable && r.newEngine != nil:
		r.choose(StrategyAdaptive, working)
		engine := r.newEngine(r.surface)
		r.engine = engine
		engine.OnFatalError(func() {
			r.fail(causeAdaptiveFatal, MsgAdaptiveFailed)
		})
		engine.Load(working)
		r.state = StatePlaying

	case r.caps.NativeHLS:
		r.choose(StrategyAdaptive, working)
		r.surface.SetSource(working, "application/vnd.apple.mpegurl")
		r.state = StatePlaying

	default:
		r.choose(StrategyAdaptive, working)
		r.fail(causeNoAdaptive, MsgNoAdaptive)
	}
}

// resolveDirect handles default containers. MIME typing here is a coarse
// heuristic (webm, else mp4), not container sniffing.
func (r *Resolver) resolveDirect(ext, working string, mixed bool) {
	strategy := StrategyDirectPlay
	if mixed {
		strategy = StrategyProxiedDirect
	}
	r.choose(strategy, working)

	mime := "video/mp4"
	if ext == "webm" {
		mime = "video/webm"
	}

	if !r.surface.CanPlay(mime) {
		r.fail(causeMimeRejected, MsgCannotPlay)
		return
	}

	r.surface.SetSource(working, mime)
	r.surface.OnError(nil)
	r.state = StatePlaying
}

// choose records the chosen strategy and working URL and bumps the decision
// counter.
func (r *Resolver) choose(s Strategy, working string) {
	r.strategy = s
	r.workingURL = working
	metrics.StrategyDecisions.WithLabelValues(string(s)).Inc()
}

// fail transitions to the terminal Failed state: surface the message, hide the
// presentation element, and hand the original URL to the manual fallback.
// Late callbacks after a failure are ignored.
func (r *Resolver) fail(cause, msg string) {
	if r.state == StateFailed {
		return
	}
	r.state = StateFailed
	metrics.PlaybackFailures.WithLabelValues(cause).Inc()
	r.log.Warn("playback failed (%s): %s", cause, msg)

	r.surface.ShowError(msg)
	r.surface.Hide()
	if r.fallback != nil {
		r.fallback.Present(r.originalURL)
	}
}

// TranscodeURL builds the same-origin transcoding endpoint URL for a stream,
// URL-encoding the original exactly once.
func TranscodeURL(streamURL string) string {
	return "/transcode?url=" + url.QueryEscape(streamURL)
}

// ProxyURL builds the same-origin relay endpoint URL for a stream,
// URL-encoding the original exactly once.
func ProxyURL(streamURL string) string {
	return "/proxy?url=" + url.QueryEscape(streamURL)
}

// unsupportedExts is the closed set of containers known to be unplayable
// in-browser regardless of transport.
var unsupportedExts = map[string]bool{
	"mkv":  true,
	"hevc": true,
}
