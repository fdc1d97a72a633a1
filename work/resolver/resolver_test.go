package resolver

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSurface records every interaction the resolver has with the
// presentation element.
type fakeSurface struct {
	src     string
	mime    string
	title   string
	errMsg  string
	hidden  bool
	srcSets int
	canPlay func(mime string) bool
	onError func()
}

func (s *fakeSurface) SetSource(url, mimeType string) {
	s.src = url
	s.mime = mimeType
	s.srcSets++
}

func (s *fakeSurface) CanPlay(mime string) bool {
	if s.canPlay == nil {
		return true
	}
	return s.canPlay(mime)
}

func (s *fakeSurface) OnError(fn func())     { s.onError = fn }
func (s *fakeSurface) SetTitle(title string) { s.title = title }
func (s *fakeSurface) ShowError(msg string)  { s.errMsg = msg }
func (s *fakeSurface) Hide()                 { s.hidden = true }

type fakeEngine struct {
	loaded    []string
	destroyed bool
	fatalFn   func()
}

func (e *fakeEngine) Load(url string)        { e.loaded = append(e.loaded, url) }
func (e *fakeEngine) OnFatalError(fn func()) { e.fatalFn = fn }
func (e *fakeEngine) Destroy()               { e.destroyed = true }

type fakeFallback struct {
	urls []string
}

func (f *fakeFallback) Present(url string) { f.urls = append(f.urls, url) }

func engineFactory(engines *[]*fakeEngine) EngineFactory {
	return func(Surface) Engine {
		e := &fakeEngine{}
		*engines = append(*engines, e)
		return e
	}
}

func TestResolve_StrategySelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		ref          Reference
		caps         Capabilities
		canPlay      func(string) bool
		wantStrategy Strategy
		wantState    State
		wantWorking  string
		wantSrc      string
		wantMime     string
		wantFallback string
		wantErrMsg   string
	}{
		{
			name:         "ts container always remuxes through the transcode endpoint",
			ref:          Reference{URL: "http://example.com/live/chan.ts"},
			caps:         Capabilities{PageSecure: true},
			wantStrategy: StrategyRemux,
			wantState:    StatePlaying,
			wantWorking:  "/transcode?url=" + url.QueryEscape("http://example.com/live/chan.ts"),
			wantSrc:      "/transcode?url=" + url.QueryEscape("http://example.com/live/chan.ts"),
			wantMime:     "video/mp4",
		},
		{
			name:         "insecure default container on secure page relays through proxy",
			ref:          Reference{URL: "http://example.com/a.mp4"},
			caps:         Capabilities{PageSecure: true},
			wantStrategy: StrategyProxiedDirect,
			wantState:    StatePlaying,
			wantWorking:  "/proxy?url=" + url.QueryEscape("http://example.com/a.mp4"),
			wantSrc:      "/proxy?url=" + url.QueryEscape("http://example.com/a.mp4"),
			wantMime:     "video/mp4",
		},
		{
			name:         "relative url plays directly with no proxy",
			ref:          Reference{URL: "/local/movie.mp4"},
			caps:         Capabilities{PageSecure: true},
			wantStrategy: StrategyDirectPlay,
			wantState:    StatePlaying,
			wantWorking:  "/local/movie.mp4",
			wantSrc:      "/local/movie.mp4",
			wantMime:     "video/mp4",
		},
		{
			name:         "webm maps to the webm mime type",
			ref:          Reference{URL: "https://cdn.example.com/clip.webm"},
			caps:         Capabilities{PageSecure: true},
			wantStrategy: StrategyDirectPlay,
			wantState:    StatePlaying,
			wantWorking:  "https://cdn.example.com/clip.webm",
			wantSrc:      "https://cdn.example.com/clip.webm",
			wantMime:     "video/webm",
		},
		{
			name:         "unsupported container fails without a playback attempt",
			ref:          Reference{URL: "http://example.com/a.mkv"},
			caps:         Capabilities{PageSecure: true},
			wantStrategy: StrategyUnsupported,
			wantState:    StateFailed,
			wantFallback: "http://example.com/a.mkv",
			wantErrMsg:   MsgUnsupported,
		},
		{
			name:         "mime rejection fails to manual fallback",
			ref:          Reference{URL: "/local/movie.avi"},
			caps:         Capabilities{},
			canPlay:      func(string) bool { return false },
			wantStrategy: StrategyDirectPlay,
			wantState:    StateFailed,
			wantWorking:  "/local/movie.avi",
			wantFallback: "/local/movie.avi",
			wantErrMsg:   MsgCannotPlay,
		},
		{
			name:         "manifest without engine or native support fails",
			ref:          Reference{URL: "https://cdn.example.com/live.m3u8"},
			caps:         Capabilities{PageSecure: true},
			wantStrategy: StrategyAdaptive,
			wantState:    StateFailed,
			wantWorking:  "https://cdn.example.com/live.m3u8",
			wantFallback: "https://cdn.example.com/live.m3u8",
			wantErrMsg:   MsgNoAdaptive,
		},
		{
			name:         "manifest with native support sets the source directly",
			ref:          Reference{URL: "https://cdn.example.com/live.m3u8"},
			caps:         Capabilities{PageSecure: true, NativeHLS: true},
			wantStrategy: StrategyAdaptive,
			wantState:    StatePlaying,
			wantWorking:  "https://cdn.example.com/live.m3u8",
			wantSrc:      "https://cdn.example.com/live.m3u8",
			wantMime:     "application/vnd.apple.mpegurl",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			surface := &fakeSurface{canPlay: tt.canPlay}
			fb := &fakeFallback{}
			r := New(surface, fb, nil, tt.caps)

			r.Resolve(tt.ref)

			assert.Equal(t, tt.wantStrategy, r.Strategy())
			assert.Equal(t, tt.wantState, r.State())
			assert.Equal(t, tt.wantWorking, r.WorkingURL())
			assert.Equal(t, tt.wantSrc, surface.src)
			assert.Equal(t, tt.wantMime, surface.mime)
			assert.Equal(t, tt.wantErrMsg, surface.errMsg)

			if tt.wantFallback != "" {
				require.Len(t, fb.urls, 1)
				assert.Equal(t, tt.wantFallback, fb.urls[0])
				assert.True(t, surface.hidden)
			} else {
				assert.Empty(t, fb.urls)
				assert.False(t, surface.hidden)
			}

			// unsupported containers must never touch the surface source
			if tt.wantStrategy == StrategyUnsupported {
				assert.Zero(t, surface.srcSets)
			}
		})
	}
}

func TestResolve_AdaptiveEngineLoadsProxiedManifest(t *testing.T) {
	t.Parallel()

	var engines []*fakeEngine
	surface := &fakeSurface{}
	fb := &fakeFallback{}
	r := New(surface, fb, engineFactory(&engines),
		Capabilities{PageSecure: true, EngineAvailable: true})

	r.Resolve(Reference{URL: "http://x/y.m3u8", Title: "Show"})

	require.Len(t, engines, 1)
	require.Len(t, engines[0].loaded, 1)
	assert.Equal(t, "/proxy?url=http%3A%2F%2Fx%2Fy.m3u8", engines[0].loaded[0])
	assert.Equal(t, StrategyAdaptive, r.Strategy())
	assert.Equal(t, StatePlaying, r.State())
	assert.Equal(t, "Show", surface.title)
	assert.Empty(t, fb.urls)

	// a fatal engine error degrades to the manual fallback with the
	// original insecure URL, never the proxied one
	require.NotNil(t, engines[0].fatalFn)
	engines[0].fatalFn()

	assert.Equal(t, StateFailed, r.State())
	assert.Equal(t, MsgAdaptiveFailed, surface.errMsg)
	require.Len(t, fb.urls, 1)
	assert.Equal(t, "http://x/y.m3u8", fb.urls[0])
}

func TestResolve_SupersessionTearsDownPreviousEngine(t *testing.T) {
	t.Parallel()

	var engines []*fakeEngine
	surface := &fakeSurface{}
	r := New(surface, &fakeFallback{}, engineFactory(&engines),
		Capabilities{EngineAvailable: true})

	r.Resolve(Reference{URL: "https://a/first.m3u8"})
	r.Resolve(Reference{URL: "https://a/second.m3u8"})

	require.Len(t, engines, 2)
	assert.True(t, engines[0].destroyed)
	assert.False(t, engines[1].destroyed)
	assert.Same(t, engines[1], r.Engine().(*fakeEngine))
}

func TestResolve_RemuxErrorDegradesWithOriginalURL(t *testing.T) {
	t.Parallel()

	surface := &fakeSurface{}
	fb := &fakeFallback{}
	r := New(surface, fb, nil, Capabilities{PageSecure: true})

	r.Resolve(Reference{URL: "http://example.com/chan.ts"})
	require.NotNil(t, surface.onError)

	surface.onError()

	assert.Equal(t, StateFailed, r.State())
	assert.Equal(t, MsgRemuxFailed, surface.errMsg)
	require.Len(t, fb.urls, 1)
	assert.Equal(t, "http://example.com/chan.ts", fb.urls[0])

	// a second error report after the terminal transition is ignored
	surface.onError()
	assert.Len(t, fb.urls, 1)
}

func TestResolve_UnsetReferenceFallsBackToPageQuery(t *testing.T) {
	t.Parallel()

	surface := &fakeSurface{}
	query := url.Values{"url": {"/local/movie.mp4"}, "title": {"Movie"}}
	r := New(surface, &fakeFallback{}, nil, Capabilities{}, WithPageQuery(query))

	r.Resolve(Reference{URL: "${url}", Title: "${title}"})

	assert.Equal(t, StatePlaying, r.State())
	assert.Equal(t, StrategyDirectPlay, r.Strategy())
	assert.Equal(t, "/local/movie.mp4", surface.src)
	assert.Equal(t, "Movie", surface.title)
}

func TestResolve_EmptyReferenceStaysIdle(t *testing.T) {
	t.Parallel()

	surface := &fakeSurface{}
	fb := &fakeFallback{}
	r := New(surface, fb, nil, Capabilities{})

	r.Resolve(Reference{})

	assert.Equal(t, StateIdle, r.State())
	assert.Zero(t, surface.srcSets)
	assert.Empty(t, surface.errMsg)
	assert.Empty(t, fb.urls)
}
