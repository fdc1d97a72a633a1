package handlers

import "stream-front/work/resolver"

// captureSurface records what the resolver would do to the page's video
// element so the decision can be rendered into the template. Error callbacks
// bound here never fire; asynchronous playback failures are the client
// scripts' concern.
type captureSurface struct {
	canPlay   bool
	title     string
	sourceURL string
	mimeType  string
	errorMsg  string
	hidden    bool
	engine    *captureEngine
}

func (s *captureSurface) SetSource(url, mimeType string) {
	s.sourceURL = url
	s.mimeType = mimeType
}

func (s *captureSurface) CanPlay(mimeType string) bool { return s.canPlay }
func (s *captureSurface) OnError(fn func())            {}
func (s *captureSurface) SetTitle(title string)        { s.title = title }
func (s *captureSurface) ShowError(msg string)         { s.errorMsg = msg }
func (s *captureSurface) Hide()                        { s.hidden = true }

// captureEngine stands in for the client-side adaptive engine during
// server-side resolution, recording the manifest URL the page should load.
type captureEngine struct {
	manifestURL string
}

func (e *captureEngine) Load(url string)        { e.manifestURL = url }
func (e *captureEngine) OnFatalError(fn func()) {}
func (e *captureEngine) Destroy()               {}

// captureEngineFactory attaches the created engine to the surface so the page
// handler can read it back after resolution.
func captureEngineFactory(s *captureSurface) resolver.EngineFactory {
	return func(resolver.Surface) resolver.Engine {
		engine := &captureEngine{}
		s.engine = engine
		return engine
	}
}

// captureFallback records the URL handed to the manual fallback on terminal
// failure.
type captureFallback struct {
	url string
}

func (f *captureFallback) Present(url string) { f.url = url }
