package handlers

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"

	"stream-front/work/catalog"
	"stream-front/work/config"
	"stream-front/work/fallback"
	"stream-front/work/logger"
	"stream-front/work/metrics"
	"stream-front/work/relay"
	"stream-front/work/remux"
	"stream-front/work/resolver"
	"stream-front/work/tmdb"
)

//go:embed templates/*.html
var templateFS embed.FS

// searchResultLimit caps one search response; the as-you-type flow never
// needs a full catalog dump.
const searchResultLimit = 50

// Handlers owns every HTTP endpoint of the front end and the services they
// delegate to.
type Handlers struct {
	cfg       *config.Config
	catalog   *catalog.Catalog
	summaries *tmdb.Service
	remuxer   *remux.Remuxer
	relay     *relay.Relay
	templates *template.Template
	log       *logger.Logger
}

// New wires the endpoint handlers to their backing services and parses the
// embedded page templates.
func New(cfg *config.Config, cat *catalog.Catalog, summaries *tmdb.Service, remuxer *remux.Remuxer, rel *relay.Relay) (*Handlers, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Handlers{
		cfg:       cfg,
		catalog:   cat,
		summaries: summaries,
		remuxer:   remuxer,
		relay:     rel,
		templates: templates,
		log:       logger.New(logger.GetLogLevel()).WithTag("handlers"),
	}, nil
}

// playerView is the template model for the player page: the resolved playback
// decision plus the widget timing windows the page scripts read.
type playerView struct {
	Title        string
	Strategy     string
	State        string
	SourceURL    string
	MimeType     string
	UseEngine    bool
	ManifestURL  string
	ErrorMessage string
	Fallback     *fallbackView

	SearchMinChars   int
	SearchDebounceMS int64
	HoverDelayMS     int64
	CopyResetMS      int64
}

// fallbackView carries the manual fallback block, rendered only after a
// terminal playback failure.
type fallbackView struct {
	URL          string
	CopyLabel    string
	ConfirmLabel string
	HelpText     string
	PlaylistHref string
}

// PlayerPage resolves the requested stream server-side against the client's
// capabilities and renders the player with the decision baked in.
func (h *Handlers) PlayerPage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	caps := resolver.DetectCapabilities(r.UserAgent(), h.cfg.PageSecure, h.cfg.HLSEngineAvailable)

	view := &captureSurface{canPlay: true}
	fb := &captureFallback{}
	res := resolver.New(view, fb, captureEngineFactory(view), caps, resolver.WithPageQuery(query))
	res.Resolve(resolver.Reference{URL: query.Get("url"), Title: query.Get("title")})

	data := playerView{
		Title:            view.title,
		Strategy:         string(res.Strategy()),
		State:            string(res.State()),
		SourceURL:        view.sourceURL,
		MimeType:         view.mimeType,
		ErrorMessage:     view.errorMsg,
		SearchMinChars:   h.cfg.SearchMinChars,
		SearchDebounceMS: h.cfg.SearchDebounce.Milliseconds(),
		HoverDelayMS:     h.cfg.HoverDelay.Milliseconds(),
		CopyResetMS:      h.cfg.CopyConfirmReset.Milliseconds(),
	}
	if view.engine != nil {
		data.UseEngine = true
		data.ManifestURL = view.engine.manifestURL
	}
	if res.State() == resolver.StateFailed {
		data.Fallback = &fallbackView{
			URL:          fb.url,
			CopyLabel:    fallback.CopyLabelDefault,
			ConfirmLabel: fallback.CopyLabelConfirm,
			HelpText:     fallback.HelpText,
			PlaylistHref: "/playlist.m3u?url=" + escapeQuery(fb.url),
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "player.html", data); err != nil {
		h.log.Error("player template failed: %v", err)
	}
}

// SearchTitles serves the as-you-type search endpoint: an HTML fragment of
// matching catalog titles ready for injection into the results region.
func (h *Handlers) SearchTitles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	metrics.SearchQueries.Inc()

	titles, err := h.catalog.Search(r.Context(), query, searchResultLimit)
	if err != nil {
		h.log.Error("title search failed for %q: %v", query, err)
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "results.html", titles); err != nil {
		h.log.Error("results template failed: %v", err)
	}
}

// Summary serves the metadata popover endpoint as JSON.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" || id == "0" || id == "null" {
		http.Error(w, "Missing id", http.StatusBadRequest)
		return
	}

	overview, err := h.summaries.Overview(r.Context(), id)
	if err != nil {
		h.log.Warn("summary lookup failed for id %s: %v", id, err)
		http.Error(w, "Summary unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"overview": overview})
}

// Transcode remuxes a transport stream to fragmented MP4 and pipes it to the
// client.
func (h *Handlers) Transcode(w http.ResponseWriter, r *http.Request) {
	streamURL := r.URL.Query().Get("url")
	if streamURL == "" {
		http.Error(w, "Missing url", http.StatusBadRequest)
		return
	}
	h.remuxer.Serve(r.Context(), w, streamURL)
}

// Proxy relays a stream through the application origin byte for byte.
func (h *Handlers) Proxy(w http.ResponseWriter, r *http.Request) {
	streamURL := r.URL.Query().Get("url")
	if streamURL == "" {
		http.Error(w, "Missing url", http.StatusBadRequest)
		return
	}
	h.relay.Serve(r.Context(), w, r, streamURL)
}

// PlaylistExport serves the single-entry playlist download for a stream URL,
// named so external players open it directly.
func (h *Handlers) PlaylistExport(w http.ResponseWriter, r *http.Request) {
	streamURL := r.URL.Query().Get("url")
	if streamURL == "" {
		http.Error(w, "Missing url", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", fallback.PlaylistMimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+fallback.PlaylistFilename+`"`)
	w.Write(fallback.PlaylistBytes(streamURL))
}

func escapeQuery(s string) string {
	return template.URLQueryEscaper(s)
}
