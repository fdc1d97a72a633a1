package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"stream-front/work/client"
	"stream-front/work/logger"
	"stream-front/work/trigger"
)

// Fetcher performs a title search and returns the HTML fragment to inject.
type Fetcher func(ctx context.Context, query string) (string, error)

// Region is the page area search results are rendered into.
type Region interface {
	HTML() string
	SetHTML(html string)
}

// Controller implements search-as-you-type over a page region: input events
// are debounced, queries below the minimum length restore the pre-search
// snapshot instead of hitting the endpoint, and fetch failures fail open by
// restoring prior content. Each request carries a sequence number so a stale
// response that lands after a newer search started is discarded instead of
// overwriting the region.
type Controller struct {
	mu       sync.Mutex
	region   Region
	fetch    Fetcher
	debounce *trigger.Deferred
	delay    time.Duration
	minChars int
	log      *logger.Logger

	snapshot  *string // pre-search region contents; nil when not searching
	lastQuery string
	seq       uint64 // guards against stale responses
	attached  bool
}

// New creates a search controller over a region. delay is the debounce quiet
// window; minChars is the minimum query length that triggers a request.
func New(region Region, fetch Fetcher, delay time.Duration, minChars int) *Controller {
	return &Controller{
		region:   region,
		fetch:    fetch,
		debounce: trigger.New(),
		delay:    delay,
		minChars: minChars,
		log:      logger.New(logger.GetLogLevel()).WithTag("search"),
	}
}

// Attach marks the controller bound to its region. It is idempotent: callers
// that re-initialize widgets after dynamic content insertion can invoke it
// unconditionally, and only the first call reports true.
func (c *Controller) Attach() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		return false
	}
	c.attached = true
	return true
}

// Input handles a keystroke's new text value, superseding any pending search.
func (c *Controller) Input(text string) {
	c.debounce.Schedule(c.delay, func() {
		c.perform(text)
	})
}

// Submit searches immediately (the enter key), cancelling the debounce.
func (c *Controller) Submit(text string) {
	c.debounce.Cancel()
	c.perform(text)
}

// Dismiss cancels any pending search and restores the pre-search snapshot
// (the escape key).
func (c *Controller) Dismiss() {
	c.debounce.Cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	if c.snapshot != nil {
		c.region.SetHTML(*c.snapshot)
		c.snapshot = nil
	}
	c.lastQuery = ""
}

// perform runs one search: short queries restore the snapshot, real queries
// hit the endpoint and replace the region on success.
func (c *Controller) perform(query string) {
	normalized := strings.TrimSpace(query)

	c.mu.Lock()
	if utf8.RuneCountInString(normalized) < c.minChars {
		// leaving search mode restores what the region showed before
		if utf8.RuneCountInString(c.lastQuery) >= c.minChars && c.snapshot != nil {
			c.region.SetHTML(*c.snapshot)
			c.snapshot = nil
		}
		c.lastQuery = normalized
		c.seq++
		c.mu.Unlock()
		return
	}

	if c.snapshot == nil {
		snap := c.region.HTML()
		c.snapshot = &snap
	}
	c.lastQuery = normalized
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	html, err := c.fetch(context.Background(), normalized)

	c.mu.Lock()
	defer c.mu.Unlock()

	// a newer search superseded this one while it was in flight
	if seq != c.seq {
		c.log.Debug("dropping stale search response for %q", normalized)
		return
	}

	if err != nil {
		c.log.Warn("search fetch failed for %q: %v", normalized, err)
		if c.snapshot != nil {
			c.region.SetHTML(*c.snapshot)
			c.snapshot = nil
		}
		return
	}

	c.region.SetHTML(html)
}

// NewHTTPFetcher builds a Fetcher against the /searchTitles endpoint, with
// the query trimmed by the controller and URL-encoded exactly once here.
func NewHTTPFetcher(baseURL string, httpClient *client.HeaderSettingClient) Fetcher {
	return func(ctx context.Context, query string) (string, error) {
		endpoint := baseURL + "/searchTitles?query=" + url.QueryEscape(query)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", err
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("search request returned status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		return string(body), nil
	}
}
