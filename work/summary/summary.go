package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"stream-front/work/client"
	"stream-front/work/logger"
	"stream-front/work/trigger"
)

// NoSummaryText is rendered when the metadata endpoint has no overview for a
// title.
const NoSummaryText = "No summary available."

// Summary is the metadata endpoint's response body.
type Summary struct {
	Overview string `json:"overview"`
}

// Fetcher retrieves the summary for a metadata id.
type Fetcher func(ctx context.Context, id string) (Summary, error)

// Popover is a displayed summary popover. The controller owns at most one at
// a time and disposes the previous occupant before installing a new one.
type Popover interface {
	Dispose()
}

// PopoverFactory creates and shows a popover with the given content.
type PopoverFactory func(content string) Popover

// Controller implements hover-triggered metadata popovers: a dwell delay
// before fetching, a single popover slot, and silent drops on fetch failure
// since the popover is a best-effort enhancement. Responses are sequence
// tagged so a fetch superseded by a newer hover (or by leaving the card)
// never installs its popover late.
type Controller struct {
	mu         sync.Mutex
	fetch      Fetcher
	newPopover PopoverFactory
	hover      *trigger.Deferred
	delay      time.Duration
	log        *logger.Logger

	current  Popover // single popover slot
	seq      uint64
	attached map[string]bool // per-card idempotence guard
}

// New creates a hover summary controller. delay is the dwell time before the
// fetch is issued.
func New(fetch Fetcher, factory PopoverFactory, delay time.Duration) *Controller {
	return &Controller{
		fetch:      fetch,
		newPopover: factory,
		hover:      trigger.New(),
		delay:      delay,
		attached:   make(map[string]bool),
		log:        logger.New(logger.GetLogLevel()).WithTag("summary"),
	}
}

// Attach binds the controller to a card, returning false when the card was
// already bound. Callers re-initializing after dynamic content insertion can
// invoke it unconditionally.
func (c *Controller) Attach(cardID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached[cardID] {
		return false
	}
	c.attached[cardID] = true
	return true
}

// HoverStart handles the pointer entering a card. Cards without a usable
// metadata id never trigger a fetch. A new hover supersedes any pending one.
func (c *Controller) HoverStart(id string) {
	if id == "" || id == "0" || id == "null" {
		return
	}

	c.hover.Schedule(c.delay, func() {
		c.show(id)
	})
}

// HoverEnd handles the pointer leaving a card: the pending trigger is
// cancelled and any displayed popover is disposed.
func (c *Controller) HoverEnd() {
	c.hover.Cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	if c.current != nil {
		c.current.Dispose()
		c.current = nil
	}
}

// show fetches the summary and installs the popover, disposing the previous
// occupant first. Failures drop silently.
func (c *Controller) show(id string) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	summary, err := c.fetch(context.Background(), id)
	if err != nil {
		c.log.Debug("summary fetch failed for id %s: %v", id, err)
		return
	}

	content := summary.Overview
	if content == "" {
		content = NoSummaryText
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// superseded by a newer hover or by leaving the card
	if seq != c.seq {
		c.log.Debug("dropping stale summary response for id %s", id)
		return
	}

	if c.current != nil {
		c.current.Dispose()
	}
	c.current = c.newPopover(content)
}

// NewHTTPFetcher builds a Fetcher against the /api/tmdb/summary endpoint.
func NewHTTPFetcher(baseURL string, httpClient *client.HeaderSettingClient) Fetcher {
	return func(ctx context.Context, id string) (Summary, error) {
		endpoint := baseURL + "/api/tmdb/summary?id=" + url.QueryEscape(id)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return Summary{}, err
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return Summary{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return Summary{}, fmt.Errorf("summary request returned status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Summary{}, err
		}

		var summary Summary
		if err := json.Unmarshal(body, &summary); err != nil {
			return Summary{}, err
		}
		return summary, nil
	}
}
