package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"stream-front/work/client"
	"stream-front/work/config"
	"stream-front/work/logger"
	"stream-front/work/utils"

	regexp "github.com/grafana/regexp"
	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// Catalog imports titles from the configured sources into the store and
// answers title searches. Imports run concurrently on a shared worker pool;
// a URL-keyed index deduplicates titles that appear in more than one source.
type Catalog struct {
	cfg        *config.Config
	httpClient *client.HeaderSettingClient
	store      *Store
	pool       *ants.Pool
	log        *logger.Logger

	seen        *xsync.MapOf[string, struct{}] // URL dedupe index, reset per import run
	counts      *xsync.MapOf[string, int64]    // imported title count per source
	lastImport  time.Time
	lastImportM sync.Mutex
}

// New creates a catalog over the given store, sharing the application worker
// pool for concurrent source imports.
func New(cfg *config.Config, httpClient *client.HeaderSettingClient, store *Store, pool *ants.Pool) *Catalog {
	return &Catalog{
		cfg:        cfg,
		httpClient: httpClient,
		store:      store,
		pool:       pool,
		seen:       xsync.NewMapOf[string, struct{}](),
		counts:     xsync.NewMapOf[string, int64](),
		log:        logger.New(logger.GetLogLevel()).WithTag("catalog"),
	}
}

// SetConfig swaps the configuration used for subsequent imports. Called on
// graceful reload; in-flight imports keep the config they started with.
func (c *Catalog) SetConfig(cfg *config.Config) {
	c.cfg = cfg
}

// ImportAll imports every configured source, in priority order for dedupe
// purposes but concurrently on the worker pool. A failing source is logged
// and skipped so one bad provider cannot empty the catalog.
func (c *Catalog) ImportAll(ctx context.Context) {
	c.seen.Clear()

	sources := c.cfg.GetSourcesByOrder()
	var wg sync.WaitGroup

	for i := range sources {
		source := sources[i]
		wg.Add(1)
		err := c.pool.Submit(func() {
			defer wg.Done()
			if err := c.importSource(ctx, &source); err != nil {
				c.log.Error("import failed for source %s: %v", source.Name, err)
			}
		})
		if err != nil {
			wg.Done()
			c.log.Error("failed to schedule import for source %s: %v", source.Name, err)
		}
	}

	wg.Wait()

	c.lastImportM.Lock()
	c.lastImport = time.Now()
	c.lastImportM.Unlock()

	if total, err := c.store.Count(ctx); err == nil {
		c.log.Info("catalog import complete: %d titles", total)
	}
}

// importSource imports one source end to end: fetch, parse, filter, dedupe,
// store.
func (c *Catalog) importSource(ctx context.Context, source *config.SourceConfig) error {
	c.log.Debug("importing source %s from %s", source.Name, utils.LogURL(c.cfg, source.URL))

	var titles []Title
	var err error

	switch source.Type {
	case "xtream":
		titles, err = importXtream(ctx, c.httpClient, source.URL, source.Username, source.Password, source.Name)
	default:
		titles, err = c.importM3U(ctx, source)
	}
	if err != nil {
		return err
	}

	titles = c.applyFilters(titles, source)
	titles = c.dedupe(titles)

	if err := c.store.ReplaceSource(ctx, source.Name, titles); err != nil {
		return err
	}

	c.counts.Store(source.Name, int64(len(titles)))
	c.log.Debug("source %s imported %d titles", source.Name, len(titles))
	return nil
}

// importM3U fetches a playlist source and parses it into titles.
func (c *Catalog) importM3U(ctx context.Context, source *config.SourceConfig) ([]Title, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist request: %w", err)
	}
	if source.UserAgent != "" {
		req.Header.Set("User-Agent", source.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("playlist fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("playlist fetch returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist body: %w", err)
	}

	return parseM3U(body, source.Name, source.URL)
}

// applyFilters drops titles that miss the include pattern or hit the exclude
// pattern. Invalid patterns are logged and ignored.
func (c *Catalog) applyFilters(titles []Title, source *config.SourceConfig) []Title {
	var include, exclude *regexp.Regexp
	var err error

	if source.IncludeRegex != "" {
		include, err = regexp.Compile(source.IncludeRegex)
		if err != nil {
			c.log.Warn("invalid include pattern for source %s: %v", source.Name, err)
		}
	}
	if source.ExcludeRegex != "" {
		exclude, err = regexp.Compile(source.ExcludeRegex)
		if err != nil {
			c.log.Warn("invalid exclude pattern for source %s: %v", source.Name, err)
		}
	}
	if include == nil && exclude == nil {
		return titles
	}

	kept := titles[:0]
	for _, title := range titles {
		if include != nil && !include.MatchString(title.Name) {
			continue
		}
		if exclude != nil && exclude.MatchString(title.Name) {
			continue
		}
		kept = append(kept, title)
	}
	return kept
}

// dedupe drops titles whose URL was already claimed by an earlier source in
// this import run.
func (c *Catalog) dedupe(titles []Title) []Title {
	kept := titles[:0]
	for _, title := range titles {
		if title.URL == "" {
			continue
		}
		if _, loaded := c.seen.LoadOrStore(title.URL, struct{}{}); loaded {
			continue
		}
		kept = append(kept, title)
	}
	return kept
}

// Search returns up to limit titles matching the query.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]Title, error) {
	return c.store.Search(ctx, query, limit)
}

// Count returns the total number of titles in the catalog.
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	return c.store.Count(ctx)
}

// SourceCounts returns the imported title count per source from the last run.
func (c *Catalog) SourceCounts() map[string]int64 {
	counts := make(map[string]int64)
	c.counts.Range(func(name string, count int64) bool {
		counts[name] = count
		return true
	})
	return counts
}

// LastImport reports when the last import run finished.
func (c *Catalog) LastImport() time.Time {
	c.lastImportM.Lock()
	defer c.lastImportM.Unlock()
	return c.lastImport
}

// RunRefresh re-imports all sources on the configured interval until the
// context is cancelled.
func (c *Catalog) RunRefresh(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CatalogRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.log.Info("scheduled catalog refresh starting")
			c.ImportAll(ctx)
		}
	}
}
