package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"stream-front/work/client"
	"stream-front/work/config"
	"stream-front/work/logger"
	"stream-front/work/metrics"

	"github.com/maypok86/otter/v2"
	"go.uber.org/ratelimit"
)

// movieResponse is the subset of the upstream movie payload the front end
// cares about.
type movieResponse struct {
	Overview string `json:"overview"`
}

// Service answers metadata summary lookups for the hover popovers. Lookups
// are cached with a TTL and outbound requests are rate limited so a burst of
// hovers cannot hammer the upstream API.
type Service struct {
	cfg        *config.Config
	httpClient *client.HeaderSettingClient
	cache      *otter.Cache[string, string]
	limiter    ratelimit.Limiter
	log        *logger.Logger
}

// NewService builds the summary service from configuration: cache size and
// TTL, upstream base URL and API key, and the outbound request rate.
func NewService(cfg *config.Config, httpClient *client.HeaderSettingClient) *Service {
	cache := otter.Must(&otter.Options[string, string]{
		MaximumSize:      cfg.SummaryCacheSize,
		ExpiryCalculator: otter.ExpiryWriting[string, string](cfg.SummaryCacheDuration),
	})

	return &Service{
		cfg:        cfg,
		httpClient: httpClient,
		cache:      cache,
		limiter:    ratelimit.New(cfg.TMDBRequestsPerSecond),
		log:        logger.New(logger.GetLogLevel()).WithTag("tmdb"),
	}
}

// Overview returns the summary text for a metadata id, from cache when
// possible. A missing overview is returned as an empty string with no error;
// the client side renders its own placeholder.
func (s *Service) Overview(ctx context.Context, id string) (string, error) {
	if overview, ok := s.cache.GetIfPresent(id); ok {
		metrics.SummaryLookups.WithLabelValues("cache").Inc()
		return overview, nil
	}

	if s.cfg.TMDBAPIKey == "" {
		return "", nil
	}

	s.limiter.Take()

	endpoint := fmt.Sprintf("%s/movie/%s?api_key=%s", s.cfg.TMDBBaseURL, id, s.cfg.TMDBAPIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("summary upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summary upstream returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var movie movieResponse
	if err := json.Unmarshal(body, &movie); err != nil {
		return "", fmt.Errorf("summary upstream returned invalid JSON: %w", err)
	}

	s.cache.Set(id, movie.Overview)
	metrics.SummaryLookups.WithLabelValues("upstream").Inc()
	s.log.Debug("cached summary for id %s", id)

	return movie.Overview, nil
}
