package config

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"sync"
	"time"
)

// Config holds all application configuration values for the streaming front end.
// It covers the HTTP surface, playback resolution behavior, the widget timing
// windows, the metadata summary upstream, and the catalog sources that back
// title search.
type Config struct {
	ListenAddr             string         `json:"listenAddr"`             // Address the HTTP server binds to
	BaseURL                string         `json:"baseURL"`                // Public base URL pages are served from
	PageSecure             bool           `json:"pageSecure"`             // Whether pages reach clients over https (drives mixed-content handling)
	HLSEngineAvailable     bool           `json:"hlsEngineAvailable"`     // Whether the client-side adaptive engine is shipped with the pages
	Debug                  bool           `json:"debug"`                  // Enable debug logging
	ObfuscateUrls          bool           `json:"obfuscateUrls"`          // Obfuscate stream URLs in logs
	SummaryCacheDuration   time.Duration  `json:"summaryCacheDuration"`   // TTL for cached metadata summaries
	SummaryCacheSize       int            `json:"summaryCacheSize"`       // Maximum number of cached summaries
	CatalogRefreshInterval time.Duration  `json:"catalogRefreshInterval"` // Interval for re-importing catalog sources
	WorkerThreads          int            `json:"workerThreads"`          // Number of worker threads for catalog imports
	StreamTimeout          time.Duration  `json:"streamTimeout"`          // Timeout for upstream header responses on relay/remux
	SearchDebounce         time.Duration  `json:"searchDebounce"`         // Quiet window before a search query is issued
	SearchMinChars         int            `json:"searchMinChars"`         // Minimum query length before the search endpoint is called
	HoverDelay             time.Duration  `json:"hoverDelay"`             // Dwell time before a summary popover is requested
	CopyConfirmReset       time.Duration  `json:"copyConfirmReset"`       // How long the clipboard confirmation text stays up
	TMDBAPIKey             string         `json:"tmdbApiKey"`             // API key for the metadata summary upstream
	TMDBBaseURL            string         `json:"tmdbBaseURL"`            // Base URL of the metadata summary upstream
	TMDBRequestsPerSecond  int            `json:"tmdbRequestsPerSecond"`  // Outbound rate limit toward the summary upstream
	FFmpegPath             string         `json:"ffmpegPath"`             // ffmpeg binary used by the transcode endpoint
	FFmpegPreInput         []string       `json:"ffmpegPreInput"`         // ffmpeg arguments before -i
	FFmpegPreOutput        []string       `json:"ffmpegPreOutput"`        // ffmpeg arguments before the output pipe
	DatabasePath           string         `json:"databasePath"`           // Path to the catalog sqlite database
	AdminPasswordHash      string         `json:"adminPasswordHash"`      // bcrypt hash guarding the admin API (empty disables it)
	UserAgent              string         `json:"userAgent"`              // User-Agent for outbound requests
	ReqOrigin              string         `json:"reqOrigin"`              // Origin header for outbound requests
	ReqReferrer            string         `json:"reqReferrer"`            // Referer header for outbound requests
	Sources                []SourceConfig `json:"sources"`                // Catalog sources title search is built from
}

// SourceConfig represents one catalog source. A source is either a plain M3U
// playlist or an Xtream-codes API account, with optional include/exclude
// filters applied to imported titles.
type SourceConfig struct {
	Name         string `json:"name"`                   // Descriptive name for the source
	URL          string `json:"url"`                    // Playlist URL or Xtream-codes base URL
	Type         string `json:"type"`                   // "m3u" or "xtream"
	Username     string `json:"username"`               // Xtream-codes username
	Password     string `json:"password"`               // Xtream-codes password
	Order        int    `json:"order"`                  // Import priority order
	UserAgent    string `json:"userAgent"`              // Per-source User-Agent override
	IncludeRegex string `json:"includeRegex,omitempty"` // Only titles matching this pattern are imported
	ExcludeRegex string `json:"excludeRegex,omitempty"` // Titles matching this pattern are skipped
}

// ConfigFile represents the JSON file structure for marshaling/unmarshaling
// configuration. Duration fields are stored as strings (e.g. "300ms", "12h")
// and parsed into time.Duration values on load.
type ConfigFile struct {
	ListenAddr             string         `json:"listenAddr"`
	BaseURL                string         `json:"baseURL"`
	PageSecure             bool           `json:"pageSecure"`
	HLSEngineAvailable     bool           `json:"hlsEngineAvailable"`
	Debug                  bool           `json:"debug"`
	ObfuscateUrls          bool           `json:"obfuscateUrls"`
	SummaryCacheDuration   string         `json:"summaryCacheDuration"`
	SummaryCacheSize       int            `json:"summaryCacheSize"`
	CatalogRefreshInterval string         `json:"catalogRefreshInterval"`
	WorkerThreads          int            `json:"workerThreads"`
	StreamTimeout          string         `json:"streamTimeout"`
	SearchDebounce         string         `json:"searchDebounce"`
	SearchMinChars         int            `json:"searchMinChars"`
	HoverDelay             string         `json:"hoverDelay"`
	CopyConfirmReset       string         `json:"copyConfirmReset"`
	TMDBAPIKey             string         `json:"tmdbApiKey"`
	TMDBBaseURL            string         `json:"tmdbBaseURL"`
	TMDBRequestsPerSecond  int            `json:"tmdbRequestsPerSecond"`
	FFmpegPath             string         `json:"ffmpegPath"`
	FFmpegPreInput         []string       `json:"ffmpegPreInput"`
	FFmpegPreOutput        []string       `json:"ffmpegPreOutput"`
	DatabasePath           string         `json:"databasePath"`
	AdminPasswordHash      string         `json:"adminPasswordHash"`
	UserAgent              string         `json:"userAgent"`
	ReqOrigin              string         `json:"reqOrigin"`
	ReqReferrer            string         `json:"reqReferrer"`
	Sources                []SourceConfig `json:"sources"`
}

var (
	configCache *Config      // Cached configuration instance (singleton)
	configMutex sync.RWMutex // Mutex for safe concurrent access to configCache
)

// LoadConfig loads the configuration from file or returns the cached instance.
//
// Process:
//   - Uses double-checked locking to avoid redundant reloads.
//   - Attempts to load from `/settings/config.json`.
//   - Falls back to default config if file is missing or invalid.
//   - Runs validation to ensure safe defaults.
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// Double-check under write lock
	if configCache != nil {
		return configCache
	}

	configPath := "/settings/config.json"
	config, err := loadFromFile(configPath)
	if err != nil {
		log.Printf("Failed to load config from %s: %v", configPath, err)
		log.Printf("Falling back to default configuration...")
		config = getDefaultConfig()
	}

	validateAndSetDefaults(config)
	configCache = config

	if config.Debug {
		log.Printf("Configuration loaded:")
		log.Printf("  Sources: %d configured", len(config.Sources))
		for i := range config.Sources {
			src := &config.Sources[i]
			log.Printf("    Source %d (%s, %s): %s (order: %d)",
				i+1, src.Name, src.Type, obfuscateURL(src.URL), src.Order)
		}
		log.Printf("  Page Secure: %v", config.PageSecure)
		log.Printf("  HLS Engine Available: %v", config.HLSEngineAvailable)
		log.Printf("  Obfuscate URLs: %v", config.ObfuscateUrls)
	}

	return config
}

// loadFromFile reads and parses the configuration from a JSON file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return convertFromFile(&configFile)
}

// convertFromFile converts a ConfigFile to Config,
// parsing duration strings into time.Duration.
func convertFromFile(cf *ConfigFile) (*Config, error) {
	config := &Config{
		ListenAddr:            cf.ListenAddr,
		BaseURL:               cf.BaseURL,
		PageSecure:            cf.PageSecure,
		HLSEngineAvailable:    cf.HLSEngineAvailable,
		Debug:                 cf.Debug,
		ObfuscateUrls:         cf.ObfuscateUrls,
		SummaryCacheSize:      cf.SummaryCacheSize,
		WorkerThreads:         cf.WorkerThreads,
		SearchMinChars:        cf.SearchMinChars,
		TMDBAPIKey:            cf.TMDBAPIKey,
		TMDBBaseURL:           cf.TMDBBaseURL,
		TMDBRequestsPerSecond: cf.TMDBRequestsPerSecond,
		FFmpegPath:            cf.FFmpegPath,
		FFmpegPreInput:        cf.FFmpegPreInput,
		FFmpegPreOutput:       cf.FFmpegPreOutput,
		DatabasePath:          cf.DatabasePath,
		AdminPasswordHash:     cf.AdminPasswordHash,
		UserAgent:             cf.UserAgent,
		ReqOrigin:             cf.ReqOrigin,
		ReqReferrer:           cf.ReqReferrer,
		Sources:               cf.Sources,
	}

	// Parse duration fields
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"summaryCacheDuration", cf.SummaryCacheDuration, &config.SummaryCacheDuration},
		{"catalogRefreshInterval", cf.CatalogRefreshInterval, &config.CatalogRefreshInterval},
		{"streamTimeout", cf.StreamTimeout, &config.StreamTimeout},
		{"searchDebounce", cf.SearchDebounce, &config.SearchDebounce},
		{"hoverDelay", cf.HoverDelay, &config.HoverDelay},
		{"copyConfirmReset", cf.CopyConfirmReset, &config.CopyConfirmReset},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return config, nil
}

// getDefaultConfig returns a baseline configuration
// with sensible defaults when no file is present.
func getDefaultConfig() *Config {
	return &Config{
		ListenAddr:             ":8080",
		BaseURL:                "http://localhost:8080",
		PageSecure:             false,
		HLSEngineAvailable:     true,
		Debug:                  false,
		ObfuscateUrls:          false,
		SummaryCacheDuration:   30 * time.Minute,
		SummaryCacheSize:       4096,
		CatalogRefreshInterval: 12 * time.Hour,
		WorkerThreads:          8,
		StreamTimeout:          10 * time.Second,
		SearchDebounce:         300 * time.Millisecond,
		SearchMinChars:         2,
		HoverDelay:             time.Second,
		CopyConfirmReset:       3 * time.Second,
		TMDBBaseURL:            "https://api.themoviedb.org/3",
		TMDBRequestsPerSecond:  4,
		FFmpegPath:             "ffmpeg",
		DatabasePath:           "/settings/catalog.db",
		UserAgent:              "VLC/3.0.18 LibVLC/3.0.18",
		Sources:                []SourceConfig{},
	}
}

// validateAndSetDefaults ensures all config values are valid,
// filling in defaults for missing/invalid ones.
func validateAndSetDefaults(config *Config) {
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.SummaryCacheDuration <= 0 {
		config.SummaryCacheDuration = 30 * time.Minute
	}
	if config.SummaryCacheSize <= 0 {
		config.SummaryCacheSize = 4096
	}
	if config.CatalogRefreshInterval <= 0 {
		config.CatalogRefreshInterval = 12 * time.Hour
	}
	if config.WorkerThreads <= 0 {
		config.WorkerThreads = 8
	}
	if config.StreamTimeout <= 0 {
		config.StreamTimeout = 10 * time.Second
	}
	if config.SearchDebounce <= 0 {
		config.SearchDebounce = 300 * time.Millisecond
	}
	if config.SearchMinChars <= 0 {
		config.SearchMinChars = 2
	}
	if config.HoverDelay <= 0 {
		config.HoverDelay = time.Second
	}
	if config.CopyConfirmReset <= 0 {
		config.CopyConfirmReset = 3 * time.Second
	}
	if config.TMDBBaseURL == "" {
		config.TMDBBaseURL = "https://api.themoviedb.org/3"
	}
	if config.TMDBRequestsPerSecond <= 0 {
		config.TMDBRequestsPerSecond = 4
	}
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	if config.DatabasePath == "" {
		config.DatabasePath = "/settings/catalog.db"
	}
	if config.UserAgent == "" {
		config.UserAgent = "VLC/3.0.18 LibVLC/3.0.18"
	}

	// Validate each source
	for i := range config.Sources {
		src := &config.Sources[i]
		if src.Name == "" {
			src.Name = fmt.Sprintf("Source_%d", i+1)
		}
		if src.Type == "" {
			src.Type = "m3u"
		}
		if src.Order <= 0 {
			src.Order = i + 1
		}
		if src.UserAgent == "" {
			src.UserAgent = config.UserAgent
		}
	}
}

// GetSourcesByOrder returns a copy of sources sorted by their Order field.
// Original slice remains unmodified.
func (c *Config) GetSourcesByOrder() []SourceConfig {
	sources := make([]SourceConfig, len(c.Sources))
	copy(sources, c.Sources)

	// Simple bubble sort (sufficient since number of sources is small)
	for i := 0; i < len(sources)-1; i++ {
		for j := i + 1; j < len(sources); j++ {
			if sources[i].Order > sources[j].Order {
				sources[i], sources[j] = sources[j], sources[i]
			}
		}
	}

	return sources
}

// CreateExampleConfig creates an example config file on disk.
func CreateExampleConfig(path string) error {
	example := ConfigFile{
		ListenAddr:             ":8080",
		BaseURL:                "https://stream.example.com",
		PageSecure:             true,
		HLSEngineAvailable:     true,
		Debug:                  false,
		ObfuscateUrls:          true,
		SummaryCacheDuration:   "30m",
		SummaryCacheSize:       4096,
		CatalogRefreshInterval: "12h",
		WorkerThreads:          4,
		StreamTimeout:          "10s",
		SearchDebounce:         "300ms",
		SearchMinChars:         2,
		HoverDelay:             "1s",
		CopyConfirmReset:       "3s",
		TMDBAPIKey:             "",
		TMDBBaseURL:            "https://api.themoviedb.org/3",
		TMDBRequestsPerSecond:  4,
		FFmpegPath:             "ffmpeg",
		FFmpegPreInput:         []string{"-hide_banner", "-loglevel", "error"},
		FFmpegPreOutput:        []string{"-c", "copy", "-movflags", "frag_keyframe+empty_moov"},
		DatabasePath:           "/settings/catalog.db",
		UserAgent:              "VLC/3.0.18 LibVLC/3.0.18",
		Sources: []SourceConfig{
			{
				Name:  "Primary Provider",
				URL:   "http://example.com/playlist.m3u8",
				Type:  "m3u",
				Order: 1,
			},
			{
				Name:     "Xtream Provider",
				URL:      "http://example.com:8000",
				Type:     "xtream",
				Username: "user",
				Password: "pass",
				Order:    2,
			},
		},
	}

	data, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ClearConfigCache resets the configCache to nil.
// Forces a reload on the next LoadConfig() call.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}

// obfuscateURL masks sensitive parts of a URL for logging.
//
// Example:
//
//	Input:  "http://example.com/secret/stream.m3u8?token=abc"
//	Output: "http://example.com/***?***"
func obfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return "***OBFUSCATED***"
	}
	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}
	return result
}
