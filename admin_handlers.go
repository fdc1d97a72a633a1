package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"stream-front/work/catalog"
	"stream-front/work/config"
	"stream-front/work/logger"
	"stream-front/work/middleware"
	"stream-front/work/utils"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// StatsResponse represents the operational statistics exposed through the
// admin API: catalog size, import state, and process health.
type StatsResponse struct {
	TotalTitles   int64            `json:"totalTitles"`
	TotalSources  int              `json:"totalSources"`
	SourceCounts  map[string]int64 `json:"sourceCounts"`
	LastImport    string           `json:"lastImport"`
	Uptime        string           `json:"uptime"`
	MemoryUsage   string           `json:"memoryUsage"`
	WorkerThreads int              `json:"workerThreads"`
	LogLevel      string           `json:"logLevel"`
}

// LogEntry represents an individual log line captured for the admin interface.
type LogEntry struct {
	Timestamp string `json:"timestamp"` // Human-readable timestamp of log entry creation
	Level     string `json:"level"`     // Log severity level (info, debug, error, etc.)
	Message   string `json:"message"`   // Complete log message content
}

var (
	// adminStartTime records process start for uptime reporting.
	adminStartTime = time.Now()

	// logEntries is a bounded buffer of recent admin-visible log lines.
	logEntries = make([]LogEntry, 0, 1000)
)

// restartChan signals a graceful configuration reload to the main loop.
var restartChan = make(chan bool, 1)

// setupAdminRoutes configures the administrative API endpoints. All routes
// require the configured admin password; an empty hash disables the API.
func setupAdminRoutes(router *mux.Router, cfg *config.Config, cat *catalog.Catalog) {
	auth := adminAuth(cfg)

	router.HandleFunc("/api/stats", auth(middleware.GzipMiddleware(handleGetStats(cfg, cat)))).Methods("GET")
	router.HandleFunc("/api/refresh", auth(handleRefresh(cat))).Methods("POST")
	router.HandleFunc("/api/config", auth(middleware.GzipMiddleware(handleGetConfig))).Methods("GET")
	router.HandleFunc("/api/config", auth(handleSetConfig)).Methods("POST")
	router.HandleFunc("/api/logs", auth(middleware.GzipMiddleware(handleGetLogs))).Methods("GET")
	router.HandleFunc("/api/logs", auth(handleClearLogs)).Methods("DELETE")
	router.HandleFunc("/api/loglevel", auth(handleSetLogLevel)).Methods("POST")
	router.HandleFunc("/api/restart", auth(handleRestart)).Methods("POST")

	addLogEntry("info", "Admin API initialized")
}

// adminAuth guards the admin API with the configured bcrypt password hash.
// When no hash is configured the whole API answers 404, indistinguishable
// from the route not existing.
func adminAuth(cfg *config.Config) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if cfg.AdminPasswordHash == "" {
				http.NotFound(w, r)
				return
			}

			_, password, ok := r.BasicAuth()
			if !ok || bcrypt.CompareHashAndPassword([]byte(cfg.AdminPasswordHash), []byte(password)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next(w, r)
		}
	}
}

// handleGetStats reports catalog and process statistics.
func handleGetStats(cfg *config.Config, cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		total, err := cat.Count(r.Context())
		if err != nil {
			addLogEntry("error", fmt.Sprintf("Failed to count catalog: %v", err))
			http.Error(w, "Failed to read catalog", http.StatusInternalServerError)
			return
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		lastImport := ""
		if t := cat.LastImport(); !t.IsZero() {
			lastImport = t.Format(time.RFC3339)
		}

		stats := StatsResponse{
			TotalTitles:   total,
			TotalSources:  len(cfg.Sources),
			SourceCounts:  cat.SourceCounts(),
			LastImport:    lastImport,
			Uptime:        formatDuration(time.Since(adminStartTime)),
			MemoryUsage:   utils.FormatBytes(int64(m.Alloc)),
			WorkerThreads: cfg.WorkerThreads,
			LogLevel:      logger.GetLogLevel(),
		}

		if err := json.NewEncoder(w).Encode(stats); err != nil {
			addLogEntry("error", fmt.Sprintf("Failed to encode stats: %v", err))
		}
	}
}

// handleRefresh triggers an immediate catalog re-import in the background.
func handleRefresh(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		addLogEntry("info", "Catalog refresh requested via admin API")
		go cat.ImportAll(context.Background())

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "refresh_started"})
	}
}

// handleGetConfig returns the persisted configuration with credentials
// blanked out.
func handleGetConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	data, err := os.ReadFile("/settings/config.json")
	if err != nil {
		addLogEntry("error", fmt.Sprintf("Failed to read config file: %v", err))
		http.Error(w, "Failed to read config file", http.StatusInternalServerError)
		return
	}

	var configFile config.ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		addLogEntry("error", fmt.Sprintf("Failed to parse config: %v", err))
		http.Error(w, "Failed to parse config", http.StatusInternalServerError)
		return
	}

	// never echo credentials back out
	configFile.AdminPasswordHash = ""
	configFile.TMDBAPIKey = ""
	for i := range configFile.Sources {
		configFile.Sources[i].Password = ""
	}

	json.NewEncoder(w).Encode(configFile)
}

// handleSetConfig validates and persists a new configuration file atomically.
// Changes take effect on the next graceful reload.
func handleSetConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var configFile config.ConfigFile
	if err := json.NewDecoder(r.Body).Decode(&configFile); err != nil {
		addLogEntry("error", fmt.Sprintf("JSON decode error: %v", err))
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if configFile.BaseURL == "" {
		http.Error(w, "Base URL is required", http.StatusBadRequest)
		return
	}

	if configFile.FFmpegPreInput == nil {
		configFile.FFmpegPreInput = []string{}
	}
	if configFile.FFmpegPreOutput == nil {
		configFile.FFmpegPreOutput = []string{}
	}

	data, err := json.MarshalIndent(configFile, "", "  ")
	if err != nil {
		addLogEntry("error", fmt.Sprintf("Failed to marshal config: %v", err))
		http.Error(w, "Failed to marshal config", http.StatusInternalServerError)
		return
	}

	// temp file then rename, so a crash never leaves a half-written config
	configPath := "/settings/config.json"
	tempPath := "/settings/config.json.tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		addLogEntry("error", fmt.Sprintf("Failed to write temp file: %v", err))
		http.Error(w, "Failed to write temp file: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := os.Rename(tempPath, configPath); err != nil {
		addLogEntry("error", fmt.Sprintf("Failed to move temp file: %v", err))
		http.Error(w, "Failed to move config file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	addLogEntry("info", "Configuration updated via admin API")
	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

// handleGetLogs returns the buffered admin log lines.
func handleGetLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(logEntries); err != nil {
		http.Error(w, "Failed to encode logs", http.StatusInternalServerError)
	}
}

// handleClearLogs empties the admin log buffer.
func handleClearLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	logEntries = logEntries[:0]
	addLogEntry("info", "Log entries cleared via admin API")

	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

// handleSetLogLevel changes the runtime log level without a restart.
func handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var request struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	logger.SetLogLevel(request.Level)
	addLogEntry("info", fmt.Sprintf("Log level set to %s via admin API", logger.GetLogLevel()))

	json.NewEncoder(w).Encode(map[string]string{
		"status":   "success",
		"logLevel": logger.GetLogLevel(),
	})
}

// handleRestart signals a graceful configuration reload.
func handleRestart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	addLogEntry("info", "Reload requested via admin API")

	json.NewEncoder(w).Encode(map[string]string{
		"status":  "reload_initiated",
		"message": "Reloading configuration...",
	})

	go func() {
		time.Sleep(500 * time.Millisecond)
		restartChan <- true
	}()
}

// addLogEntry appends to the admin log buffer, keeping the last 1000 entries.
func addLogEntry(level, message string) {
	logEntries = append(logEntries, LogEntry{
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		Level:     level,
		Message:   message,
	})
	if len(logEntries) > 1000 {
		logEntries = logEntries[len(logEntries)-1000:]
	}
}

// formatDuration converts time.Duration to human-readable format
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
