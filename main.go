package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stream-front/work/catalog"
	"stream-front/work/client"
	"stream-front/work/config"
	"stream-front/work/handlers"
	"stream-front/work/logger"
	"stream-front/work/middleware"
	"stream-front/work/relay"
	"stream-front/work/remux"
	"stream-front/work/tmdb"
)

var (
	Version = "v0.1.0" // default version
)

// our main app worker
func main() {

	// load our config
	cfg := config.LoadConfig()
	if cfg.Debug {
		logger.SetLogLevel("DEBUG")
	}

	// Initialize HTTP client
	httpClient := client.NewHeaderSettingClient(cfg)

	// Initialize worker pool
	workerPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}
	defer workerPool.Release()

	// Open the catalog store
	store, err := catalog.OpenStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open catalog database: %v", err)
	}
	defer store.Close()

	// Create the catalog and run the initial import
	cat := catalog.New(cfg, httpClient, store, workerPool)
	cat.ImportAll(context.Background())

	// Start scheduled catalog refresh
	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	go cat.RunRefresh(refreshCtx)

	// Endpoint services
	summaries := tmdb.NewService(cfg, httpClient)
	remuxer := remux.New(cfg)
	streamRelay := relay.New(cfg, httpClient)

	h, err := handlers.New(cfg, cat, summaries, remuxer, streamRelay)
	if err != nil {
		log.Fatalf("Failed to initialize handlers: %v", err)
	}

	// Setup HTTP routes
	router := mux.NewRouter()

	// Player page (also the browse entry point)
	router.HandleFunc("/", middleware.GzipMiddleware(h.PlayerPage)).Methods("GET")
	router.HandleFunc("/player", middleware.GzipMiddleware(h.PlayerPage)).Methods("GET")

	// Search and metadata endpoints
	router.HandleFunc("/searchTitles", middleware.GzipMiddleware(h.SearchTitles)).Methods("GET")
	router.HandleFunc("/api/tmdb/summary", middleware.GzipMiddleware(h.Summary)).Methods("GET")

	// Stream delivery endpoints; never compressed, the payload is video
	router.HandleFunc("/transcode", h.Transcode).Methods("GET")
	router.HandleFunc("/proxy", h.Proxy).Methods("GET")
	router.HandleFunc("/playlist.m3u", h.PlaylistExport).Methods("GET")

	// Static assets for the pages
	router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir("/static/"))))

	// Metrics handler
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// add the admin routes
	setupAdminRoutes(router, cfg, cat)

	// show info
	logger.Info("Starting Stream Front %s", Version)
	logger.Info("Server configuration:")
	logger.Info("  - Listen Addr: %s", cfg.ListenAddr)
	logger.Info("  - Base URL: %s", cfg.BaseURL)
	logger.Info("  - Page Secure: %v", cfg.PageSecure)
	logger.Info("  - HLS Engine Available: %v", cfg.HLSEngineAvailable)
	logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("  - Sources: %d", len(cfg.Sources))
	logger.Info("  - Catalog Refresh Rate: %s", cfg.CatalogRefreshInterval)
	logger.Info("  - Summary Cache: %d entries / %s", cfg.SummaryCacheSize, cfg.SummaryCacheDuration)
	logger.Info("  - Search Debounce: %s (min %d chars)", cfg.SearchDebounce, cfg.SearchMinChars)
	logger.Info("  - Debug Enabled: %v", cfg.Debug)
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	// gracefully reload if it's requested to do.
	go func() {

		// start a loop
		for {
			<-restartChan

			logger.Info("Graceful reload requested...")

			// Stop scheduled refresh
			stopRefresh()

			// CLEAR CONFIG CACHE FIRST
			config.ClearConfigCache()

			// Reload config from file
			newConfig := config.LoadConfig()
			if newConfig.Debug {
				logger.SetLogLevel("DEBUG")
			}
			cat.SetConfig(newConfig)

			// Re-import and restart the refresh loop
			cat.ImportAll(context.Background())
			refreshCtx, stopRefresh = context.WithCancel(context.Background())
			go cat.RunRefresh(refreshCtx)

			logger.Info("Graceful reload completed - loaded %d sources", len(newConfig.Sources))
		}

	}()

	// fire us up
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}

}
