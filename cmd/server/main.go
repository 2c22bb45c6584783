package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"masterd/internal/api"
	"masterd/internal/cache"
	"masterd/internal/catalog"
	"masterd/internal/config"
	"masterd/internal/encode"
	"masterd/internal/events"
	"masterd/internal/logger"
	"masterd/internal/session"
)

func main() {
	// Optional .env for local overrides; missing file is fine.
	_ = godotenv.Load()

	listenAddr := flag.String("l", envOr("MASTERD_LISTEN", ""), "HTTP listen address (overrides config)")
	logLevel := flag.String("L", envOr("MASTERD_LOG_LEVEL", ""), "Log level (error, warn, info, debug)")
	configFile := flag.String("c", envOr("MASTERD_CONFIG", "masterd.json"), "Path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		// Logger level may come from the config we just failed to load.
		logger.NewLogger("info").Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := logger.NewLogger(cfg.LogLevel)
	log.Infof("Starting mastering stream server...")

	library, err := catalog.NewLibrary(cfg.LibraryDir, cfg.SampleRate, cfg.Channels, log)
	if err != nil {
		log.Errorf("Failed to open track library: %v", err)
		os.Exit(1)
	}

	var warmStore cache.WarmStore
	if cfg.WarmDiskDir != "" {
		store, err := cache.OpenDiskStore(cfg.WarmDiskDir)
		if err != nil {
			log.Errorf("Failed to open warm tier disk store: %v", err)
			os.Exit(1)
		}
		warmStore = store
		log.Infof("Warm cache tier backed by disk at %s", cfg.WarmDiskDir)
	}
	chunkCache := cache.New(cfg.HotTierBytes, cfg.WarmTierBytes, warmStore, log)
	defer chunkCache.Close()

	bus := events.NewBus(256, log)
	go events.LogSink(bus, log)

	encoder := encode.NewEncoder(cfg.SampleRate, cfg.Channels, cfg.BitrateKbps, cfg.ChunkDuration, log)
	producer := session.NewProducer(library, encoder, chunkCache, bus, cfg.Workers, log)
	sessionMgr := session.NewManager(producer, cfg.WindowSize, cfg.RequestTimeout, bus, log)

	router := api.New(sessionMgr, producer, cfg.DefaultPreset, log)

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: router,
	}

	go func() {
		log.Infof("Server starting on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", cfg.Listen, err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Infof("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessionMgr.Stop()
	bus.Close()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
		os.Exit(1)
	}

	log.Infof("Server exited gracefully")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
