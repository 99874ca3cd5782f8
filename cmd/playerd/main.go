package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stillwave/player/internal/analytics"
	"github.com/stillwave/player/internal/cache"
	"github.com/stillwave/player/internal/catalog"
	"github.com/stillwave/player/internal/config"
	"github.com/stillwave/player/internal/constants"
	"github.com/stillwave/player/internal/downloads"
	"github.com/stillwave/player/internal/engine"
	"github.com/stillwave/player/internal/httpapp"
	"github.com/stillwave/player/internal/httpclient"
	"github.com/stillwave/player/internal/identity"
	"github.com/stillwave/player/internal/logger"
	"github.com/stillwave/player/internal/player"
	"github.com/stillwave/player/internal/remote"
	"github.com/stillwave/player/internal/store"
)

func main() {
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// Initialize DB
	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		appLogger.Error("Failed to init DB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize Catalog (metadata cached in the DB blob cache)
	hc := httpclient.New(&http.Client{Timeout: 60 * time.Second}, constants.MinRequestInterval)
	resolver := catalog.NewCachedResolver(catalog.NewClient(cfg.CatalogURL, hc), db, constants.DefaultCacheTTL)

	// Initialize Audio Cache
	audioCache := cache.NewStore(cfg.CacheDir, cfg.CacheMaxBytes, appLogger)

	// Initialize Identity
	userIdentity := identity.NewStatic(cfg.UserID)

	// Initialize Download Manager
	settingsRepo := store.NewSettingsRepo(db)
	downloadManager := downloads.NewManager(resolver, audioCache, db, hc, userIdentity, appLogger)

	// Initialize Playback Engine
	eng, err := engine.NewBeep(&http.Client{Timeout: 5 * time.Minute}, appLogger)
	if err != nil {
		appLogger.Error("Failed to init audio engine", "error", err)
		os.Exit(1)
	}

	// Initialize Player (restores persisted queue and preferences)
	pl := player.New(eng, resolver, downloadManager, settingsRepo, appLogger)

	// Initialize Remote-Control Bridge
	bridge := remote.NewBridge(pl, appLogger)
	bridge.Register()

	// Initialize Analytics
	if cfg.AnalyticsURL != "" {
		emitter := analytics.NewEmitter(hc, cfg.AnalyticsURL, userIdentity, appLogger)
		pl.AddListener(emitter.Observe)
	}

	// Initialize Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := httpapp.NewHandler(pl, downloadManager, bridge, appLogger)
	h.RegisterRoutes(r)

	// Start Server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	bridge.Unregister()
	pl.Close()

	log.Println("Server exiting")
}
