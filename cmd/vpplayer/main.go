package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vpplayer/vpplayer/internal/cache"
	"github.com/vpplayer/vpplayer/internal/config"
	"github.com/vpplayer/vpplayer/internal/database"
	"github.com/vpplayer/vpplayer/internal/geoip"
	"github.com/vpplayer/vpplayer/internal/metrics"
	"github.com/vpplayer/vpplayer/internal/server"
	"github.com/vpplayer/vpplayer/internal/session"
	"github.com/vpplayer/vpplayer/internal/storage"
)

const sessionSweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	slog.SetDefault(newLogger(cfg.Development(), os.Stdout))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	slog.Info("database migrations applied")

	store, err := storage.New(ctx, storage.Config{
		Endpoint:       cfg.S3.Endpoint,
		PublicEndpoint: cfg.S3.PublicEndpoint,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		Region:         cfg.S3.Region,
		MaxUploadBytes: cfg.S3.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("storage initialization failed: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatalf("storage bucket check failed: %v", err)
	}
	if err := store.SetCORS(ctx, append([]string{cfg.BaseURL}, cfg.CORSOrigins...)); err != nil {
		slog.Warn("storage: failed to set bucket CORS", "error", err)
	}
	slog.Info("storage bucket ready", "bucket", cfg.S3.Bucket)

	listCache := cache.New(ctx, cfg.RedisURL)
	defer func() { _ = listCache.Close() }()

	geo := geoip.Open(cfg.GeoIPDBPath)
	defer geo.Close()

	metrics.Init(db.Pool)

	sessions := session.NewRegistry(cfg.SessionIdleTTL, session.WithHideDelay(cfg.ControlsDelay))

	srv := server.New(server.Config{
		DB:                    db.Pool,
		Pinger:                db,
		Storage:               store,
		Cache:                 listCache,
		Geo:                   geo,
		Sessions:              sessions,
		WebFS:                 loadWebFS(cfg.WebDir),
		JWTSecret:             cfg.JWTSecret,
		BaseURL:               cfg.BaseURL,
		StoragePublicEndpoint: cfg.S3.PublicEndpoint,
		CORSOrigins:           cfg.CORSOrigins,
		MaxUploadBytes:        cfg.S3.MaxUploadBytes,
	})

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	srv.StartCleanup(bgCtx)
	sessions.StartEvictionLoop(bgCtx, sessionSweepInterval)

	// WriteTimeout stays zero: websocket connections outlive any request deadline.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("vpplayer listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	slog.Info("shutting down...")

	bgCancel()
	sessions.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}
	slog.Info("shutdown complete")
}

func newLogger(development bool, w io.Writer) *slog.Logger {
	if development {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(w, nil))
}

// loadWebFS serves the built frontend from dir. Without an index.html the
// SPA fallback stays disabled.
func loadWebFS(dir string) fs.FS {
	if dir == "" {
		slog.Info("no WEB_DIR configured, SPA serving disabled")
		return nil
	}
	webFS := os.DirFS(dir)
	if _, err := fs.Stat(webFS, "index.html"); err != nil {
		slog.Warn("frontend not found, SPA serving disabled", "dir", dir, "error", err)
		return nil
	}
	slog.Info("frontend loaded", "dir", dir)
	return webFS
}
