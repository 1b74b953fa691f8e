// Package main is the entrypoint for the nsstatus API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/nsstatus/internal/api"
	"github.com/kiranshivaraju/nsstatus/internal/api/handler"
	mw "github.com/kiranshivaraju/nsstatus/internal/api/middleware"
	"github.com/kiranshivaraju/nsstatus/internal/api/response"
	"github.com/kiranshivaraju/nsstatus/internal/cache"
	"github.com/kiranshivaraju/nsstatus/internal/config"
	"github.com/kiranshivaraju/nsstatus/internal/metrics"
	"github.com/kiranshivaraju/nsstatus/internal/neuroscout"
	"github.com/kiranshivaraju/nsstatus/internal/status"
	"github.com/kiranshivaraju/nsstatus/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	shutdownTimeout = 30 * time.Second
	evictInterval   = time.Minute
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// .env is optional
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "neuroscout", cfg.Neuroscout.BaseURL, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Neuroscout client; the image version is shared through redis
	upstream := neuroscout.NewCachedClient(
		neuroscout.NewHTTPClient(cfg.Neuroscout.BaseURL, cfg.Neuroscout.Token, cfg.Neuroscout.Timeout),
		redisCache,
		cfg.Display.ImageVersionTTL,
	)

	// 6. Status trackers
	registry := status.NewRegistry(upstream, cfg.Display.FetchTimeout, cfg.Display.TrackerIdleTTL)
	go registry.Run(ctx, evictInterval)

	renderer := status.Renderer{
		ServerRoot: cfg.Neuroscout.ServerRoot,
		Image:      cfg.Display.Image,
	}

	// 7. Create store
	pgStore := store.NewPostgresStore(pool)

	// 8. Build router with dependencies
	analyses := handler.NewAnalyses(upstream, registry, renderer, pgStore, cfg.Display.Settle)
	keys := handler.NewKeys(pgStore)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimit),
		Metrics:   metrics.NewMiddleware("nsstatus", prometheus.DefaultRegisterer),

		HealthHandler:  healthHandler(pgStore, redisCache, upstream),
		MetricsHandler: promhttp.Handler(),

		ViewHandler:        analyses.View,
		PageHandler:        analyses.Page,
		UploadsHandler:     analyses.Uploads,
		SubmitHandler:      analyses.Submit,
		VisibilityHandler:  analyses.Visibility,
		SubmissionsHandler: analyses.Submissions,

		CreateKeyHandler: keys.Create,
		ListKeysHandler:  keys.List,
		RevokeKeyHandler: keys.Revoke,
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// readiness is the part of the Neuroscout client the health check needs.
type readiness interface {
	Ready(ctx context.Context) error
}

// healthHandler checks database, cache and upstream connectivity.
func healthHandler(s store.Store, c cache.Cache, upstream readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database":   "ok",
			"cache":      "ok",
			"neuroscout": "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := upstream.Ready(r.Context()); err != nil {
			checks["neuroscout"] = "degraded"
		}

		for _, v := range checks {
			if v != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
