// Package main is the entrypoint for the chatqueue API server and its
// background worker.
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

	"github.com/akettlewell/chatqueue/internal/api"
	"github.com/akettlewell/chatqueue/internal/api/handler"
	mw "github.com/akettlewell/chatqueue/internal/api/middleware"
	"github.com/akettlewell/chatqueue/internal/backend"
	"github.com/akettlewell/chatqueue/internal/cache"
	"github.com/akettlewell/chatqueue/internal/config"
	"github.com/akettlewell/chatqueue/internal/poller"
	"github.com/akettlewell/chatqueue/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "backend", cfg.Backend.BaseURL, "env", cfg.Server.Env)

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

	// 5. Create store
	pgStore := store.NewPostgresStore(pool)

	// 6. Sweep jobs orphaned by a previous process. This must finish
	// before the worker starts claiming, so a recovered job cannot race
	// a fresh claim.
	swept, err := pgStore.RecoverOrphanedJobs(ctx, poller.MsgRestartRecovery)
	if err != nil {
		return fmt.Errorf("recover orphaned jobs: %w", err)
	}
	if swept > 0 {
		slog.Warn("recovered orphaned jobs from previous run", "count", swept)
	}

	// 7. Create completion backend client and start the worker
	backendClient := backend.NewHTTPClient(cfg.Backend)

	worker := poller.New(pgStore, backendClient, redisCache, cfg.Poller, cfg.Backend, logger)
	pollCtx, pollCancel := context.WithCancel(context.Background())
	defer pollCancel()
	pollerDone := make(chan struct{})
	go func() {
		worker.Run(pollCtx)
		close(pollerDone)
	}()

	// 8. Build router with dependencies
	deps := api.Dependencies{
		AdminAuth: mw.NewAdminAuth(cfg.Admin.TokenHash),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Admin.RequestsPerMin),

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),

		UpsertUserHandler:    handler.NewUpsertUserHandler(pgStore),
		CreateSessionHandler: handler.NewCreateSessionHandler(pgStore),
		ListSessionsHandler:  handler.NewListSessionsHandler(pgStore),

		SubmitJobHandler:   handler.NewSubmitJobHandler(pgStore),
		ListJobsHandler:    handler.NewListJobsHandler(pgStore),
		GetJobHandler:      handler.NewGetJobHandler(pgStore),
		ResubmitJobHandler: handler.NewResubmitJobHandler(pgStore),
		HideJobHandler:     handler.NewHideJobHandler(pgStore),

		SubmitAnalysisHandler: handler.NewSubmitAnalysisHandler(pgStore),
		ListAnalysesHandler:   handler.NewListAnalysesHandler(pgStore),

		AdminListJobsHandler:     handler.NewAdminListJobsHandler(pgStore),
		AdminListAnalysesHandler: handler.NewAdminListAnalysesHandler(pgStore),
		AdminListUsersHandler:    handler.NewAdminListUsersHandler(pgStore),
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

	// Stop the worker after the HTTP surface is closed. The worker
	// finishes its in-flight job before returning.
	pollCancel()
	<-pollerDone

	slog.Info("server stopped gracefully")
	return nil
}
