package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/tubechat/internal/api"
	"github.com/timmy/tubechat/internal/bootstrap"
	"github.com/timmy/tubechat/internal/config"
	"github.com/timmy/tubechat/internal/logger"
	"github.com/timmy/tubechat/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid configuration")
	}

	shutdownTracing, err := telemetry.Init(cfg.Tracing)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize tracing")
	}

	ctx := context.Background()
	components, err := bootstrap.Build(ctx, cfg, bootstrap.Options{WithChat: true})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize services")
	}

	router := api.SetupRouter(api.Services{
		Chat:   components.Chat,
		Ingest: components.Ingest,
		Jobs:   components.Jobs,
	}, cfg, appLogger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.WithError(err).Error("Server stopped with error")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := components.Close(); err != nil {
		appLogger.WithError(err).Error("Failed to release resources")
	}
	if err := shutdownTracing(flushCtx); err != nil {
		appLogger.WithError(err).Warn("Failed to flush traces")
	}

	appLogger.Info("Server exited")
}
