package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"billstack/internal/cache"
	"billstack/internal/cli"
	apphttp "billstack/internal/http"
	"billstack/internal/log"
)

const (
	shutdownTimeout = 30 * time.Second
	cacheSweepEvery = time.Minute
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil, log.ComponentApp), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	rt, err := cli.NewRuntime(ctx, cfg, logger, cli.Options{Metrics: true, Publish: true})
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer rt.Close()

	srv := apphttp.NewServer(":"+cfg.Port, rt.Engine, apphttp.Options{
		Logger:             logger,
		Metrics:            rt.Metrics,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	caches := cache.NewManager()
	for _, c := range rt.Backend.Caches {
		caches.Register(c)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting billstack server", log.FieldOperation, log.OpStartup, "port", cfg.Port, "backend", cfg.StoreBackend, "user_id", cfg.UserID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return caches.Run(gctx, cacheSweepEvery)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := cli.ShutdownContext(shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldOperation, log.OpShutdown, log.FieldError, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		rt.Close()
		cli.Fatal(logger, "Server error", err)
	}
	stats := srv.Stats()
	logger.Info("Server stopped gracefully", "requests", stats.TotalRequests, "errors", stats.TotalErrors)
}
