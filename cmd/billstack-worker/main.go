package main

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"billstack/internal/amqp"
	"billstack/internal/cli"
	"billstack/internal/log"
	"billstack/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil, log.ComponentWorker), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting billstack-worker", log.FieldOperation, log.OpStartup, "user_id", cfg.UserID, "interval", cfg.ReconcileInterval)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	rt, err := cli.NewRuntime(ctx, cfg, logger, cli.Options{})
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer rt.Close()

	var opts []worker.Option
	if !cfg.LocksSpanProcesses() {
		logger.Warn("Orphan repair disabled: set LOCK_BACKEND=redis to share locks with the server",
			"store_backend", cfg.StoreBackend, "lock_backend", cfg.LockBackend)
		opts = append(opts, worker.AuditOnly())
	}
	w := worker.NewReconcileWorker(rt.Engine.Reconciler, logger, opts...)
	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			rt.Close()
			cli.Fatal(logger, "Failed to initialize AMQP client", err)
		}
		defer consumer.Close()
		g.Go(func() error {
			return consumer.ConsumePaymentEvents(gctx, w.HandlePaymentEvent)
		})
	} else {
		logger.Info("Skipping payment event consumption - no AMQP_URL provided")
	}

	g.Go(func() error {
		return w.Run(gctx, cfg.ReconcileInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		rt.Close()
		cli.Fatal(logger, "Worker stopped with error", err)
	}
	logger.Info("Worker stopped gracefully")
}
