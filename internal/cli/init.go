// Package cli provides the initialization shared by cmd/billstack,
// cmd/billstack-worker and cmd/billstackctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"billstack/internal/amqp"
	"billstack/internal/backend"
	"billstack/internal/config"
	"billstack/internal/log"
	"billstack/internal/metrics"
	"billstack/internal/services"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	lc.Component = component
	if cfg != nil {
		lc.Level = log.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads and validates the configuration.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Runtime is an engine over the configured backend plus what it owns.
type Runtime struct {
	Config    *config.Config
	Logger    *log.Logger
	Backend   *backend.BackendResult
	Engine    *services.Engine
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
	Publisher *amqp.Client
}

// Options selects the optional parts of a Runtime.
type Options struct {
	Metrics bool
	// Publish connects to AMQP when a URL is configured, so payments emit
	// events.
	Publish bool
}

// NewRuntime opens the backend and wires the engine for cfg.UserID.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *log.Logger, opts Options) (*Runtime, error) {
	anchor, err := services.ParseCadenceAnchor(cfg.CadenceAnchor)
	if err != nil {
		return nil, err
	}
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Logger: logger, Backend: res}
	if opts.Metrics {
		rt.Registry = prometheus.NewRegistry()
		rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rt.Metrics = metrics.New(rt.Registry)
	}

	ec := services.EngineConfig{Anchor: anchor, Logger: logger, Metrics: rt.Metrics}
	if opts.Publish && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("connect to AMQP: %w", err)
		}
		rt.Publisher = client
		ec.Publisher = client
		logger.Info("Payment events enabled", "exchange", cfg.AMQPExchange)
	}

	rt.Engine = res.Engine(cfg.UserID, ec)
	return rt, nil
}

// Close releases the publisher and the backend.
func (rt *Runtime) Close() error {
	if rt.Publisher != nil {
		if err := rt.Publisher.Close(); err != nil {
			rt.Logger.Warn("AMQP close failed", log.FieldError, err)
		}
	}
	return rt.Backend.Close()
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}()
	return ctx, cancel
}

// ShutdownContext bounds cleanup after the run context is gone.
func ShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// Fatal logs err and exits with status 1.
func Fatal(logger *log.Logger, msg string, err error) {
	logger.Error(msg, log.FieldError, err)
	os.Exit(1)
}
