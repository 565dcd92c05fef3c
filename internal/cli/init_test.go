package cli

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"billstack/internal/config"
	"billstack/internal/core"
	"billstack/internal/log"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Port:          "8081",
		UserID:        "u1",
		StoreBackend:  "memory",
		LockBackend:   "memory",
		CadenceAnchor: "creation",
		LogFormat:     "json",
		LogLevel:      "debug",
	}
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger(memoryConfig(), log.ComponentWorker)
	if logger.Component() != log.ComponentWorker {
		t.Fatalf("component = %q", logger.Component())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug level not enabled")
	}

	if SetupLogger(nil, "") == nil {
		t.Fatal("nil config should fall back to defaults")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("PORT", "8099")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8099" {
		t.Fatalf("port = %q", cfg.Port)
	}

	t.Setenv("STORE_BACKEND", "etcd")
	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "invalid store backend") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewRuntime(t *testing.T) {
	ctx := context.Background()
	rt, err := NewRuntime(ctx, memoryConfig(), log.Nop(), Options{Metrics: true, Publish: true})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer rt.Close()

	if rt.Metrics == nil || rt.Registry == nil {
		t.Fatal("metrics not wired")
	}
	if rt.Publisher != nil {
		t.Fatal("publisher connected without AMQP_URL")
	}
	if _, err := rt.Engine.Ledger.CreateAccount(ctx, core.Account{Name: "Main"}); err != nil {
		t.Fatalf("engine unusable: %v", err)
	}

	bad := memoryConfig()
	bad.CadenceAnchor = "fiscal"
	if _, err := NewRuntime(ctx, bad, log.Nop(), Options{}); err == nil {
		t.Fatal("bad anchor accepted")
	}
}
