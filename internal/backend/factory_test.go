package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"billstack/internal/config"
	"billstack/internal/core"
	"billstack/internal/services"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "memory", config: Config{Type: MemoryBackend, LockType: MemoryLock}},
		{name: "unknown type", config: Config{Type: "etcd", LockType: MemoryLock}, wantErr: "invalid backend type"},
		{name: "unknown lock", config: Config{Type: MemoryBackend, LockType: "zk"}, wantErr: "invalid lock type"},
		{name: "sqlite without path", config: Config{Type: SQLiteBackend, LockType: MemoryLock}, wantErr: "SQLite database path"},
		{name: "redis without addr", config: Config{Type: RedisBackend, LockType: MemoryLock}, wantErr: "Redis address"},
		{name: "redis lock without addr", config: Config{Type: MemoryBackend, LockType: RedisLock}, wantErr: "redis locks"},
		{
			name:    "offline copy on the primary file",
			config:  Config{Type: SQLiteBackend, SQLiteDBPath: "a.db", OfflineCachePath: "a.db", LockType: MemoryLock},
			wantErr: "must differ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{
		StoreBackend: "redis",
		RedisAddr:    "localhost:6379",
		LockBackend:  "redis",
		LockTTL:      10 * time.Second,
		CacheSize:    8,
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != RedisBackend || cfg.LockType != RedisLock || cfg.LockTTL != 10*time.Second || cfg.CacheSize != 8 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("nil config accepted")
	}
	if _, err := FromAppConfig(&config.Config{StoreBackend: "etcd", LockBackend: "memory"}); err == nil {
		t.Fatal("unknown backend accepted")
	}
}

// payOnce drives one bill payment through an engine built on the backend.
func payOnce(t *testing.T, res *BackendResult) {
	t.Helper()
	ctx := context.Background()
	engine := res.Engine("u1", services.EngineConfig{})

	acc, err := engine.Ledger.CreateAccount(ctx, core.Account{Name: "Main", Balance: core.Cents(10000)})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	bill, err := engine.Bills.CreateBill(ctx, core.Bill{
		Name: "Internet", Category: "Utilities", Amount: core.Cents(2500),
		DueDay: 5, Frequency: core.Monthly, AccountID: acc.ID,
	})
	if err != nil {
		t.Fatalf("CreateBill: %v", err)
	}
	receipt, err := engine.Coordinator.MarkBillAsPaid(ctx, bill.ID, "")
	if err != nil || receipt == nil {
		t.Fatalf("MarkBillAsPaid = %v, %v", receipt, err)
	}

	reloaded, err := engine.Ledger.Account(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Balance.Cents != 7500 {
		t.Fatalf("balance = %d, want 7500", reloaded.Balance.Cents)
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type: MemoryBackend, LockType: MemoryLock, CacheSize: 16, CacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	if len(res.Caches) != 1 {
		t.Fatalf("caches = %d, want 1", len(res.Caches))
	}
	payOnce(t, res)
}

func TestCreateBackend_SQLiteWithOfflineCopy(t *testing.T) {
	dir := t.TempDir()
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:             SQLiteBackend,
		SQLiteDBPath:     filepath.Join(dir, "primary.db"),
		OfflineCachePath: filepath.Join(dir, "offline.db"),
		LockType:         MemoryLock,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	payOnce(t, res)
}

func TestCreateBackend_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:      RedisBackend,
		RedisAddr: mr.Addr(),
		LockType:  RedisLock,
		LockTTL:   5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	payOnce(t, res)
	if !mr.Exists("users/u1/data/bills") {
		t.Fatalf("bills document not written, keys = %v", mr.Keys())
	}
}

func TestCreateBackend_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewFactory(nil).CreateBackend(ctx, Config{Type: RedisBackend, RedisAddr: addr, LockType: MemoryLock}); err == nil {
		t.Fatal("expected connection error")
	}
}
