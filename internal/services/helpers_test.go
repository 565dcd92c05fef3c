package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"billstack/internal/core"
	"billstack/internal/docstore"
	"billstack/internal/lock"
)

const testUser = "u1"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testEnv struct {
	store  *docstore.Memory
	clock  *testClock
	engine *Engine
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
}

func newTestEnv(t *testing.T, now time.Time, opts ...func(*EngineConfig)) *testEnv {
	t.Helper()
	store := docstore.NewMemory()
	clock := &testClock{now: now}
	cfg := EngineConfig{Clock: clock}
	for _, o := range opts {
		o(&cfg)
	}
	repo := NewRepository(store, lock.NewKeyedMutex(), testUser, cfg.Logger)
	return &testEnv{store: store, clock: clock, engine: NewEngine(repo, cfg)}
}

func (e *testEnv) account(t *testing.T, name string, balance int64) core.Account {
	t.Helper()
	a, err := e.engine.Ledger.CreateAccount(context.Background(), core.Account{
		Name:    name,
		Type:    core.Bank,
		Balance: core.Cents(balance),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func (e *testEnv) bill(t *testing.T, b core.Bill) core.Bill {
	t.Helper()
	if b.Name == "" {
		b.Name = "Electricity"
	}
	if b.Category == "" {
		b.Category = "Utilities"
	}
	if b.DueDay == 0 {
		b.DueDay = 15
	}
	if b.Frequency == "" {
		b.Frequency = core.Monthly
	}
	created, err := e.engine.Bills.CreateBill(context.Background(), b)
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	return created
}

func (e *testEnv) balance(t *testing.T, id string) int64 {
	t.Helper()
	a, err := e.engine.Ledger.Account(context.Background(), id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return a.Balance.Cents
}

func (e *testEnv) reload(t *testing.T, id string) core.Bill {
	t.Helper()
	b, err := e.engine.Bills.Bill(context.Background(), id)
	if err != nil {
		t.Fatalf("get bill: %v", err)
	}
	return b
}

// assertBalanced fails if any account drifted from its transactions.
func (e *testEnv) assertBalanced(t *testing.T) {
	t.Helper()
	drifts, err := e.engine.Reconciler.AuditBalances(context.Background())
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("balance drift: %+v", drifts)
	}
}

func ids(bills []core.Bill) map[string]bool {
	out := make(map[string]bool, len(bills))
	for _, b := range bills {
		out[b.ID] = true
	}
	return out
}
