package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"billstack/internal/core"
	"billstack/internal/docstore"
)

func TestLedger_ApplyDelta(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, day(2024, time.May, 1))
	acc := env.account(t, "Main", 1000)

	tests := []struct {
		name   string
		amount int64
		dir    core.Direction
		want   int64
	}{
		{"add widens", 500, core.Add, 1500},
		{"subtract narrows", 2000, core.Subtract, -500},
		{"zero is a no-op", 0, core.Add, -500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := env.engine.Ledger.ApplyDelta(ctx, acc.ID, core.Cents(tt.amount), tt.dir); err != nil {
				t.Fatalf("ApplyDelta: %v", err)
			}
			if got := env.balance(t, acc.ID); got != tt.want {
				t.Errorf("balance = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLedger_ApplyDeltaUnknownAccountWritesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, day(2024, time.May, 1))
	env.account(t, "Main", 1000)

	writes := 0
	env.store.FailSet = func(string) error { writes++; return nil }

	err := env.engine.Ledger.ApplyDelta(ctx, "ghost", core.Cents(10), core.Add)
	if !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
	if writes != 0 {
		t.Fatalf("%d writes issued for unknown account", writes)
	}
}

func TestLedger_ApplyDeltaRejectsNegativeAmount(t *testing.T) {
	env := newTestEnv(t, day(2024, time.May, 1))
	acc := env.account(t, "Main", 1000)
	err := env.engine.Ledger.ApplyDelta(context.Background(), acc.ID, core.Cents(-1), core.Add)
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("err = %v", err)
	}
}

func TestLedger_ConcurrentDeltasDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, day(2024, time.May, 1))
	acc := env.account(t, "Main", 0)
	other := env.account(t, "Other", 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := env.engine.Ledger.ApplyDelta(ctx, acc.ID, core.Cents(10), core.Add); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := env.engine.Ledger.ApplyDelta(ctx, other.ID, core.Cents(1), core.Subtract); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := env.balance(t, acc.ID); got != 500 {
		t.Fatalf("balance = %d, want 500", got)
	}
	if got := env.balance(t, other.ID); got != -50 {
		t.Fatalf("other balance = %d, want -50", got)
	}
}

func TestLedger_DefaultAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, day(2024, time.May, 1))

	if _, ok, err := env.engine.Ledger.DefaultAccount(ctx); ok || err != nil {
		t.Fatalf("default with no accounts: ok=%v err=%v", ok, err)
	}

	first := env.account(t, "First", 100)
	second := env.account(t, "Second", 200)
	if !first.IsDefault || second.IsDefault {
		t.Fatalf("first default = %v, second default = %v", first.IsDefault, second.IsDefault)
	}

	if err := env.engine.Ledger.SetDefault(ctx, second.ID); err != nil {
		t.Fatal(err)
	}
	def, ok, err := env.engine.Ledger.DefaultAccount(ctx)
	if err != nil || !ok || def.ID != second.ID {
		t.Fatalf("default = %+v ok=%v err=%v", def, ok, err)
	}
	accounts, _ := env.engine.Ledger.Accounts(ctx)
	defaults := 0
	for _, a := range accounts {
		if a.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Fatalf("%d default accounts", defaults)
	}

	if err := env.engine.Ledger.SetDefault(ctx, "ghost"); !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("SetDefault(ghost) = %v", err)
	}

	total, err := env.engine.Ledger.TotalBalance(ctx)
	if err != nil || total.Cents != 300 {
		t.Fatalf("total = %v, %v", total, err)
	}
}

func TestLedger_UpdateAccountKeepsAuditClean(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, day(2024, time.May, 1))
	acc := env.account(t, "Main", 1000)

	if _, err := env.engine.Bookkeeper.Record(ctx, core.Transaction{
		Type: core.Expense, Amount: core.Cents(300), Category: "Food", AccountID: acc.ID,
	}); err != nil {
		t.Fatal(err)
	}

	acc.Name = "Checking"
	acc.Balance = core.Cents(2000)
	updated, err := env.engine.Ledger.UpdateAccount(ctx, acc)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "Checking" || updated.Balance.Cents != 2000 || updated.OpeningBalance.Cents != 2300 {
		t.Fatalf("updated = %+v", updated)
	}
	env.assertBalanced(t)
}

func TestLedger_CreateAccountValidation(t *testing.T) {
	env := newTestEnv(t, day(2024, time.May, 1))
	tests := []struct {
		name string
		acc  core.Account
		want error
	}{
		{"blank name", core.Account{Name: "  ", Type: core.Cash}, core.ErrEmptyName},
		{"bad type", core.Account{Name: "Main", Type: "crypto"}, core.ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.engine.Ledger.CreateAccount(context.Background(), tt.acc); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRepository_PersistsSetDocuments(t *testing.T) {
	env := newTestEnv(t, day(2024, time.May, 1))
	env.account(t, "Main", 1000)
	env.bill(t, core.Bill{Amount: core.Cents(10)})

	keys := env.store.Keys()
	want := []string{docstore.UserKey(testUser, DocAccounts), docstore.UserKey(testUser, DocBills)}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("keys = %v, want %v", keys, want)
	}

	doc, _, _ := env.store.Get(context.Background(), want[0])
	if !strings.Contains(string(doc), `"accounts":[`) {
		t.Fatalf("accounts document = %s", doc)
	}
}

func TestRepository_LoadErrorIsPersistence(t *testing.T) {
	env := newTestEnv(t, day(2024, time.May, 1))
	key := docstore.UserKey(testUser, DocAccounts)
	if err := env.store.Set(context.Background(), key, []byte(`{"accounts":"oops"}`), docstore.Replace); err != nil {
		t.Fatal(err)
	}
	if _, err := env.engine.Ledger.Accounts(context.Background()); !errors.Is(err, core.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
}
