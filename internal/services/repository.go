// Package services provides the ledger, scheduling and payment orchestration
// on top of the document store.
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"billstack/internal/core"
	"billstack/internal/docstore"
	"billstack/internal/lock"
	"billstack/internal/log"
)

// Document names under users/<uid>/data/.
const (
	DocAccounts     = "accounts"
	DocTransactions = "transactions"
	DocBills        = "bills"
	DocBillAmounts  = "bill_amounts"
)

// Repository maps the per-user documents to typed slices. Every write is a
// read-modify-write of one document guarded by the "doc:<name>" lock, so two
// updates of the same document never lose each other's changes.
//
// Callers may hold entity locks (bill:, account:) while calling Update*, but
// a document lock is never held while acquiring another lock.
type Repository struct {
	store  docstore.Store
	locks  lock.Locker
	userID string
	logger *log.Logger
}

func NewRepository(store docstore.Store, locks lock.Locker, userID string, logger *log.Logger) *Repository {
	if logger == nil {
		logger = log.Nop()
	}
	return &Repository{store: store, locks: locks, userID: userID, logger: logger.WithComponent(log.ComponentStorage)}
}

// collection binds a document name to the JSON field holding its items.
type collection[T any] struct {
	repo  *Repository
	name  string
	field string
}

func (c collection[T]) key() string {
	return docstore.UserKey(c.repo.userID, c.name)
}

func (c collection[T]) load(ctx context.Context) ([]T, error) {
	raw, found, err := c.repo.store.Get(ctx, c.key())
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", core.ErrPersistence, c.name, err)
	}
	if !found || len(raw) == 0 {
		return nil, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", core.ErrPersistence, c.name, err)
	}
	field, ok := doc[c.field]
	if !ok || string(field) == "null" {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(field, &items); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", core.ErrPersistence, c.name, err)
	}
	return items, nil
}

func (c collection[T]) save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	body, err := json.Marshal(map[string][]T{c.field: items})
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", core.ErrPersistence, c.name, err)
	}
	if err := c.repo.store.Set(ctx, c.key(), body, docstore.Merge); err != nil {
		return fmt.Errorf("%w: save %s: %w", core.ErrPersistence, c.name, err)
	}
	return nil
}

// update runs fn over the current items and saves what it returns. An error
// from fn aborts the write and is returned as is.
func (c collection[T]) update(ctx context.Context, fn func([]T) ([]T, error)) error {
	unlock, err := c.repo.locks.Acquire(ctx, "doc:"+c.name)
	if err != nil {
		return fmt.Errorf("lock %s: %w", c.name, err)
	}
	defer unlock()

	items, err := c.load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(items)
	if err != nil {
		return err
	}
	if err := c.save(ctx, next); err != nil {
		c.repo.logger.ErrorContext(ctx, "Failed to save document", "doc", c.name, log.FieldError, err)
		return err
	}
	return nil
}

func (r *Repository) accounts() collection[core.Account] {
	return collection[core.Account]{repo: r, name: DocAccounts, field: "accounts"}
}

func (r *Repository) transactions() collection[core.Transaction] {
	return collection[core.Transaction]{repo: r, name: DocTransactions, field: "transactions"}
}

func (r *Repository) bills() collection[core.Bill] {
	return collection[core.Bill]{repo: r, name: DocBills, field: "bills"}
}

func (r *Repository) overrides() collection[core.AmountOverride] {
	return collection[core.AmountOverride]{repo: r, name: DocBillAmounts, field: "amounts"}
}

func (r *Repository) Accounts(ctx context.Context) ([]core.Account, error) {
	return r.accounts().load(ctx)
}

func (r *Repository) UpdateAccounts(ctx context.Context, fn func([]core.Account) ([]core.Account, error)) error {
	return r.accounts().update(ctx, fn)
}

func (r *Repository) Transactions(ctx context.Context) ([]core.Transaction, error) {
	return r.transactions().load(ctx)
}

func (r *Repository) UpdateTransactions(ctx context.Context, fn func([]core.Transaction) ([]core.Transaction, error)) error {
	return r.transactions().update(ctx, fn)
}

func (r *Repository) Bills(ctx context.Context) ([]core.Bill, error) {
	return r.bills().load(ctx)
}

func (r *Repository) UpdateBills(ctx context.Context, fn func([]core.Bill) ([]core.Bill, error)) error {
	return r.bills().update(ctx, fn)
}

func (r *Repository) Overrides(ctx context.Context) ([]core.AmountOverride, error) {
	return r.overrides().load(ctx)
}

func (r *Repository) UpdateOverrides(ctx context.Context, fn func([]core.AmountOverride) ([]core.AmountOverride, error)) error {
	return r.overrides().update(ctx, fn)
}

// Lock takes an entity lock such as "bill:<id>".
func (r *Repository) Lock(ctx context.Context, key string) (lock.Unlock, error) {
	unlock, err := r.locks.Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return unlock, nil
}

func indexOf[T any](items []T, match func(T) bool) int {
	for i, it := range items {
		if match(it) {
			return i
		}
	}
	return -1
}
