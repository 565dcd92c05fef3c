package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"billstack/internal/core"
	"billstack/internal/log"
)

// TransactionLog stores transactions. It never touches balances; callers
// apply the compensating ledger delta themselves.
type TransactionLog struct {
	repo   *Repository
	clock  core.Clock
	logger *log.Logger
}

func NewTransactionLog(repo *Repository, clock core.Clock, logger *log.Logger) *TransactionLog {
	if logger == nil {
		logger = log.Nop()
	}
	return &TransactionLog{repo: repo, clock: clock, logger: logger.WithComponent(log.ComponentTxnLog)}
}

// Create assigns an id and stores t.
func (tl *TransactionLog) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t.ID = uuid.NewString()
	if t.Date.IsZero() {
		t.Date = tl.clock.Now()
	}

	err := tl.repo.UpdateTransactions(ctx, func(txns []core.Transaction) ([]core.Transaction, error) {
		return append(txns, t), nil
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	tl.logger.DebugContext(ctx, "Transaction created",
		log.FieldTxnID, t.ID,
		log.FieldAccountID, t.AccountID,
		log.FieldAmountCents, t.Amount.Cents)
	return t, nil
}

// Update applies patch to the transaction with the given id.
func (tl *TransactionLog) Update(ctx context.Context, id string, patch core.TransactionPatch) error {
	err := tl.repo.UpdateTransactions(ctx, func(txns []core.Transaction) ([]core.Transaction, error) {
		i := indexOf(txns, func(t core.Transaction) bool { return t.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
		}
		next := patch.Apply(txns[i])
		if err := next.Validate(); err != nil {
			return nil, err
		}
		txns[i] = next
		return txns, nil
	})
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

// Delete removes the transaction with the given id.
func (tl *TransactionLog) Delete(ctx context.Context, id string) error {
	err := tl.repo.UpdateTransactions(ctx, func(txns []core.Transaction) ([]core.Transaction, error) {
		i := indexOf(txns, func(t core.Transaction) bool { return t.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
		}
		return slices.Delete(txns, i, i+1), nil
	})
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (tl *TransactionLog) Get(ctx context.Context, id string) (core.Transaction, error) {
	txns, err := tl.repo.Transactions(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	i := indexOf(txns, func(t core.Transaction) bool { return t.ID == id })
	if i < 0 {
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
	}
	return txns[i], nil
}

// List returns every transaction, newest first.
func (tl *TransactionLog) List(ctx context.Context) ([]core.Transaction, error) {
	return tl.filter(ctx, nil)
}

// ListByPeriod returns the transactions dated inside p, newest first.
func (tl *TransactionLog) ListByPeriod(ctx context.Context, p core.Period) ([]core.Transaction, error) {
	return tl.filter(ctx, func(t core.Transaction) bool { return p.Contains(t.Date) })
}

// ListByBill returns the transactions created for a bill.
func (tl *TransactionLog) ListByBill(ctx context.Context, billID string) ([]core.Transaction, error) {
	return tl.filter(ctx, func(t core.Transaction) bool { return t.BillID == billID })
}

func (tl *TransactionLog) filter(ctx context.Context, keep func(core.Transaction) bool) ([]core.Transaction, error) {
	txns, err := tl.repo.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(txns))
	for _, t := range txns {
		if keep == nil || keep(t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Transaction) int { return b.Date.Compare(a.Date) })
	return out, nil
}
