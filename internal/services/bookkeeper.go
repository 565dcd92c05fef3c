package services

import (
	"context"
	"fmt"

	"billstack/internal/core"
	"billstack/internal/log"
)

// Bookkeeper handles user-entered transactions, keeping the ledger in step
// with every create, edit and delete.
type Bookkeeper struct {
	ledger *Ledger
	txns   *TransactionLog
	logger *log.Logger
}

func NewBookkeeper(ledger *Ledger, txns *TransactionLog, logger *log.Logger) *Bookkeeper {
	if logger == nil {
		logger = log.Nop()
	}
	return &Bookkeeper{ledger: ledger, txns: txns, logger: logger.WithComponent(log.ComponentTxnLog)}
}

// balanceChange is one delta already applied to an account.
type balanceChange struct {
	accountID string
	delta     core.Money
}

// apply moves the balance and remembers the change.
func (b *Bookkeeper) apply(ctx context.Context, applied *[]balanceChange, accountID string, delta core.Money) error {
	if delta.IsZero() {
		return nil
	}
	if err := b.ledger.applySigned(ctx, accountID, delta); err != nil {
		return err
	}
	*applied = append(*applied, balanceChange{accountID: accountID, delta: delta})
	return nil
}

// revert takes back applied changes, newest first. It runs after a failed
// write and ignores ctx cancellation.
func (b *Bookkeeper) revert(ctx context.Context, applied []balanceChange) {
	rctx := context.WithoutCancel(ctx)
	for i := len(applied) - 1; i >= 0; i-- {
		c := applied[i]
		if err := b.ledger.applySigned(rctx, c.accountID, c.delta.Neg()); err != nil {
			b.logger.ErrorContext(ctx, "Failed to revert balance after write failure",
				log.FieldAccountID, c.accountID, log.FieldAmountCents, c.delta.Cents, log.FieldError, err)
		}
	}
}

// Record books a manual transaction and moves its account's balance.
func (b *Bookkeeper) Record(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	acc, err := b.ledger.Account(ctx, t.AccountID)
	if err != nil {
		return core.Transaction{}, err
	}
	t.AccountName = acc.Name
	t.BankName = acc.BankName
	t.IsManual = true

	var applied []balanceChange
	if err := b.apply(ctx, &applied, t.AccountID, t.Effect()); err != nil {
		return core.Transaction{}, err
	}

	created, err := b.txns.Create(ctx, t)
	if err != nil {
		b.revert(ctx, applied)
		return core.Transaction{}, err
	}
	return created, nil
}

// touchesPayment reports whether the patch changes a field a payment record
// mirrors: type, amount, account or date.
func touchesPayment(old, next core.Transaction) bool {
	return next.Type != old.Type ||
		next.Amount != old.Amount ||
		next.AccountID != old.AccountID ||
		!next.Date.Equal(old.Date)
}

// Edit applies a user edit. When only the amount (or descriptive fields)
// change, the signed difference is applied to the same account. When the
// account or the type changes, the old effect is reversed on the old account
// and the new effect applied on the new one.
//
// Bill payment transactions only take descriptive edits; anything else is
// core.ErrBillPayment and goes through UndoBillPayment.
func (b *Bookkeeper) Edit(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	old, err := b.txns.Get(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	next := patch.Apply(old)
	if err := next.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if old.BillID != "" && touchesPayment(old, next) {
		return core.Transaction{}, fmt.Errorf("edit transaction %s: %w", id, core.ErrBillPayment)
	}

	if next.AccountID != old.AccountID {
		acc, err := b.ledger.Account(ctx, next.AccountID)
		if err != nil {
			return core.Transaction{}, err
		}
		if patch.AccountName == nil {
			patch.AccountName = &acc.Name
		}
		if patch.BankName == nil {
			patch.BankName = &acc.BankName
		}
		next = patch.Apply(old)
	}

	var applied []balanceChange
	if next.AccountID == old.AccountID {
		err = b.apply(ctx, &applied, old.AccountID, next.Effect().Sub(old.Effect()))
	} else {
		err = b.apply(ctx, &applied, old.AccountID, old.Effect().Neg())
		if err == nil {
			err = b.apply(ctx, &applied, next.AccountID, next.Effect())
		}
	}
	if err != nil {
		b.revert(ctx, applied)
		return core.Transaction{}, err
	}

	if err := b.txns.Update(ctx, id, patch); err != nil {
		b.revert(ctx, applied)
		return core.Transaction{}, err
	}

	b.logger.InfoContext(ctx, "Transaction edited",
		log.FieldTxnID, id,
		log.FieldAccountID, next.AccountID,
		log.FieldAmountCents, next.Amount.Cents)
	return next, nil
}

// Remove reverses a transaction's effect on its account and deletes it. Bill
// payment transactions are refused with core.ErrBillPayment.
func (b *Bookkeeper) Remove(ctx context.Context, id string) error {
	old, err := b.txns.Get(ctx, id)
	if err != nil {
		return err
	}
	if old.BillID != "" {
		return fmt.Errorf("remove transaction %s: %w", id, core.ErrBillPayment)
	}

	var applied []balanceChange
	if err := b.apply(ctx, &applied, old.AccountID, old.Effect().Neg()); err != nil {
		return fmt.Errorf("reverse transaction %s: %w", id, err)
	}
	if err := b.txns.Delete(ctx, id); err != nil {
		b.revert(ctx, applied)
		return err
	}
	return nil
}
