package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"billstack/internal/core"
	"billstack/internal/log"
)

// Ledger owns account balances. Every balance change goes through ApplyDelta
// and is serialized per account.
type Ledger struct {
	repo   *Repository
	clock  core.Clock
	logger *log.Logger
}

func NewLedger(repo *Repository, clock core.Clock, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.Nop()
	}
	return &Ledger{repo: repo, clock: clock, logger: logger.WithComponent(log.ComponentLedger)}
}

func accountLockKey(id string) string { return "account:" + id }

// ApplyDelta moves the balance of accountID by amount in direction dir.
// An unknown account fails with core.ErrAccountNotFound before any write.
func (l *Ledger) ApplyDelta(ctx context.Context, accountID string, amount core.Money, dir core.Direction) error {
	if amount.Cents < 0 {
		return fmt.Errorf("%w: negative delta", core.ErrInvalidAmount)
	}
	return l.applySigned(ctx, accountID, dir.Signed(amount))
}

func (l *Ledger) applySigned(ctx context.Context, accountID string, delta core.Money) error {
	unlock, err := l.repo.Lock(ctx, accountLockKey(accountID))
	if err != nil {
		return err
	}
	defer unlock()

	var balance core.Money
	err = l.repo.UpdateAccounts(ctx, func(accounts []core.Account) ([]core.Account, error) {
		i := indexOf(accounts, func(a core.Account) bool { return a.ID == accountID })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrAccountNotFound, accountID)
		}
		accounts[i].Balance = accounts[i].Balance.Add(delta)
		balance = accounts[i].Balance
		return accounts, nil
	})
	if err != nil {
		return fmt.Errorf("apply delta to %s: %w", accountID, err)
	}

	l.logger.DebugContext(ctx, "Balance updated",
		log.FieldAccountID, accountID,
		"delta_cents", delta.Cents,
		"balance_cents", balance.Cents)
	return nil
}

// CreateAccount stores a new account. Its balance becomes the opening
// balance. The first account created is the default one.
func (l *Ledger) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return core.Account{}, core.ErrEmptyName
	}
	if a.Type == "" {
		a.Type = core.Bank
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	a.ID = uuid.NewString()
	a.OpeningBalance = a.Balance
	a.CreatedAt = l.clock.Now()

	err := l.repo.UpdateAccounts(ctx, func(accounts []core.Account) ([]core.Account, error) {
		a.IsDefault = len(accounts) == 0
		return append(accounts, a), nil
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}

	l.logger.InfoContext(ctx, "Account created", log.FieldAccountID, a.ID, "default", a.IsDefault)
	return a, nil
}

// UpdateAccount changes the descriptive fields of an account. A changed
// balance is booked against the opening balance so the stored balance keeps
// matching its transactions.
func (l *Ledger) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return core.Account{}, core.ErrEmptyName
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}

	unlock, err := l.repo.Lock(ctx, accountLockKey(a.ID))
	if err != nil {
		return core.Account{}, err
	}
	defer unlock()

	var updated core.Account
	err = l.repo.UpdateAccounts(ctx, func(accounts []core.Account) ([]core.Account, error) {
		i := indexOf(accounts, func(x core.Account) bool { return x.ID == a.ID })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrAccountNotFound, a.ID)
		}
		cur := accounts[i]
		adjust := a.Balance.Sub(cur.Balance)
		cur.Name = a.Name
		cur.Type = a.Type
		cur.BankName = a.BankName
		cur.AccountNumber = a.AccountNumber
		cur.Balance = a.Balance
		cur.OpeningBalance = cur.OpeningBalance.Add(adjust)
		accounts[i] = cur
		updated = cur
		return accounts, nil
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("update account: %w", err)
	}
	return updated, nil
}

// SetDefault makes id the only default account.
func (l *Ledger) SetDefault(ctx context.Context, id string) error {
	err := l.repo.UpdateAccounts(ctx, func(accounts []core.Account) ([]core.Account, error) {
		if indexOf(accounts, func(a core.Account) bool { return a.ID == id }) < 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
		}
		for i := range accounts {
			accounts[i].IsDefault = accounts[i].ID == id
		}
		return accounts, nil
	})
	if err != nil {
		return fmt.Errorf("set default account: %w", err)
	}
	return nil
}

func (l *Ledger) Account(ctx context.Context, id string) (core.Account, error) {
	accounts, err := l.repo.Accounts(ctx)
	if err != nil {
		return core.Account{}, err
	}
	i := indexOf(accounts, func(a core.Account) bool { return a.ID == id })
	if i < 0 {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	return accounts[i], nil
}

// Accounts returns all accounts in creation order.
func (l *Ledger) Accounts(ctx context.Context) ([]core.Account, error) {
	accounts, err := l.repo.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(accounts, func(a, b core.Account) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return accounts, nil
}

// DefaultAccount returns the account flagged as default. ok is false when no
// account carries the flag.
func (l *Ledger) DefaultAccount(ctx context.Context) (acc core.Account, ok bool, err error) {
	accounts, err := l.repo.Accounts(ctx)
	if err != nil {
		return core.Account{}, false, err
	}
	for _, a := range accounts {
		if a.IsDefault {
			return a, true, nil
		}
	}
	return core.Account{}, false, nil
}

// TotalBalance sums the balances of all accounts.
func (l *Ledger) TotalBalance(ctx context.Context) (core.Money, error) {
	accounts, err := l.repo.Accounts(ctx)
	if err != nil {
		return core.Money{}, err
	}
	var total core.Money
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total, nil
}
