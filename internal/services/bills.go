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

// BillBook manages bill templates. Payment state is owned by the
// PaymentCoordinator and is never changed here.
type BillBook struct {
	repo   *Repository
	ledger *Ledger
	clock  core.Clock
	logger *log.Logger
}

func NewBillBook(repo *Repository, ledger *Ledger, clock core.Clock, logger *log.Logger) *BillBook {
	if logger == nil {
		logger = log.Nop()
	}
	return &BillBook{repo: repo, ledger: ledger, clock: clock, logger: logger.WithComponent(log.ComponentBills)}
}

func billLockKey(id string) string { return "bill:" + id }

func normalizeBill(b *core.Bill) {
	b.Name = strings.TrimSpace(b.Name)
	b.Category = strings.TrimSpace(b.Category)
	if b.Status == "" {
		b.Status = core.StatusPending
	}
	if !b.IsEMI {
		b.EMITenure, b.EMIPaid = 0, 0
	}
}

func (bb *BillBook) checkAccount(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := bb.ledger.Account(ctx, id)
	return err
}

// CreateBill stores a new bill with no payments.
func (bb *BillBook) CreateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	normalizeBill(&b)
	b.Payments = nil
	b.LastPaidAt = nil
	if b.IsRecurring() {
		b.Status = core.StatusPending
	}
	if err := b.Validate(); err != nil {
		return core.Bill{}, err
	}
	if err := bb.checkAccount(ctx, b.AccountID); err != nil {
		return core.Bill{}, err
	}
	b.ID = uuid.NewString()
	b.CreatedAt = bb.clock.Now()

	err := bb.repo.UpdateBills(ctx, func(bills []core.Bill) ([]core.Bill, error) {
		return append(bills, b), nil
	})
	if err != nil {
		return core.Bill{}, fmt.Errorf("create bill: %w", err)
	}

	bb.logger.InfoContext(ctx, "Bill created", log.FieldBillID, b.ID, "frequency", b.Frequency)
	return b, nil
}

// UpdateBill replaces the template fields of a bill. Payments, the EMI
// counter and creation time are kept from the stored bill.
func (bb *BillBook) UpdateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	normalizeBill(&b)
	if err := bb.checkAccount(ctx, b.AccountID); err != nil {
		return core.Bill{}, err
	}

	unlock, err := bb.repo.Lock(ctx, billLockKey(b.ID))
	if err != nil {
		return core.Bill{}, err
	}
	defer unlock()

	var updated core.Bill
	err = bb.repo.UpdateBills(ctx, func(bills []core.Bill) ([]core.Bill, error) {
		i := indexOf(bills, func(x core.Bill) bool { return x.ID == b.ID })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrBillNotFound, b.ID)
		}
		cur := bills[i]
		cur.Name = b.Name
		cur.Category = b.Category
		cur.Amount = b.Amount
		cur.DueDay = b.DueDay
		cur.ReminderDays = b.ReminderDays
		cur.Frequency = b.Frequency
		cur.AccountID = b.AccountID
		cur.IsEMI = b.IsEMI
		cur.EMITenure = b.EMITenure
		if !cur.IsEMI {
			cur.EMITenure, cur.EMIPaid = 0, 0
		}
		if cur.IsRecurring() {
			cur.Status = core.StatusPending
		} else if b.Status == core.StatusPending || b.Status == core.StatusPaid {
			cur.Status = b.Status
		}
		if err := cur.Validate(); err != nil {
			return nil, err
		}
		bills[i] = cur
		updated = cur
		return bills, nil
	})
	if err != nil {
		return core.Bill{}, fmt.Errorf("update bill: %w", err)
	}
	return updated, nil
}

// DeleteBill removes a bill and its monthly overrides. Transactions created
// for the bill are kept.
func (bb *BillBook) DeleteBill(ctx context.Context, id string) error {
	unlock, err := bb.repo.Lock(ctx, billLockKey(id))
	if err != nil {
		return err
	}
	defer unlock()

	err = bb.repo.UpdateBills(ctx, func(bills []core.Bill) ([]core.Bill, error) {
		i := indexOf(bills, func(b core.Bill) bool { return b.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrBillNotFound, id)
		}
		return slices.Delete(bills, i, i+1), nil
	})
	if err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}

	err = bb.repo.UpdateOverrides(ctx, func(overrides []core.AmountOverride) ([]core.AmountOverride, error) {
		return slices.DeleteFunc(overrides, func(o core.AmountOverride) bool { return o.BillID == id }), nil
	})
	if err != nil {
		bb.logger.WarnContext(ctx, "Failed to drop overrides of deleted bill", log.FieldBillID, id, log.FieldError, err)
	}
	return nil
}

func (bb *BillBook) Bill(ctx context.Context, id string) (core.Bill, error) {
	bills, err := bb.repo.Bills(ctx)
	if err != nil {
		return core.Bill{}, err
	}
	i := indexOf(bills, func(b core.Bill) bool { return b.ID == id })
	if i < 0 {
		return core.Bill{}, fmt.Errorf("%w: %s", core.ErrBillNotFound, id)
	}
	return bills[i], nil
}

// Bills returns every bill ordered by due day.
func (bb *BillBook) Bills(ctx context.Context) ([]core.Bill, error) {
	bills, err := bb.repo.Bills(ctx)
	if err != nil {
		return nil, err
	}
	sortByDueDay(bills)
	return bills, nil
}
