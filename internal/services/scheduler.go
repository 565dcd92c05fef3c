package services

import (
	"context"
	"fmt"
	"slices"

	"billstack/internal/core"
	"billstack/internal/log"
)

// Scheduler answers which bills are pending, overdue or coming up, and what
// a bill costs in a given month.
type Scheduler struct {
	repo   *Repository
	clock  core.Clock
	anchor CadenceAnchor
	logger *log.Logger
}

func NewScheduler(repo *Repository, clock core.Clock, anchor CadenceAnchor, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Nop()
	}
	if anchor == "" {
		anchor = AnchorCalendar
	}
	return &Scheduler{repo: repo, clock: clock, anchor: anchor, logger: logger.WithComponent(log.ComponentScheduler)}
}

// isDue reports whether the bill has an occurrence in p. Unknown frequencies
// are logged and treated as not due.
func (s *Scheduler) isDue(ctx context.Context, b core.Bill, p core.Period) bool {
	checker, err := GetCadenceChecker(b.Frequency)
	if err != nil {
		s.logger.WarnContext(ctx, "Skipping bill with unknown frequency", log.FieldBillID, b.ID, log.FieldError, err)
		return false
	}
	return checker.IsDue(b, p, s.anchor)
}

// PendingBills returns the bills still to be paid in the given month. EMI
// bills with every installment paid are never pending.
func (s *Scheduler) PendingBills(ctx context.Context, year, month int) ([]core.Bill, error) {
	p, err := core.NewPeriod(year, month)
	if err != nil {
		return nil, err
	}
	bills, err := s.repo.Bills(ctx)
	if err != nil {
		return nil, err
	}

	var pending []core.Bill
	for _, b := range bills {
		if b.IsPaidFor(p) || b.InstallmentsComplete() {
			continue
		}
		if !b.IsRecurring() {
			if b.Status == core.StatusPending {
				pending = append(pending, b)
			}
			continue
		}
		if s.isDue(ctx, b, p) {
			pending = append(pending, b)
		}
	}
	sortByDueDay(pending)
	return pending, nil
}

// OverdueBills returns copies, marked overdue, of the bills whose due day
// has passed this month without a payment. Stored bills are not modified.
func (s *Scheduler) OverdueBills(ctx context.Context) ([]core.Bill, error) {
	today := s.clock.Now()
	p := core.PeriodOf(today)

	bills, err := s.repo.Bills(ctx)
	if err != nil {
		return nil, err
	}

	var overdue []core.Bill
	for _, b := range bills {
		if (!b.IsRecurring() && b.Status != core.StatusPending) || b.InstallmentsComplete() {
			continue
		}
		if b.DueDay < today.Day() && !b.IsPaidFor(p) {
			c := b.Clone()
			c.Status = core.StatusOverdue
			overdue = append(overdue, c)
		}
	}
	sortByDueDay(overdue)
	return overdue, nil
}

// DisplayStatus derives the status to show for bill in period p. For
// recurring bills the stored status is ignored.
func (s *Scheduler) DisplayStatus(b core.Bill, p core.Period) core.BillStatus {
	if !b.IsRecurring() && b.Status == core.StatusPaid {
		return core.StatusPaid
	}
	if b.IsPaidFor(p) || b.InstallmentsComplete() {
		return core.StatusPaid
	}

	today := s.clock.Now()
	cur := core.PeriodOf(today)
	switch {
	case p.Start().Before(cur.Start()):
		return core.StatusOverdue
	case p == cur && b.DueDay < today.Day():
		return core.StatusOverdue
	}
	return core.StatusPending
}

// RemindersDue returns the unpaid bills falling due this month within their
// reminder window, counting today.
func (s *Scheduler) RemindersDue(ctx context.Context) ([]core.Bill, error) {
	today := s.clock.Now()
	p := core.PeriodOf(today)

	pending, err := s.PendingBills(ctx, p.Year, p.Month)
	if err != nil {
		return nil, err
	}

	var due []core.Bill
	for _, b := range pending {
		day := min(b.DueDay, p.DaysIn())
		left := day - today.Day()
		if left >= 0 && left <= b.ReminderDays {
			due = append(due, b)
		}
	}
	return due, nil
}

// MonthlyAmount returns what the bill costs in the given month: the override
// if one was set, otherwise the bill's amount.
func (s *Scheduler) MonthlyAmount(ctx context.Context, b core.Bill, year, month int) (core.Money, error) {
	if _, err := core.NewPeriod(year, month); err != nil {
		return core.Money{}, err
	}
	overrides, err := s.repo.Overrides(ctx)
	if err != nil {
		return core.Money{}, err
	}
	if i := indexOf(overrides, overrideMatch(b.ID, year, month)); i >= 0 {
		return overrides[i].Amount, nil
	}
	return b.Amount, nil
}

// SetMonthlyAmount overrides the amount of one bill for one month without
// touching the bill itself.
func (s *Scheduler) SetMonthlyAmount(ctx context.Context, billID string, year, month int, amount core.Money) error {
	if _, err := core.NewPeriod(year, month); err != nil {
		return err
	}
	if err := amount.Validate(); err != nil {
		return err
	}
	bills, err := s.repo.Bills(ctx)
	if err != nil {
		return err
	}
	if indexOf(bills, func(b core.Bill) bool { return b.ID == billID }) < 0 {
		return fmt.Errorf("%w: %s", core.ErrBillNotFound, billID)
	}

	err = s.repo.UpdateOverrides(ctx, func(overrides []core.AmountOverride) ([]core.AmountOverride, error) {
		if i := indexOf(overrides, overrideMatch(billID, year, month)); i >= 0 {
			overrides[i].Amount = amount
			return overrides, nil
		}
		return append(overrides, core.AmountOverride{BillID: billID, Year: year, Month: month, Amount: amount}), nil
	})
	if err != nil {
		return fmt.Errorf("set monthly amount: %w", err)
	}
	return nil
}

// ClearMonthlyAmount drops an override. Clearing an absent override is a no-op.
func (s *Scheduler) ClearMonthlyAmount(ctx context.Context, billID string, year, month int) error {
	err := s.repo.UpdateOverrides(ctx, func(overrides []core.AmountOverride) ([]core.AmountOverride, error) {
		return slices.DeleteFunc(overrides, overrideMatch(billID, year, month)), nil
	})
	if err != nil {
		return fmt.Errorf("clear monthly amount: %w", err)
	}
	return nil
}

func overrideMatch(billID string, year, month int) func(core.AmountOverride) bool {
	return func(o core.AmountOverride) bool {
		return o.BillID == billID && o.Year == year && o.Month == month
	}
}

func sortByDueDay(bills []core.Bill) {
	slices.SortStableFunc(bills, func(a, b core.Bill) int { return a.DueDay - b.DueDay })
}
