package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"billstack/internal/core"
	"billstack/internal/log"
	"billstack/internal/metrics"
)

// EventPublisher announces completed payments. Publishing is best effort.
type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, ev core.PaymentEvent) error
}

// PaymentCoordinator marks bills paid and undoes payments. Each operation
// writes the transaction, the account balance and the bill record in a fixed
// order; a failure part way leaves an orphaned transaction that the
// Reconciler can detect and repair.
type PaymentCoordinator struct {
	repo      *Repository
	ledger    *Ledger
	txns      *TransactionLog
	scheduler *Scheduler
	clock     core.Clock
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *log.Logger
	audit     *log.StructuredLogger
}

type CoordinatorOption func(*PaymentCoordinator)

func WithPublisher(p EventPublisher) CoordinatorOption {
	return func(c *PaymentCoordinator) { c.publisher = p }
}

func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *PaymentCoordinator) { c.metrics = m }
}

func NewPaymentCoordinator(repo *Repository, ledger *Ledger, txns *TransactionLog, scheduler *Scheduler, clock core.Clock, logger *log.Logger, opts ...CoordinatorOption) *PaymentCoordinator {
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.WithComponent(log.ComponentCoordinator)
	c := &PaymentCoordinator{
		repo:      repo,
		ledger:    ledger,
		txns:      txns,
		scheduler: scheduler,
		clock:     clock,
		logger:    logger,
		audit:     log.NewStructuredLogger(logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MarkBillAsPaid pays the bill for the current month from accountID, or from
// the bill's, the default or the first account when accountID is empty.
// It returns nil, nil when the bill is already paid for the month, has no
// EMI installments left or no account can be resolved;
// MarkBillAsPaidOutcome reports which.
func (c *PaymentCoordinator) MarkBillAsPaid(ctx context.Context, billID, accountID string) (*core.PaymentReceipt, error) {
	receipt, err := c.MarkBillAsPaidOutcome(ctx, billID, accountID)
	if isSoftRejection(err) {
		return nil, nil
	}
	return receipt, err
}

func isSoftRejection(err error) bool {
	return errors.Is(err, core.ErrDuplicatePaymentForPeriod) ||
		errors.Is(err, core.ErrInstallmentsComplete) ||
		errors.Is(err, core.ErrNoResolvableAccount)
}

// MarkBillAsPaidOutcome is MarkBillAsPaid with the soft rejections returned
// as core.ErrDuplicatePaymentForPeriod, core.ErrInstallmentsComplete or
// core.ErrNoResolvableAccount.
func (c *PaymentCoordinator) MarkBillAsPaidOutcome(ctx context.Context, billID, accountID string) (*core.PaymentReceipt, error) {
	start := time.Now()
	receipt, err := c.markPaid(ctx, billID, accountID)

	outcome := metrics.OutcomePaid
	switch {
	case errors.Is(err, core.ErrDuplicatePaymentForPeriod):
		outcome = metrics.OutcomeDuplicate
	case errors.Is(err, core.ErrInstallmentsComplete):
		outcome = metrics.OutcomeInstallmentsComplete
	case errors.Is(err, core.ErrNoResolvableAccount):
		outcome = metrics.OutcomeNoAccount
	case err != nil:
		outcome = metrics.OutcomeFailed
	}
	c.metrics.ObservePayment(outcome, time.Since(start))

	if isSoftRejection(err) {
		c.logger.InfoContext(ctx, "Bill payment rejected", log.FieldBillID, billID, log.FieldReason, err.Error())
	}
	return receipt, err
}

func (c *PaymentCoordinator) findBill(ctx context.Context, billID string) (core.Bill, error) {
	bills, err := c.repo.Bills(ctx)
	if err != nil {
		return core.Bill{}, err
	}
	i := indexOf(bills, func(b core.Bill) bool { return b.ID == billID })
	if i < 0 {
		return core.Bill{}, fmt.Errorf("%w: %s", core.ErrBillNotFound, billID)
	}
	return bills[i], nil
}

// resolveAccount picks the paying account: explicit, then the bill's, then
// the ledger default, then the oldest account.
func (c *PaymentCoordinator) resolveAccount(ctx context.Context, bill core.Bill, explicit string) (core.Account, error) {
	if explicit != "" {
		return c.ledger.Account(ctx, explicit)
	}
	accounts, err := c.ledger.Accounts(ctx)
	if err != nil {
		return core.Account{}, err
	}
	if bill.AccountID != "" {
		if i := indexOf(accounts, func(a core.Account) bool { return a.ID == bill.AccountID }); i >= 0 {
			return accounts[i], nil
		}
		c.logger.WarnContext(ctx, "Bill account no longer exists", log.FieldBillID, bill.ID, log.FieldAccountID, bill.AccountID)
	}
	if i := indexOf(accounts, func(a core.Account) bool { return a.IsDefault }); i >= 0 {
		return accounts[i], nil
	}
	if len(accounts) > 0 {
		return accounts[0], nil
	}
	return core.Account{}, core.ErrNoResolvableAccount
}

func (c *PaymentCoordinator) markPaid(ctx context.Context, billID, accountID string) (*core.PaymentReceipt, error) {
	bill, err := c.findBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	acc, err := c.resolveAccount(ctx, bill, accountID)
	if err != nil {
		return nil, err
	}

	unlock, err := c.repo.Lock(ctx, billLockKey(billID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Re-read under the lock; the copy above may predate a concurrent payment.
	bill, err = c.findBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	p := core.PeriodOf(now)
	if bill.IsPaidFor(p) || (!bill.IsRecurring() && bill.Status == core.StatusPaid) {
		return nil, fmt.Errorf("%w: %s %s", core.ErrDuplicatePaymentForPeriod, billID, p)
	}
	if bill.InstallmentsComplete() {
		return nil, fmt.Errorf("%w: %s %d/%d", core.ErrInstallmentsComplete, billID, bill.EMIPaid, bill.EMITenure)
	}

	amount, err := c.scheduler.MonthlyAmount(ctx, bill, p.Year, p.Month)
	if err != nil {
		return nil, err
	}

	txn, err := c.txns.Create(ctx, core.Transaction{
		Type:        core.Expense,
		Amount:      amount,
		Category:    bill.Category,
		AccountID:   acc.ID,
		AccountName: acc.Name,
		BankName:    acc.BankName,
		Description: "Bill payment: " + bill.Name,
		Date:        now,
		IsManual:    false,
		BillID:      bill.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment transaction: %w", err)
	}

	// The transaction is committed; from here on only Undo rolls back.
	wctx := context.WithoutCancel(ctx)

	if err := c.ledger.ApplyDelta(wctx, acc.ID, amount, core.Subtract); err != nil {
		c.logger.ErrorContext(ctx, "Payment left orphaned transaction",
			log.FieldTxnID, txn.ID, log.FieldBillID, billID, "step", "balance", log.FieldError, err)
		return nil, fmt.Errorf("debit account: %w", err)
	}

	record := core.PaymentRecord{
		PaidAt:        now,
		Amount:        amount,
		Year:          p.Year,
		Month:         p.Month,
		TransactionID: txn.ID,
	}
	err = c.repo.UpdateBills(wctx, func(bills []core.Bill) ([]core.Bill, error) {
		i := indexOf(bills, func(b core.Bill) bool { return b.ID == billID })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrBillNotFound, billID)
		}
		b := bills[i].Clone()
		b.Payments = append(b.Payments, record)
		if b.IsEMI {
			b.EMIPaid++
		}
		if b.IsRecurring() {
			b.Status = core.StatusPending
		} else {
			b.Status = core.StatusPaid
		}
		b.RefreshLastPaid()
		bills[i] = b
		return bills, nil
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Payment left orphaned transaction",
			log.FieldTxnID, txn.ID, log.FieldBillID, billID, "step", "record", log.FieldError, err)
		return nil, fmt.Errorf("append payment record: %w", err)
	}

	receipt := &core.PaymentReceipt{
		TransactionID: txn.ID,
		BillID:        billID,
		Year:          p.Year,
		Month:         p.Month,
		AccountID:     acc.ID,
		Amount:        amount,
	}
	c.audit.LogPayment(ctx, log.OpPay, billID, acc.ID, txn.ID, amount.Cents, p.Year, p.Month)
	c.publish(wctx, core.PaymentEvent{
		Type:          core.EventBillPaid,
		BillID:        billID,
		TransactionID: txn.ID,
		AccountID:     acc.ID,
		Year:          p.Year,
		Month:         p.Month,
		Amount:        amount,
		OccurredAt:    now,
	})
	return receipt, nil
}

// UndoBillPayment reverses a payment: it deletes the transaction, restores
// the balance when both AccountID and Amount are given, and removes the
// matching payment record. It is not meant to be repeated.
func (c *PaymentCoordinator) UndoBillPayment(ctx context.Context, req core.UndoRequest) (err error) {
	defer func() { c.metrics.ObserveUndo(err) }()

	if _, err := core.NewPeriod(req.Year, req.Month); err != nil {
		return err
	}
	if _, err := c.findBill(ctx, req.BillID); err != nil {
		return err
	}

	unlock, err := c.repo.Lock(ctx, billLockKey(req.BillID))
	if err != nil {
		return err
	}
	defer unlock()

	if req.TransactionID != "" {
		if err := c.txns.Delete(ctx, req.TransactionID); err != nil {
			return fmt.Errorf("undo payment: %w", err)
		}
	}
	wctx := context.WithoutCancel(ctx)

	if req.AccountID != "" && req.Amount != nil {
		if err := c.ledger.ApplyDelta(wctx, req.AccountID, *req.Amount, core.Add); err != nil {
			return fmt.Errorf("undo payment: restore balance: %w", err)
		}
	}

	removed := false
	err = c.repo.UpdateBills(wctx, func(bills []core.Bill) ([]core.Bill, error) {
		i := indexOf(bills, func(b core.Bill) bool { return b.ID == req.BillID })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrBillNotFound, req.BillID)
		}
		b := bills[i].Clone()
		if j := matchRecord(b.Payments, req); j >= 0 {
			b.Payments = slices.Delete(b.Payments, j, j+1)
			removed = true
			if b.IsEMI && b.EMIPaid > 0 {
				b.EMIPaid--
			}
		}
		if !b.IsRecurring() {
			b.Status = core.StatusPending
		}
		b.RefreshLastPaid()
		bills[i] = b
		return bills, nil
	})
	if err != nil {
		return fmt.Errorf("undo payment: remove record: %w", err)
	}
	if !removed {
		c.logger.WarnContext(ctx, "No payment record matched undo",
			log.FieldBillID, req.BillID, log.FieldTxnID, req.TransactionID, log.FieldYear, req.Year, log.FieldMonth, req.Month)
	}

	var amount core.Money
	if req.Amount != nil {
		amount = *req.Amount
	}
	c.audit.LogPayment(ctx, log.OpUndo, req.BillID, req.AccountID, req.TransactionID, amount.Cents, req.Year, req.Month)
	c.publish(wctx, core.PaymentEvent{
		Type:          core.EventBillPaymentUndone,
		BillID:        req.BillID,
		TransactionID: req.TransactionID,
		AccountID:     req.AccountID,
		Year:          req.Year,
		Month:         req.Month,
		Amount:        amount,
		OccurredAt:    c.clock.Now(),
	})
	return nil
}

// matchRecord finds the record the undo refers to: by transaction id first,
// then, for records without one, by year, month and amount.
func matchRecord(records []core.PaymentRecord, req core.UndoRequest) int {
	if req.TransactionID != "" {
		if j := indexOf(records, func(r core.PaymentRecord) bool { return r.TransactionID == req.TransactionID }); j >= 0 {
			return j
		}
	}
	return indexOf(records, func(r core.PaymentRecord) bool {
		if r.TransactionID != "" || r.Year != req.Year || r.Month != req.Month {
			return false
		}
		return req.Amount == nil || r.Amount == *req.Amount
	})
}

func (c *PaymentCoordinator) publish(ctx context.Context, ev core.PaymentEvent) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishPaymentEvent(ctx, ev); err != nil {
		c.logger.WarnContext(ctx, "Failed to publish payment event",
			"type", ev.Type, log.FieldBillID, ev.BillID, log.FieldError, err)
	}
}
