// Package worker runs the background consistency checks fed by payment
// events and a periodic sweep.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billstack/internal/amqp"
	"billstack/internal/core"
	"billstack/internal/log"
	"billstack/internal/services"
)

// Reconciler is the subset of services.Reconciler the worker drives.
type Reconciler interface {
	FindOrphans(ctx context.Context) ([]core.Transaction, error)
	RepairOrphan(ctx context.Context, txnID string) (string, error)
	AuditBalances(ctx context.Context) ([]core.BalanceDrift, error)
	CheckBill(ctx context.Context, billID string) ([]core.Violation, error)
}

var _ Reconciler = (*services.Reconciler)(nil)

// SweepResult summarizes one reconcile pass.
type SweepResult struct {
	Orphans  int
	Repaired map[string]int
	Skipped  int
	Failed   int
	Drifts   []core.BalanceDrift
}

// ReconcileWorker checks bills named by payment events and sweeps the store
// for orphaned payments and balance drift.
type ReconcileWorker struct {
	reconciler Reconciler
	logger     *log.Logger
	auditOnly  bool
}

type Option func(*ReconcileWorker)

// AuditOnly makes sweeps report orphans without repairing them. Use it when
// the worker's locks do not reach the process that serves payments.
func AuditOnly() Option {
	return func(w *ReconcileWorker) { w.auditOnly = true }
}

func NewReconcileWorker(r Reconciler, logger *log.Logger, opts ...Option) *ReconcileWorker {
	if logger == nil {
		logger = log.Nop()
	}
	w := &ReconcileWorker{reconciler: r, logger: logger.WithComponent(log.ComponentWorker)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandlePaymentEvent re-checks the bill an event refers to. Violations are
// logged, not returned, so the message is acknowledged; only storage errors
// ask for a redelivery.
func (w *ReconcileWorker) HandlePaymentEvent(ctx context.Context, msg *amqp.PaymentEventMessage) error {
	ev := msg.Event
	w.logger.InfoContext(ctx, "Processing payment event",
		"type", ev.Type,
		log.FieldBillID, ev.BillID,
		log.FieldTxnID, ev.TransactionID,
		log.FieldYear, ev.Year,
		log.FieldMonth, ev.Month)

	violations, err := w.reconciler.CheckBill(ctx, ev.BillID)
	if errors.Is(err, core.ErrBillNotFound) {
		w.logger.WarnContext(ctx, "Bill from payment event no longer exists", log.FieldBillID, ev.BillID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("check bill %s: %w", ev.BillID, err)
	}

	for _, v := range violations {
		w.logger.WarnContext(ctx, "Bill consistency violation",
			log.FieldBillID, v.BillID, "rule", v.Rule, log.FieldReason, v.Detail)
	}
	return nil
}

// Sweep repairs every orphaned bill transaction and then audits balances.
// A failed repair is logged and the sweep moves on. In audit-only mode the
// orphans are logged and counted as skipped.
func (w *ReconcileWorker) Sweep(ctx context.Context) (SweepResult, error) {
	res := SweepResult{Repaired: make(map[string]int)}

	orphans, err := w.reconciler.FindOrphans(ctx)
	if err != nil {
		return res, fmt.Errorf("find orphans: %w", err)
	}
	res.Orphans = len(orphans)

	for _, txn := range orphans {
		if w.auditOnly {
			w.logger.WarnContext(ctx, "Orphaned transaction left for repair",
				log.FieldTxnID, txn.ID, log.FieldBillID, txn.BillID)
			res.Skipped++
			continue
		}
		action, err := w.reconciler.RepairOrphan(ctx, txn.ID)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to repair orphaned transaction",
				log.FieldTxnID, txn.ID, log.FieldBillID, txn.BillID, log.FieldError, err)
			res.Failed++
			continue
		}
		if action == services.RepairNone {
			res.Skipped++
			continue
		}
		res.Repaired[action]++
	}

	drifts, err := w.reconciler.AuditBalances(ctx)
	if err != nil {
		return res, fmt.Errorf("audit balances: %w", err)
	}
	res.Drifts = drifts
	for _, d := range drifts {
		w.logger.WarnContext(ctx, "Account balance drift",
			log.FieldAccountID, d.AccountID,
			"stored_cents", d.Stored.Cents,
			"expected_cents", d.Expected.Cents)
	}

	w.logger.InfoContext(ctx, "Reconcile sweep completed",
		log.FieldOperation, log.OpReconcile,
		"orphans", res.Orphans,
		"repaired", res.Repaired,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"drifts", len(res.Drifts))
	return res, nil
}

// Run sweeps once at startup and then every interval until ctx is done.
func (w *ReconcileWorker) Run(ctx context.Context, interval time.Duration) error {
	if _, err := w.Sweep(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup sweep failed", log.FieldError, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic sweep failed", log.FieldError, err)
			}
		}
	}
}
