package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"billstack/internal/amqp"
	"billstack/internal/core"
	"billstack/internal/docstore"
	"billstack/internal/lock"
	"billstack/internal/services"
)

var march = time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *services.Engine {
	t.Helper()
	repo := services.NewRepository(docstore.NewMemory(), lock.NewKeyedMutex(), "u1", nil)
	return services.NewEngine(repo, services.EngineConfig{Clock: core.FixedClock{T: march}})
}

func seedPaidBill(t *testing.T, e *services.Engine) (core.Account, core.Bill) {
	t.Helper()
	ctx := context.Background()
	acc, err := e.Ledger.CreateAccount(ctx, core.Account{Name: "Main", Balance: core.Cents(10000)})
	if err != nil {
		t.Fatal(err)
	}
	bill, err := e.Bills.CreateBill(ctx, core.Bill{
		Name: "Rent", Category: "Housing", Amount: core.Cents(2500),
		DueDay: 5, Frequency: core.Monthly, AccountID: acc.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Coordinator.MarkBillAsPaid(ctx, bill.ID, ""); err != nil {
		t.Fatal(err)
	}
	return acc, bill
}

func TestHandlePaymentEvent(t *testing.T) {
	e := newEngine(t)
	_, bill := seedPaidBill(t, e)
	w := NewReconcileWorker(e.Reconciler, nil)
	ctx := context.Background()

	msg := amqp.NewPaymentEventMessage(core.PaymentEvent{Type: core.EventBillPaid, BillID: bill.ID})
	if err := w.HandlePaymentEvent(ctx, msg); err != nil {
		t.Fatalf("HandlePaymentEvent: %v", err)
	}

	gone := amqp.NewPaymentEventMessage(core.PaymentEvent{Type: core.EventBillPaymentUndone, BillID: "deleted"})
	if err := w.HandlePaymentEvent(ctx, gone); err != nil {
		t.Fatalf("missing bill should be acknowledged, got %v", err)
	}
}

type failingReconciler struct {
	*services.Reconciler
	err error
}

func (f failingReconciler) CheckBill(context.Context, string) ([]core.Violation, error) {
	return nil, f.err
}

func TestHandlePaymentEvent_StorageErrorRequeues(t *testing.T) {
	w := NewReconcileWorker(failingReconciler{err: core.ErrPersistence}, nil)
	msg := amqp.NewPaymentEventMessage(core.PaymentEvent{Type: core.EventBillPaid, BillID: "b1"})
	if err := w.HandlePaymentEvent(context.Background(), msg); !errors.Is(err, core.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
}

func TestSweep(t *testing.T) {
	e := newEngine(t)
	acc, bill := seedPaidBill(t, e)
	ctx := context.Background()

	// A bill transaction written without its balance change or payment
	// record, as left by a crash after the first saga step.
	orphan, err := e.Txns.Create(ctx, core.Transaction{
		Type: core.Expense, Amount: core.Cents(2500), Category: "Housing",
		AccountID: acc.ID, Date: march.AddDate(0, -1, 0), BillID: bill.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	w := NewReconcileWorker(e.Reconciler, nil)
	res, err := w.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Orphans != 1 || res.Repaired[services.RepairDeleted] != 1 || res.Failed != 0 {
		t.Fatalf("sweep result = %+v", res)
	}
	if len(res.Drifts) != 0 {
		t.Fatalf("drifts after repair = %+v", res.Drifts)
	}
	if _, err := e.Txns.Get(ctx, orphan.ID); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("orphan still present: %v", err)
	}

	res, err = w.Sweep(ctx)
	if err != nil || res.Orphans != 0 {
		t.Fatalf("second sweep = %+v, %v", res, err)
	}
}

func TestSweep_AuditOnly(t *testing.T) {
	e := newEngine(t)
	acc, bill := seedPaidBill(t, e)
	ctx := context.Background()

	orphan, err := e.Txns.Create(ctx, core.Transaction{
		Type: core.Expense, Amount: core.Cents(2500), Category: "Housing",
		AccountID: acc.ID, Date: march.AddDate(0, -1, 0), BillID: bill.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := NewReconcileWorker(e.Reconciler, nil, AuditOnly()).Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Orphans != 1 || res.Skipped != 1 || len(res.Repaired) != 0 {
		t.Fatalf("sweep result = %+v", res)
	}
	if len(res.Drifts) != 1 || res.Drifts[0].AccountID != acc.ID {
		t.Fatalf("drifts = %+v, want the orphan's account", res.Drifts)
	}
	if _, err := e.Txns.Get(ctx, orphan.ID); err != nil {
		t.Fatalf("orphan removed in audit-only mode: %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	e := newEngine(t)
	w := NewReconcileWorker(e.Reconciler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
