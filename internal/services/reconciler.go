package services

import (
	"context"
	"fmt"

	"billstack/internal/core"
	"billstack/internal/log"
	"billstack/internal/metrics"
)

// Repair actions reported by RepairOrphan.
const (
	RepairAppended = "appended" // missing payment record added
	RepairReversed = "reversed" // balance restored and transaction deleted
	RepairDeleted  = "deleted"  // transaction deleted; balance never moved
	RepairNone     = "none"     // a payment record backs the transaction
)

// Violation rules reported by CheckBill.
const (
	RuleOnePerPeriod   = "one_record_per_period"
	RuleLinkedTxn      = "linked_transaction"
	RuleEMICount       = "emi_count"
	RuleOneTimeRecords = "one_time_records"
)

// Reconciler finds and repairs the states a partially applied payment can
// leave behind.
type Reconciler struct {
	repo    *Repository
	ledger  *Ledger
	txns    *TransactionLog
	metrics *metrics.Metrics
	logger  *log.Logger
}

func NewReconciler(repo *Repository, ledger *Ledger, txns *TransactionLog, m *metrics.Metrics, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Reconciler{repo: repo, ledger: ledger, txns: txns, metrics: m, logger: logger.WithComponent(log.ComponentReconciler)}
}

// linked reports whether txn is backed by a payment record on bill. Records
// written before transaction ids existed match on period and amount.
func linked(bill core.Bill, txn core.Transaction) bool {
	p := core.PeriodOf(txn.Date)
	for _, r := range bill.Payments {
		if r.TransactionID == txn.ID {
			return true
		}
		if r.TransactionID == "" && r.Year == p.Year && r.Month == p.Month && r.Amount == txn.Amount {
			return true
		}
	}
	return false
}

// FindOrphans returns the bill transactions with no matching payment record.
func (r *Reconciler) FindOrphans(ctx context.Context) ([]core.Transaction, error) {
	txns, err := r.repo.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	bills, err := r.repo.Bills(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]core.Bill, len(bills))
	for _, b := range bills {
		byID[b.ID] = b
	}

	var orphans []core.Transaction
	for _, t := range txns {
		if t.BillID == "" {
			continue
		}
		b, ok := byID[t.BillID]
		if !ok || !linked(b, t) {
			orphans = append(orphans, t)
		}
	}
	return orphans, nil
}

// RepairOrphan settles one orphaned transaction. If its bill has no record for
// the transaction's month and the account balance already includes it, the
// missing record is appended. Otherwise the transaction is undone.
//
// The orphan check is repeated under the bill lock: a transaction found while
// its payment was still in flight reports RepairNone and is left alone.
func (r *Reconciler) RepairOrphan(ctx context.Context, txnID string) (string, error) {
	txn, err := r.txns.Get(ctx, txnID)
	if err != nil {
		return "", err
	}
	if txn.BillID == "" {
		return "", fmt.Errorf("transaction %s is not a bill payment", txnID)
	}

	unlock, err := r.repo.Lock(ctx, billLockKey(txn.BillID))
	if err != nil {
		return "", err
	}
	defer unlock()

	if txn, err = r.txns.Get(ctx, txnID); err != nil {
		return "", err
	}
	bills, err := r.repo.Bills(ctx)
	if err != nil {
		return "", err
	}
	if i := indexOf(bills, func(b core.Bill) bool { return b.ID == txn.BillID }); i >= 0 && linked(bills[i], txn) {
		r.logger.InfoContext(ctx, "Transaction is not orphaned, nothing to repair",
			log.FieldTxnID, txnID, log.FieldBillID, txn.BillID)
		return RepairNone, nil
	}

	drift, err := r.accountDrift(ctx, txn.AccountID)
	if err != nil {
		return "", err
	}
	reflected := drift.IsZero()
	p := core.PeriodOf(txn.Date)

	action := ""
	if reflected {
		err = r.repo.UpdateBills(ctx, func(bills []core.Bill) ([]core.Bill, error) {
			i := indexOf(bills, func(b core.Bill) bool { return b.ID == txn.BillID })
			if i < 0 {
				return bills, nil
			}
			b := bills[i].Clone()
			if linked(b, txn) {
				action = RepairNone
				return bills, nil
			}
			if b.IsPaidFor(p) || b.InstallmentsComplete() || (!b.IsRecurring() && b.Status == core.StatusPaid) {
				return bills, nil
			}
			b.Payments = append(b.Payments, core.PaymentRecord{
				PaidAt:        txn.Date,
				Amount:        txn.Amount,
				Year:          p.Year,
				Month:         p.Month,
				TransactionID: txn.ID,
			})
			if b.IsEMI {
				b.EMIPaid++
			}
			if !b.IsRecurring() {
				b.Status = core.StatusPaid
			}
			b.RefreshLastPaid()
			bills[i] = b
			action = RepairAppended
			return bills, nil
		})
		if err != nil {
			return "", fmt.Errorf("repair orphan %s: %w", txnID, err)
		}
	}

	if action == "" {
		if reflected {
			if err := r.ledger.ApplyDelta(ctx, txn.AccountID, txn.Amount, txn.Direction().Invert()); err != nil {
				return "", fmt.Errorf("repair orphan %s: %w", txnID, err)
			}
			action = RepairReversed
		} else {
			action = RepairDeleted
		}
		if err := r.txns.Delete(ctx, txnID); err != nil {
			return "", fmt.Errorf("repair orphan %s: %w", txnID, err)
		}
	}

	if action == RepairNone {
		return action, nil
	}
	r.metrics.ObserveRepair(action)
	r.logger.InfoContext(ctx, "Orphaned transaction repaired",
		log.FieldTxnID, txnID, log.FieldBillID, txn.BillID, "action", action)
	return action, nil
}

// AuditBalances returns the accounts whose balance differs from their
// opening balance plus the signed sum of their transactions.
func (r *Reconciler) AuditBalances(ctx context.Context) ([]core.BalanceDrift, error) {
	accounts, err := r.repo.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	txns, err := r.repo.Transactions(ctx)
	if err != nil {
		return nil, err
	}

	sums := make(map[string]core.Money, len(accounts))
	for _, t := range txns {
		sums[t.AccountID] = sums[t.AccountID].Add(t.Effect())
	}

	var drifts []core.BalanceDrift
	for _, a := range accounts {
		expected := a.OpeningBalance.Add(sums[a.ID])
		if expected != a.Balance {
			drifts = append(drifts, core.BalanceDrift{AccountID: a.ID, Stored: a.Balance, Expected: expected})
		}
	}
	r.metrics.SetBalanceDrift(len(drifts))
	return drifts, nil
}

func (r *Reconciler) accountDrift(ctx context.Context, accountID string) (core.Money, error) {
	drifts, err := r.AuditBalances(ctx)
	if err != nil {
		return core.Money{}, err
	}
	for _, d := range drifts {
		if d.AccountID == accountID {
			return d.Difference(), nil
		}
	}
	return core.Money{}, nil
}

// CheckBill reports the consistency rules the bill breaks.
func (r *Reconciler) CheckBill(ctx context.Context, billID string) ([]core.Violation, error) {
	bills, err := r.repo.Bills(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(bills, func(b core.Bill) bool { return b.ID == billID })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrBillNotFound, billID)
	}
	bill := bills[i]

	txns, err := r.repo.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	txByID := make(map[string]core.Transaction, len(txns))
	for _, t := range txns {
		txByID[t.ID] = t
	}

	var out []core.Violation
	add := func(rule, format string, args ...any) {
		out = append(out, core.Violation{BillID: billID, Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}

	seen := make(map[core.Period]bool, len(bill.Payments))
	for _, rec := range bill.Payments {
		p := core.Period{Year: rec.Year, Month: rec.Month}
		if bill.IsRecurring() && seen[p] {
			add(RuleOnePerPeriod, "more than one record for %s", p)
		}
		seen[p] = true

		if rec.TransactionID == "" {
			continue
		}
		t, ok := txByID[rec.TransactionID]
		switch {
		case !ok:
			add(RuleLinkedTxn, "record %s references missing transaction %s", p, rec.TransactionID)
		case t.BillID != billID:
			add(RuleLinkedTxn, "transaction %s belongs to bill %q", t.ID, t.BillID)
		case t.Amount != rec.Amount:
			add(RuleLinkedTxn, "transaction %s amount %s differs from record %s", t.ID, t.Amount, rec.Amount)
		}
	}

	if !bill.IsRecurring() && len(bill.Payments) > 1 {
		add(RuleOneTimeRecords, "one-time bill has %d records", len(bill.Payments))
	}
	if bill.IsEMI {
		if bill.EMIPaid < len(bill.Payments) {
			add(RuleEMICount, "emiPaid %d is below the %d records", bill.EMIPaid, len(bill.Payments))
		}
		if bill.EMIPaid > bill.EMITenure {
			add(RuleEMICount, "emiPaid %d exceeds tenure %d", bill.EMIPaid, bill.EMITenure)
		}
	}
	return out, nil
}
