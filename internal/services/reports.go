package services

import (
	"cmp"
	"context"
	"slices"

	"billstack/internal/core"
)

// Reports computes monthly summaries over the transaction log.
type Reports struct {
	txns   *TransactionLog
	ledger *Ledger
}

func NewReports(txns *TransactionLog, ledger *Ledger) *Reports {
	return &Reports{txns: txns, ledger: ledger}
}

func (r *Reports) MonthlyTransactions(ctx context.Context, year, month int) ([]core.Transaction, error) {
	p, err := core.NewPeriod(year, month)
	if err != nil {
		return nil, err
	}
	return r.txns.ListByPeriod(ctx, p)
}

func sumOf(txns []core.Transaction, typ core.TransactionType) core.Money {
	var total core.Money
	for _, t := range txns {
		if t.Type == typ {
			total = total.Add(t.Amount)
		}
	}
	return total
}

func (r *Reports) TotalIncome(ctx context.Context, year, month int) (core.Money, error) {
	txns, err := r.MonthlyTransactions(ctx, year, month)
	if err != nil {
		return core.Money{}, err
	}
	return sumOf(txns, core.Income), nil
}

func (r *Reports) TotalExpense(ctx context.Context, year, month int) (core.Money, error) {
	txns, err := r.MonthlyTransactions(ctx, year, month)
	if err != nil {
		return core.Money{}, err
	}
	return sumOf(txns, core.Expense), nil
}

// CategoryExpense groups the month's expenses by category, largest first.
func (r *Reports) CategoryExpense(ctx context.Context, year, month int) ([]core.CategoryAmount, error) {
	txns, err := r.MonthlyTransactions(ctx, year, month)
	if err != nil {
		return nil, err
	}
	return categoryExpense(txns), nil
}

func categoryExpense(txns []core.Transaction) []core.CategoryAmount {
	totals := make(map[string]core.Money)
	for _, t := range txns {
		if t.Type == core.Expense {
			totals[t.Category] = totals[t.Category].Add(t.Amount)
		}
	}
	out := make([]core.CategoryAmount, 0, len(totals))
	for name, amount := range totals {
		out = append(out, core.CategoryAmount{Name: name, Amount: amount})
	}
	slices.SortFunc(out, func(a, b core.CategoryAmount) int {
		if c := cmp.Compare(b.Amount.Cents, a.Amount.Cents); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// AccountActivity returns income and expense per account for the month, in
// account creation order. Accounts without activity are included.
func (r *Reports) AccountActivity(ctx context.Context, year, month int) ([]core.AccountActivity, error) {
	txns, err := r.MonthlyTransactions(ctx, year, month)
	if err != nil {
		return nil, err
	}
	accounts, err := r.ledger.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	return accountActivity(accounts, txns), nil
}

func accountActivity(accounts []core.Account, txns []core.Transaction) []core.AccountActivity {
	out := make([]core.AccountActivity, len(accounts))
	pos := make(map[string]int, len(accounts))
	for i, a := range accounts {
		out[i].Account = a.Name
		pos[a.ID] = i
	}
	for _, t := range txns {
		i, ok := pos[t.AccountID]
		if !ok {
			continue
		}
		if t.Type == core.Income {
			out[i].Income = out[i].Income.Add(t.Amount)
		} else {
			out[i].Expense = out[i].Expense.Add(t.Amount)
		}
	}
	return out
}

// Overview bundles the month's totals and breakdowns.
func (r *Reports) Overview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	txns, err := r.MonthlyTransactions(ctx, year, month)
	if err != nil {
		return core.MonthOverview{}, err
	}
	accounts, err := r.ledger.Accounts(ctx)
	if err != nil {
		return core.MonthOverview{}, err
	}
	return core.MonthOverview{
		Period:       core.Period{Year: year, Month: month},
		TotalIncome:  sumOf(txns, core.Income),
		TotalExpense: sumOf(txns, core.Expense),
		ByCategory:   categoryExpense(txns),
		ByAccount:    accountActivity(accounts, txns),
	}, nil
}
