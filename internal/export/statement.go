// Package export renders a month of ledger activity as an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"billstack/internal/core"
	"billstack/internal/services"
)

// Sheet names, in workbook order.
const (
	SheetSummary      = "Summary"
	SheetTransactions = "Transactions"
	SheetBills        = "Bills"
	SheetAccounts     = "Accounts"
)

// BillLine is one bill as it stands in the statement month.
type BillLine struct {
	Bill   core.Bill
	Amount core.Money
	Status core.BillStatus
	Due    bool
}

// Statement is everything a monthly workbook shows.
type Statement struct {
	Period       core.Period
	Overview     core.MonthOverview
	Transactions []core.Transaction
	Bills        []BillLine
	Accounts     []core.Account
}

// NewStatement collects the statement for p from the engine.
func NewStatement(ctx context.Context, e *services.Engine, p core.Period) (Statement, error) {
	st := Statement{Period: p}

	var err error
	if st.Overview, err = e.Reports.Overview(ctx, p.Year, p.Month); err != nil {
		return Statement{}, fmt.Errorf("overview: %w", err)
	}
	if st.Transactions, err = e.Txns.ListByPeriod(ctx, p); err != nil {
		return Statement{}, fmt.Errorf("transactions: %w", err)
	}
	if st.Accounts, err = e.Ledger.Accounts(ctx); err != nil {
		return Statement{}, fmt.Errorf("accounts: %w", err)
	}

	bills, err := e.Bills.Bills(ctx)
	if err != nil {
		return Statement{}, fmt.Errorf("bills: %w", err)
	}
	pending, err := e.Scheduler.PendingBills(ctx, p.Year, p.Month)
	if err != nil {
		return Statement{}, fmt.Errorf("pending bills: %w", err)
	}
	due := make(map[string]bool, len(pending))
	for _, b := range pending {
		due[b.ID] = true
	}

	for _, b := range bills {
		amount, err := e.Scheduler.MonthlyAmount(ctx, b, p.Year, p.Month)
		if err != nil {
			return Statement{}, fmt.Errorf("amount for %s: %w", b.ID, err)
		}
		st.Bills = append(st.Bills, BillLine{
			Bill:   b,
			Amount: amount,
			Status: e.Scheduler.DisplayStatus(b, p),
			Due:    due[b.ID],
		})
	}
	return st, nil
}

// Write encodes the statement as an XLSX workbook.
func Write(w io.Writer, st Statement) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}
	for _, name := range []string{SheetTransactions, SheetBills, SheetAccounts} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	writers := []func(*excelize.File, Statement) error{
		writeSummary, writeTransactions, writeBills, writeAccounts,
	}
	for _, write := range writers {
		if err := write(f, st); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// setRows writes rows starting at A1 of sheet.
func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, st Statement) error {
	o := st.Overview
	rows := [][]any{
		{"Period", st.Period.String()},
		{"Income", o.TotalIncome.Major()},
		{"Expense", o.TotalExpense.Major()},
		{"Net", o.Net().Major()},
		{},
		{"Category", "Expense"},
	}
	for _, c := range o.ByCategory {
		rows = append(rows, []any{c.Name, c.Amount.Major()})
	}
	rows = append(rows, []any{}, []any{"Account", "Income", "Expense"})
	for _, a := range o.ByAccount {
		rows = append(rows, []any{a.Account, a.Income.Major(), a.Expense.Major()})
	}
	return setRows(f, SheetSummary, rows)
}

func writeTransactions(f *excelize.File, st Statement) error {
	rows := [][]any{{"Date", "Type", "Category", "Description", "Account", "Amount", "Bill"}}
	for _, t := range st.Transactions {
		rows = append(rows, []any{
			t.Date.Format("2006-01-02"), string(t.Type), t.Category, t.Description,
			t.AccountName, t.Effect().Major(), t.BillID,
		})
	}
	return setRows(f, SheetTransactions, rows)
}

func writeBills(f *excelize.File, st Statement) error {
	rows := [][]any{{"Bill", "Category", "Frequency", "Due day", "Amount", "Status", "Due this month"}}
	for _, l := range st.Bills {
		rows = append(rows, []any{
			l.Bill.Name, l.Bill.Category, string(l.Bill.Frequency), l.Bill.DueDay,
			l.Amount.Major(), string(l.Status), l.Due,
		})
	}
	return setRows(f, SheetBills, rows)
}

func writeAccounts(f *excelize.File, st Statement) error {
	rows := [][]any{{"Account", "Type", "Bank", "Balance", "Default"}}
	for _, a := range st.Accounts {
		rows = append(rows, []any{a.Name, string(a.Type), a.BankName, a.Balance.Major(), a.IsDefault})
	}
	return setRows(f, SheetAccounts, rows)
}
