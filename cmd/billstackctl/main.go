// Command billstackctl runs one engine operation against the configured
// backend and prints the result as JSON.
//
//	billstackctl pending [-year Y -month M]
//	billstackctl overdue
//	billstackctl reminders
//	billstackctl pay -bill ID [-account ID]
//	billstackctl undo -bill ID -txn ID -year Y -month M [-account ID -amount CENTS]
//	billstackctl orphans [-repair]
//	billstackctl audit
//	billstackctl check -bill ID
//	billstackctl export -o FILE [-year Y -month M]
//
// Months are 0-indexed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	"billstack/internal/cli"
	"billstack/internal/core"
	"billstack/internal/export"
	"billstack/internal/log"
	"billstack/internal/services"
)

var errUsage = errors.New("usage: billstackctl <pending|overdue|reminders|pay|undo|orphans|audit|check|export> [flags]")

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil, log.ComponentApp), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	if writes(os.Args[1:]) && !cfg.LocksSpanProcesses() {
		logger.Warn("Locks are local to this process; stop other billstack processes or set LOCK_BACKEND=redis",
			"store_backend", cfg.StoreBackend)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	rt, err := cli.NewRuntime(ctx, cfg, logger, cli.Options{Publish: true})
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}

	err = run(ctx, rt.Engine, os.Args[1:], os.Stdout)
	rt.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// writes reports whether the command line changes stored data.
func writes(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "pay", "undo":
		return true
	case "orphans":
		return slices.Contains(args[1:], "-repair") || slices.Contains(args[1:], "--repair")
	}
	return false
}

func run(ctx context.Context, e *services.Engine, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	now := core.PeriodOf(core.SystemClock{}.Now())
	year := fs.Int("year", now.Year, "year")
	month := fs.Int("month", now.Month, "0-indexed month")
	billID := fs.String("bill", "", "bill id")
	accountID := fs.String("account", "", "account id")
	txnID := fs.String("txn", "", "transaction id")
	amount := fs.Int64("amount", -1, "amount in cents")
	repair := fs.Bool("repair", false, "repair what is found")
	output := fs.String("o", "", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch cmd {
	case "pending":
		bills, err := e.Scheduler.PendingBills(ctx, *year, *month)
		if err != nil {
			return err
		}
		return printJSON(out, bills)

	case "overdue":
		bills, err := e.Scheduler.OverdueBills(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, bills)

	case "reminders":
		bills, err := e.Scheduler.RemindersDue(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, bills)

	case "pay":
		if *billID == "" {
			return errors.New("pay: -bill is required")
		}
		receipt, err := e.Coordinator.MarkBillAsPaidOutcome(ctx, *billID, *accountID)
		if err != nil {
			return err
		}
		return printJSON(out, receipt)

	case "undo":
		if *billID == "" || *txnID == "" {
			return errors.New("undo: -bill and -txn are required")
		}
		req := core.UndoRequest{
			TransactionID: *txnID,
			BillID:        *billID,
			Year:          *year,
			Month:         *month,
			AccountID:     *accountID,
		}
		if *amount >= 0 {
			m := core.Cents(*amount)
			req.Amount = &m
		}
		if err := e.Coordinator.UndoBillPayment(ctx, req); err != nil {
			return err
		}
		return printJSON(out, map[string]string{"undone": *txnID})

	case "orphans":
		orphans, err := e.Reconciler.FindOrphans(ctx)
		if err != nil {
			return err
		}
		if !*repair {
			return printJSON(out, orphans)
		}
		actions := make(map[string]string, len(orphans))
		for _, t := range orphans {
			action, err := e.Reconciler.RepairOrphan(ctx, t.ID)
			if err != nil {
				return fmt.Errorf("repair %s: %w", t.ID, err)
			}
			actions[t.ID] = action
		}
		return printJSON(out, actions)

	case "audit":
		drifts, err := e.Reconciler.AuditBalances(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, drifts)

	case "check":
		if *billID == "" {
			return errors.New("check: -bill is required")
		}
		violations, err := e.Reconciler.CheckBill(ctx, *billID)
		if err != nil {
			return err
		}
		return printJSON(out, violations)

	case "export":
		if *output == "" {
			return errors.New("export: -o is required")
		}
		p, err := core.NewPeriod(*year, *month)
		if err != nil {
			return err
		}
		st, err := export.NewStatement(ctx, e, p)
		if err != nil {
			return err
		}
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		if err := export.Write(f, st); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		return printJSON(out, map[string]string{"written": *output, "period": p.String()})
	}
	return errUsage
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
