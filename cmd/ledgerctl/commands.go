package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"fundledger/internal/app"
	"fundledger/internal/ledger"
	"fundledger/internal/pkg/symbol"
	"fundledger/internal/store"
	"fundledger/internal/types"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type openCmd struct {
	id, name, capital, commission, tax, currency, importDate string
}

func (*openCmd) Name() string     { return "open" }
func (*openCmd) Synopsis() string { return "open a fund account" }
func (*openCmd) Usage() string {
	return `ledgerctl open -id <account> -capital <amount> [-name <name>] [-commission <rate>] [-tax <rate>] [-currency <ccy>] [-d <import_date>]
`
}

func (c *openCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Account id.")
	f.StringVar(&c.name, "name", "", "Display name.")
	f.StringVar(&c.capital, "capital", "0", "Initial capital, booked as a deposit on the import date.")
	f.StringVar(&c.commission, "commission", "0", "Commission rate per trade amount.")
	f.StringVar(&c.tax, "tax", "0", "Stamp tax rate on sells.")
	f.StringVar(&c.currency, "currency", "", "Account currency. Defaults to app.default_currency.")
	f.StringVar(&c.importDate, "d", "", "Import date. Defaults to the last trading day.")
}

func (c *openCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if strings.TrimSpace(c.id) == "" {
		fmt.Fprintln(os.Stderr, "Error: -id is required")
		return subcommands.ExitUsageError
	}
	return withCore(ctx, func(core *app.Core) error {
		req := ledger.OpenAccountRequest{ID: c.id, Name: c.name, Currency: c.currency}
		var err error
		if req.Capital, err = decimal.NewFromString(c.capital); err != nil {
			return fmt.Errorf("capital: %w", err)
		}
		if req.CommissionRate, err = decimal.NewFromString(c.commission); err != nil {
			return fmt.Errorf("commission: %w", err)
		}
		if req.TaxRate, err = decimal.NewFromString(c.tax); err != nil {
			return fmt.Errorf("tax: %w", err)
		}
		if req.ImportDate, err = parseDay(c.importDate, core.Ledger.LastTradingDay()); err != nil {
			return err
		}
		acc, err := core.Ledger.OpenAccount(ctx, req)
		if err != nil {
			return err
		}
		return printYAML(os.Stdout, acc)
	})
}

type applyCmd struct {
	account, typ, symbol, market, quantity, cost, amount, date string
}

func (*applyCmd) Name() string     { return "apply" }
func (*applyCmd) Synopsis() string { return "apply a flow to an account" }
func (*applyCmd) Usage() string {
	return `ledgerctl apply -a <account> -t <deposit|withdraw|buy|sell|dividend|tax> [-s <symbol> -m <market>] [-q <qty>] [-c <unit cost>] [-amount <amount>] [-d <date>]
`
}

func (c *applyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "Account id.")
	f.StringVar(&c.typ, "t", "", "Flow type.")
	f.StringVar(&c.symbol, "s", "", "Security symbol, e.g. 600000 or 600000.SH.")
	f.StringVar(&c.market, "m", "", "Market code.")
	f.StringVar(&c.quantity, "q", "0", "Quantity (trades) or bonus shares (dividend).")
	f.StringVar(&c.cost, "c", "0", "All-in unit cost (trades) or per-share cost adjustment (tax).")
	f.StringVar(&c.amount, "amount", "0", "Cash amount (deposit, withdraw, dividend, tax).")
	f.StringVar(&c.date, "d", "", "Trade date. Defaults to the last trading day.")
}

func (c *applyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	typ, err := types.ParseFlowType(c.typ)
	if err != nil || c.account == "" {
		fmt.Fprintln(os.Stderr, "Error: -a and a valid -t are required")
		return subcommands.ExitUsageError
	}
	return withCore(ctx, func(core *app.Core) error {
		req := types.FlowRequest{Type: typ, Symbol: c.symbol, Market: c.market}
		if req.Market == "" && req.Symbol != "" {
			sym := symbol.Parse(req.Symbol)
			req.Symbol, req.Market = sym.Code, sym.Market
		}
		if req.Quantity, err = decimal.NewFromString(c.quantity); err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
		if req.Cost, err = decimal.NewFromString(c.cost); err != nil {
			return fmt.Errorf("cost: %w", err)
		}
		if req.Amount, err = decimal.NewFromString(c.amount); err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		if req.TDate, err = parseDay(c.date, core.Ledger.LastTradingDay()); err != nil {
			return err
		}
		flow, err := core.Ledger.ApplyFlow(ctx, c.account, req)
		if err != nil {
			return err
		}
		return printYAML(os.Stdout, flow)
	})
}

type revertCmd struct {
	account, flowID string
}

func (*revertCmd) Name() string     { return "revert" }
func (*revertCmd) Synopsis() string { return "delete a flow and undo its effects" }
func (*revertCmd) Usage() string {
	return `ledgerctl revert -a <account> -id <flow id>
`
}

func (c *revertCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "Account id.")
	f.StringVar(&c.flowID, "id", "", "Flow id.")
}

func (c *revertCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" || c.flowID == "" {
		fmt.Fprintln(os.Stderr, "Error: -a and -id are required")
		return subcommands.ExitUsageError
	}
	return withCore(ctx, func(core *app.Core) error {
		flow, err := core.Store.Flows().Get(ctx, c.flowID)
		if err != nil {
			return err
		}
		if flow.AccountID != c.account {
			return fmt.Errorf("flow %s does not belong to %s: %w", c.flowID, c.account, store.ErrNotFound)
		}
		unlock, err := core.Ledger.Locker().Lock(ctx, c.account)
		if err != nil {
			return err
		}
		defer unlock()
		acc, err := core.Ledger.RevertFlow(ctx, c.flowID)
		if err != nil {
			return err
		}
		return printYAML(os.Stdout, acc)
	})
}

type flowsCmd struct {
	account, from, to, symbol string
	synthetic                 bool
}

func (*flowsCmd) Name() string     { return "flows" }
func (*flowsCmd) Synopsis() string { return "list the flows of an account" }
func (*flowsCmd) Usage() string {
	return `ledgerctl flows -a <account> [-from <date>] [-to <date>] [-s <symbol>] [-synthetic]
`
}

func (c *flowsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "Account id.")
	f.StringVar(&c.from, "from", "", "First trade date.")
	f.StringVar(&c.to, "to", "", "Last trade date.")
	f.StringVar(&c.symbol, "s", "", "Only flows of this symbol.")
	f.BoolVar(&c.synthetic, "synthetic", false, "Only generated dividend and tax flows.")
}

func (c *flowsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" {
		fmt.Fprintln(os.Stderr, "Error: -a is required")
		return subcommands.ExitUsageError
	}
	return withCore(ctx, func(core *app.Core) error {
		q := store.FlowQuery{AccountID: c.account, Symbol: strings.ToUpper(strings.TrimSpace(c.symbol))}
		var err error
		if q.From, err = parseDay(c.from, q.From); err != nil {
			return err
		}
		if q.To, err = parseDay(c.to, q.To); err != nil {
			return err
		}
		if c.synthetic {
			q.Synthetic = store.Bool(true)
		}
		flows, err := core.Store.Flows().List(ctx, q)
		if err != nil {
			return err
		}
		return printYAML(os.Stdout, flows)
	})
}

type snapshotCmd struct {
	account, date string
}

func (*snapshotCmd) Name() string     { return "snapshot" }
func (*snapshotCmd) Synopsis() string { return "print the daily snapshot of an account" }
func (*snapshotCmd) Usage() string {
	return `ledgerctl snapshot -a <account> [-d <date>]
`
}

func (c *snapshotCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "Account id.")
	f.StringVar(&c.date, "d", "", "Day. Defaults to the last trading day.")
}

func (c *snapshotCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" {
		fmt.Fprintln(os.Stderr, "Error: -a is required")
		return subcommands.ExitUsageError
	}
	return withCore(ctx, func(core *app.Core) error {
		day, err := parseDay(c.date, core.Ledger.LastTradingDay())
		if err != nil {
			return err
		}
		snap, err := core.Ledger.DailySnapshot(ctx, c.account, day)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no snapshot for %s on %s; run `ledgerctl sync` first", c.account, day)
		}
		if err != nil {
			return err
		}
		return printYAML(os.Stdout, snap)
	})
}

type syncCmd struct {
	account, through string
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "rebuild daily snapshots up to a day" }
func (*syncCmd) Usage() string {
	return `ledgerctl sync [-a <account>] [-through <date>]

  Without -a every account behind the target day is synced.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "Account id.")
	f.StringVar(&c.through, "through", "", "Target day. Defaults to the last trading day.")
}

func (c *syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withCore(ctx, func(core *app.Core) error {
		through, err := parseDay(c.through, core.Ledger.LastTradingDay())
		if err != nil {
			return err
		}
		ids := []string{c.account}
		if c.account == "" {
			behind, err := core.Syncer.Behind(ctx, through)
			if err != nil {
				return err
			}
			ids = ids[:0]
			for _, acc := range behind {
				ids = append(ids, acc.ID)
			}
		}
		var errs []error
		for _, id := range ids {
			rep, err := core.Syncer.SyncAccount(ctx, id, through)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			if err := printYAML(os.Stdout, rep); err != nil {
				return err
			}
		}
		return errors.Join(errs...)
	})
}

type reconcileCmd struct {
	account, through string
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "regenerate dividend and tax flows for an account" }
func (*reconcileCmd) Usage() string {
	return `ledgerctl reconcile -a <account> [-through <date>]
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "Account id.")
	f.StringVar(&c.through, "through", "", "Last day to reconcile. Defaults to the last trading day.")
}

func (c *reconcileCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" {
		fmt.Fprintln(os.Stderr, "Error: -a is required")
		return subcommands.ExitUsageError
	}
	return withCore(ctx, func(core *app.Core) error {
		through, err := parseDay(c.through, core.Ledger.LastTradingDay())
		if err != nil {
			return err
		}
		reports, err := core.Reconciler.ReconcileAccount(ctx, c.account, through)
		if err != nil {
			return err
		}
		return printYAML(os.Stdout, reports)
	})
}

type runCmd struct {
	date string
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run the daily pipeline once" }
func (*runCmd) Usage() string {
	return `ledgerctl run [-d <date>]

  Stages already completed for the day are skipped.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Day. Defaults to the last trading day.")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withCore(ctx, func(core *app.Core) error {
		day, err := parseDay(c.date, core.Ledger.LastTradingDay())
		if err != nil {
			return err
		}
		rc, runErr := core.RunDaily(ctx, day)
		if rc != nil {
			out := map[string]any{"day": day, "trace_id": rc.TraceID, "stages": rc.Results(), "warnings": rc.Warnings()}
			if err := printYAML(os.Stdout, out); err != nil {
				return err
			}
		}
		return runErr
	})
}

type runsCmd struct {
	limit int
}

func (*runsCmd) Name() string     { return "runs" }
func (*runsCmd) Synopsis() string { return "list recent pipeline runs" }
func (*runsCmd) Usage() string {
	return `ledgerctl runs [-n <limit>]
`
}

func (c *runsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 10, "Number of runs, newest first.")
}

func (c *runsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withCore(ctx, func(core *app.Core) error {
		runs, err := core.RecentRuns(ctx, c.limit)
		if err != nil {
			return err
		}
		return printYAML(os.Stdout, map[string]any{"runs": runs})
	})
}

type importDividendsCmd struct {
	file string
}

func (*importDividendsCmd) Name() string     { return "import-dividends" }
func (*importDividendsCmd) Synopsis() string { return "load dividend details from a JSON file" }
func (*importDividendsCmd) Usage() string {
	return `ledgerctl import-dividends -f <file.json>

  The file holds an array of {symbol, market, record_date, ex_dividend_date,
  pay_date, cash_per_share, shares_per_share}. Use "-" for stdin.
`
}

func (c *importDividendsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "f", "", "JSON file, or - for stdin.")
}

func (c *importDividendsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.file == "" {
		fmt.Fprintln(os.Stderr, "Error: -f is required")
		return subcommands.ExitUsageError
	}
	var raw []byte
	var err error
	if c.file == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(c.file)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return withCore(ctx, func(core *app.Core) error {
		n, err := core.Importer.Import(ctx, raw)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d dividend details\n", n)
		return nil
	})
}
