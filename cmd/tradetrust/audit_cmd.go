package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/tradetrust/pkg/finance"
)

func auditUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: tradetrust audit <get|list|latest|settle> [flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Subcommands:")
	_, _ = fmt.Fprintln(w, "  get <intent-id>                 Show one audit record")
	_, _ = fmt.Fprintln(w, "  list --user <id> [--limit n]    List a user's records, newest first")
	_, _ = fmt.Fprintln(w, "  latest --user <id>              Show a user's latest record")
	_, _ = fmt.Fprintln(w, "  settle --intent <id> --pnl <usd> --fee-bps <n> --provider <id>=<weight>...")
	_, _ = fmt.Fprintln(w, "                                  Extend a record with copytrade lineage")
}

// runAuditCmd implements `tradetrust audit`.
func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		auditUsage(stderr)
		return 2
	}
	switch args[0] {
	case "get":
		return runAuditGet(args[1:], stdout, stderr)
	case "list":
		return runAuditList(args[1:], stdout, stderr)
	case "latest":
		return runAuditLatest(args[1:], stdout, stderr)
	case "settle":
		return runAuditSettle(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown audit subcommand: %s\n", args[0])
		auditUsage(stderr)
		return 2
	}
}

func runAuditGet(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 || args[0] == "" {
		_, _ = fmt.Fprintln(stderr, "Usage: tradetrust audit get <intent-id>")
		return 2
	}
	ctx := context.Background()
	a, err := newApp(ctx, stderr)
	if err != nil {
		return reportError(stderr, err)
	}
	defer func() { _ = a.Close(ctx) }()

	rec, err := a.store.GetIntentAuditRecord(ctx, args[0])
	if err != nil {
		return reportError(stdout, err)
	}
	return writeJSON(stdout, rec)
}

func runAuditList(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit list", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		userID string
		limit  int
	)
	cmd.StringVar(&userID, "user", "", "User id (REQUIRED)")
	cmd.IntVar(&limit, "limit", 20, "Maximum records to show")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if userID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --user is required")
		return 2
	}

	ctx := context.Background()
	a, err := newApp(ctx, stderr)
	if err != nil {
		return reportError(stderr, err)
	}
	defer func() { _ = a.Close(ctx) }()

	recs, err := a.store.ListIntentAuditRecords(ctx, userID, limit)
	if err != nil {
		return reportError(stdout, err)
	}
	return writeJSON(stdout, recs)
}

func runAuditLatest(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit latest", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var userID string
	cmd.StringVar(&userID, "user", "", "User id (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if userID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --user is required")
		return 2
	}

	ctx := context.Background()
	a, err := newApp(ctx, stderr)
	if err != nil {
		return reportError(stderr, err)
	}
	defer func() { _ = a.Close(ctx) }()

	rec, err := a.store.LatestIntentAuditRecord(ctx, userID)
	if err != nil {
		return reportError(stdout, err)
	}
	return writeJSON(stdout, rec)
}

func runAuditSettle(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit settle", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		intentID    string
		pnl         string
		feeBps      int64
		allocations []finance.Allocation
	)
	cmd.StringVar(&intentID, "intent", "", "Intent id to extend (REQUIRED)")
	cmd.StringVar(&pnl, "pnl", "", "Mirrored PnL in USD (REQUIRED)")
	cmd.Int64Var(&feeBps, "fee-bps", 0, "Revenue share fee in basis points")
	cmd.Func("provider", "Signal provider as <id>=<weight> (repeatable, REQUIRED)", func(v string) error {
		id, w, ok := strings.Cut(v, "=")
		if !ok || id == "" {
			return fmt.Errorf("expected <id>=<weight>, got %q", v)
		}
		weight, err := decimal.NewFromString(w)
		if err != nil {
			return fmt.Errorf("provider %s weight: %w", id, err)
		}
		allocations = append(allocations, finance.Allocation{ProviderID: id, Weight: weight})
		return nil
	})
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if intentID == "" || pnl == "" || len(allocations) == 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --intent, --pnl and at least one --provider are required")
		return 2
	}
	pnlUSD, err := finance.ParseUSD(pnl)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: --pnl: %v\n", err)
		return 2
	}

	ctx := context.Background()
	a, err := newApp(ctx, stderr)
	if err != nil {
		return reportError(stderr, err)
	}
	defer func() { _ = a.Close(ctx) }()

	current, err := a.store.GetIntentAuditRecord(ctx, intentID)
	if err != nil {
		return reportError(stdout, err)
	}
	splits, err := finance.AllocateRevenueShare(pnlUSD, feeBps, allocations)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	settlement, err := finance.BuildSettlement(current.IntentID, current.ReceiptID, splits, time.Now())
	if err != nil {
		return reportError(stdout, err)
	}

	rec, err := a.resolver.ExtendWithLineage(ctx, intentID, settlement)
	if err != nil {
		return reportError(stdout, err)
	}
	return writeJSON(stdout, rec)
}
