package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/odyssey-erp/odyssey-ledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  period close    --store N --period YYYY-MM [--actor N] [--note TEXT]
  period reopen   --store N --period YYYY-MM --reason TEXT [--actor N]
  period lock     --store N --period YYYY-MM [--actor N]
  recalc          --store N [--entries 1,2,3]
  audit           --store N [--from YYYY-MM-DD] [--to YYYY-MM-DD]
  trial-balance   --store N --as-of YYYY-MM-DD
  jobs trigger    --job NAME [--stores 1,2] [--entries 1,2] [--window N] [--auto-correct]
  jobs stats
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitError
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return cli.ExitError
	}

	switch args[0] {
	case "period":
		if len(args) < 2 {
			_, _ = fmt.Fprint(stderr, usage)
			return cli.ExitError
		}
		return withLedger(ctx, cfg, stderr, func(l *cli.LedgerCLI) int {
			return runPeriod(ctx, l, args[1], args[2:], stdout, stderr)
		})
	case "recalc", "audit", "trial-balance":
		return withLedger(ctx, cfg, stderr, func(l *cli.LedgerCLI) int {
			return runLedger(ctx, l, args[0], args[1:], stdout, stderr)
		})
	case "jobs":
		return runJobs(ctx, cfg, args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitError
	}
}

func withLedger(ctx context.Context, cfg *app.Config, stderr io.Writer, fn func(*cli.LedgerCLI) int) int {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "connect database: %v\n", err)
		return cli.ExitError
	}
	defer pool.Close()

	deps := accounting.Deps{Pool: pool, Logger: logger, BalanceCacheTTL: cfg.BalanceCacheTTL, PeriodLockTTL: cfg.PeriodLockTTL}
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, running without cache and period lock", slog.Any("error", err))
	} else {
		defer func() { _ = client.Close() }()
		deps.Redis = client
	}

	ledgerCLI, err := cli.NewLedgerCLI(accounting.New(deps))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return cli.ExitError
	}
	return fn(ledgerCLI)
}

func runPeriod(ctx context.Context, l *cli.LedgerCLI, sub string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("period "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts cli.PeriodOptions
	fs.Int64Var(&opts.StoreID, "store", 0, "store id")
	fs.StringVar(&opts.Period, "period", "", "period code YYYY-MM")
	fs.Int64Var(&opts.ActorID, "actor", 0, "acting user id")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	switch sub {
	case "close":
		fs.StringVar(&opts.Note, "note", "", "closing note")
	case "reopen":
		fs.StringVar(&opts.Note, "reason", "", "reopen reason")
	}
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}
	opts.Stdout, opts.Stderr = stdout, stderr
	switch sub {
	case "close":
		return l.CloseCommand(ctx, opts)
	case "reopen":
		return l.ReopenCommand(ctx, opts)
	case "lock":
		return l.LockCommand(ctx, opts)
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitError
	}
}

func runLedger(ctx context.Context, l *cli.LedgerCLI, name string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := cli.Output{Stdout: stdout, Stderr: stderr}
	storeID := fs.Int64("store", 0, "store id")
	fs.BoolVar(&out.JSONOutput, "json", false, "print JSON")
	entries := fs.String("entries", "", "comma separated entry ids")
	from := fs.String("from", "", "first date YYYY-MM-DD")
	to := fs.String("to", "", "last date YYYY-MM-DD")
	asOf := fs.String("as-of", "", "cut-off date YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}
	switch name {
	case "recalc":
		ids, err := parseIDs(*entries)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "recalc: %v\n", err)
			return cli.ExitError
		}
		return l.RecalcCommand(ctx, cli.RecalcOptions{Output: out, StoreID: *storeID, EntryIDs: ids})
	case "audit":
		return l.AuditCommand(ctx, cli.AuditOptions{Output: out, StoreID: *storeID, From: *from, To: *to})
	default:
		return l.TrialBalanceCommand(ctx, cli.TrialBalanceOptions{Output: out, StoreID: *storeID, AsOf: *asOf})
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitError
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return cli.ExitError
	}
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		fs.SetOutput(stderr)
		name := fs.String("job", "", "task type")
		stores := fs.String("stores", "", "comma separated store ids")
		entries := fs.String("entries", "", "comma separated entry ids")
		var opts cli.TriggerOptions
		fs.IntVar(&opts.WindowMonths, "window", cfg.IntegrityWindowMonths, "audit window in months")
		fs.BoolVar(&opts.AutoCorrect, "auto-correct", false, "auto-correct drifted entries before auditing")
		if err := fs.Parse(args[1:]); err != nil {
			return cli.ExitError
		}
		if opts.StoreIDs, err = parseIDs(*stores); err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return cli.ExitError
		}
		if opts.EntryIDs, err = parseIDs(*entries); err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return cli.ExitError
		}
		info, err := jobsCLI.Trigger(ctx, *name, opts)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return cli.ExitError
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
		return cli.ExitOK
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return cli.ExitError
		}
		_, _ = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return cli.ExitOK
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return cli.ExitError
	}
}

func parseIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
