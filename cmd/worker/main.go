package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	ledger := accounting.New(accounting.Deps{
		Pool:            pool,
		Redis:           redisClient,
		Logger:          logger,
		BalanceCacheTTL: cfg.BalanceCacheTTL,
		PeriodLockTTL:   cfg.PeriodLockTTL,
	})
	metrics := observability.NewMetrics()
	integrityJob := jobs.NewLedgerIntegrityJob(ledger, logger, metrics.Jobs())
	hooks := integration.NewHooks(ledger, ledger.Mappings, logger.With(slog.String("component", "integration")))
	eventJob := jobs.NewBusinessEventJob(hooks, logger, metrics.Jobs())

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	var cron []jobs.CronRegistration
	if cfg.IntegrityCron != "" {
		auditTask, err := jobs.NewIntegrityAuditTask(jobs.IntegrityAuditPayload{
			StoreIDs:     cfg.IntegrityStores,
			WindowMonths: cfg.IntegrityWindowMonths,
			AutoCorrect:  cfg.IntegrityAutoCorrect,
		})
		if err != nil {
			logger.Error("build integrity task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.IntegrityCron, Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Timeout(time.Hour)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrityAudit, Handler: integrityJob.Handle},
			{Type: jobs.TaskLedgerRecalculateTotals, Handler: integrityJob.HandleRecalculate},
			{Type: jobs.TaskLedgerBusinessEvent, Handler: eventJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	server := &http.Server{
		Addr: cfg.OpsAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:     logger,
			Config:     cfg,
			Metrics:    metrics,
			JobHandler: jobs.NewHandler(inspector, logger),
			Readiness: map[string]app.Pinger{
				"postgres": app.PingFunc(pool.Ping),
				"redis": app.PingFunc(func(ctx context.Context) error {
					return cache.Ping(ctx, redisClient)
				}),
			},
		}),
		ReadTimeout:  cfg.OpsReadTimeout,
		WriteTimeout: cfg.OpsWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ops server listening", slog.String("addr", cfg.OpsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
