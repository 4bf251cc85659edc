package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/caldera-erp/caldera-erp/internal/app"
	"github.com/caldera-erp/caldera-erp/internal/ledger"
	"github.com/caldera-erp/caldera-erp/internal/observability"
	"github.com/caldera-erp/caldera-erp/internal/platform/db"
	"github.com/caldera-erp/caldera-erp/jobs"
)

func main() {
	enqueue := flag.String("enqueue", "", "enqueue a job once and exit (ledger:integrity or receivable:reconcile)")
	flag.Parse()

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

	if *enqueue != "" {
		if err := enqueueOnce(ctx, cfg, logger, *enqueue); err != nil {
			logger.Error("enqueue", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()

	integrityChecker := jobs.NewLedgerIntegrityChecker(ledger.NewSQLStore(pool), logger, metrics)
	reconciler := jobs.NewReceivableReconciler(pool, logger, metrics)

	integrityTask, err := jobs.NewLedgerIntegrityTask(jobs.LedgerIntegrityPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	reconcileTask, err := jobs.NewReceivableReconcileTask(jobs.ReceivableReconcilePayload{})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityChecker.Handle},
			{Type: jobs.TaskReceivableReconcile, Handler: reconciler.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 1 * * *", Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func enqueueOnce(ctx context.Context, cfg *app.Config, logger *slog.Logger, task string) error {
	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("client close", slog.Any("error", err))
		}
	}()

	switch task {
	case jobs.TaskLedgerIntegrity:
		info, err := client.EnqueueLedgerIntegrity(ctx, jobs.LedgerIntegrityPayload{})
		if err != nil {
			return err
		}
		logger.Info("enqueued", slog.String("task", task), slog.String("id", info.ID))
	case jobs.TaskReceivableReconcile:
		info, err := client.EnqueueReceivableReconcile(ctx, jobs.ReceivableReconcilePayload{})
		if err != nil {
			return err
		}
		logger.Info("enqueued", slog.String("task", task), slog.String("id", info.ID))
	default:
		return fmt.Errorf("unknown task %q", task)
	}
	return nil
}
