// Command worker runs the asynq consumer: notification dispatch, the
// low-stock sweep and idempotency key maintenance.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/fixpoint-hq/fixpoint/internal/app"
	"github.com/fixpoint-hq/fixpoint/internal/inventory"
	jobmetrics "github.com/fixpoint-hq/fixpoint/internal/jobs"
	"github.com/fixpoint-hq/fixpoint/internal/notify"
	"github.com/fixpoint-hq/fixpoint/internal/platform/db"
	"github.com/fixpoint-hq/fixpoint/internal/shared"
	"github.com/fixpoint-hq/fixpoint/jobs"
)

// lowStockLister adapts the inventory repository to the sweep handler.
type lowStockLister struct {
	repo *inventory.Repository
}

func (l lowStockLister) ListLowStock(ctx context.Context) ([]jobs.LowStockItem, error) {
	items, err := l.repo.ListLowStockItems(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]jobs.LowStockItem, 0, len(items))
	for _, item := range items {
		out = append(out, jobs.LowStockItem{
			ItemID:    item.ID.String(),
			Name:      item.Name,
			Quantity:  item.Quantity,
			Threshold: item.LowStockThreshold,
		})
	}
	return out, nil
}

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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	inventoryRepo := inventory.NewRepository(pool, cfg.LockTimeout)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	// Terminal delivery. SMS/WhatsApp gateways plug in here; until one is
	// configured the dispatcher logs the notification.
	deliverer := &notify.SlogNotifier{Logger: logger}
	deliver := func(ctx context.Context, payload jobs.NotifyDispatchPayload) error {
		return deliverer.Notify(ctx, notify.Kind(payload.Kind), payload.Context)
	}

	sweepNotify := func(ctx context.Context, kind string, nctx map[string]string) error {
		return deliverer.Notify(ctx, notify.Kind(kind), nctx)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeNotifyDispatch, Handler: jobs.NewNotifyDispatchHandler(logger, deliver)},
			{Type: jobs.TaskTypeLowStockSweep, Handler: jobs.NewLowStockSweepHandler(lowStockLister{repo: inventoryRepo}, sweepNotify, logger)},
			{Type: jobs.TaskTypeIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(idempotencyStore, cfg.IdempotencyRetention, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 9 * * *", Task: jobs.NewLowStockSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
		Metrics: jobmetrics.NewMetrics(nil),
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting",
		slog.String("redis", cfg.RedisAddr),
		slog.String("retention", strconv.FormatInt(int64(cfg.IdempotencyRetention.Hours()), 10)+"h"))

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
