// Package jobs holds the Asynq task definitions and the worker that
// processes them: notification dispatch, the low-stock sweep, and
// idempotency-key cleanup.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotify carries customer-facing notification dispatch.
	QueueNotify = "notify"

	// TaskTypeNotifyDispatch delivers one notification out-of-band.
	TaskTypeNotifyDispatch = "notify:dispatch"
	// TaskTypeLowStockSweep re-checks all items against their thresholds.
	TaskTypeLowStockSweep = "inventory:low_stock_sweep"
	// TaskTypeIdempotencyCleanup prunes expired idempotency keys.
	TaskTypeIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// NotifyDispatchPayload describes one notification to deliver. Context
// carries the template variables (job number, amounts, OTP) as strings.
type NotifyDispatchPayload struct {
	Kind     string            `json:"kind"`
	Context  map[string]string `json:"context"`
	QueuedAt time.Time         `json:"queued_at"`
}

// NewNotifyDispatchTask constructs an Asynq task.
func NewNotifyDispatchTask(payload NotifyDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotifyDispatch, data), nil
}

// NewNotifyDispatchHandler processes TaskTypeNotifyDispatch tasks.
// Actual SMS/WhatsApp delivery sits behind the deliver callback; the
// default logs the dispatch.
func NewNotifyDispatchHandler(logger *slog.Logger, deliver func(ctx context.Context, payload NotifyDispatchPayload) error) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload NotifyDispatchPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if deliver != nil {
			return deliver(ctx, payload)
		}
		logger.Info("notification dispatched",
			slog.String("kind", payload.Kind),
			slog.Any("context", payload.Context))
		return nil
	}
}

// LowStockItem is one item below its threshold, as reported by the sweep.
type LowStockItem struct {
	ItemID    string
	Name      string
	Quantity  int64
	Threshold int64
}

// LowStockLister reports items at or under their low-stock threshold.
type LowStockLister interface {
	ListLowStock(ctx context.Context) ([]LowStockItem, error)
}

// NewLowStockSweepTask constructs the scheduled sweep task.
func NewLowStockSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeLowStockSweep, nil)
}

// NewLowStockSweepHandler re-notifies for every item still under its
// threshold. The event path already fires on each movement; the sweep
// catches items that slipped under while notifications were down.
func NewLowStockSweepHandler(lister LowStockLister, notify func(ctx context.Context, kind string, nctx map[string]string) error, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		items, err := lister.ListLowStock(ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			nctx := map[string]string{
				"item_id":   item.ItemID,
				"item_name": item.Name,
				"quantity":  formatInt(item.Quantity),
				"threshold": formatInt(item.Threshold),
			}
			if err := notify(ctx, "LOW_STOCK", nctx); err != nil {
				logger.Warn("low stock sweep notify failed",
					slog.String("item", item.Name), slog.Any("error", err))
			}
		}
		logger.Info("low stock sweep done", slog.Int("items", len(items)))
		return nil
	}
}

// IdempotencyCleaner prunes keys older than the retention window.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// NewIdempotencyCleanupTask constructs the scheduled cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIdempotencyCleanup, nil)
}

// NewIdempotencyCleanupHandler removes idempotency keys past retention.
func NewIdempotencyCleanupHandler(cleaner IdempotencyCleaner, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = 48 * time.Hour
	}
	return func(ctx context.Context, t *asynq.Task) error {
		removed, err := cleaner.Cleanup(ctx, retention)
		if err != nil {
			return err
		}
		logger.Info("idempotency cleanup done", slog.Int64("removed", removed))
		return nil
	}
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
