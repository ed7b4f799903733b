package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestNotifyDispatchHandlerDelivers(t *testing.T) {
	var delivered []NotifyDispatchPayload
	handler := NewNotifyDispatchHandler(nil, func(ctx context.Context, payload NotifyDispatchPayload) error {
		delivered = append(delivered, payload)
		return nil
	})

	task, err := NewNotifyDispatchTask(NotifyDispatchPayload{
		Kind:     "JOB_READY",
		Context:  map[string]string{"job_number": "JOB/2025-26/MUM/00001"},
		QueuedAt: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Len(t, delivered, 1)
	require.Equal(t, "JOB_READY", delivered[0].Kind)
	require.Equal(t, "JOB/2025-26/MUM/00001", delivered[0].Context["job_number"])
}

func TestNotifyDispatchHandlerSkipsMalformedPayload(t *testing.T) {
	handler := NewNotifyDispatchHandler(nil, func(ctx context.Context, payload NotifyDispatchPayload) error {
		t.Fatal("deliver must not run for malformed payloads")
		return nil
	})

	task := asynq.NewTask(TaskTypeNotifyDispatch, []byte("{not json"))
	err := handler(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubLister struct {
	items []LowStockItem
	err   error
}

func (s stubLister) ListLowStock(ctx context.Context) ([]LowStockItem, error) {
	return s.items, s.err
}

func TestLowStockSweepHandlerNotifiesPerItem(t *testing.T) {
	lister := stubLister{items: []LowStockItem{
		{ItemID: "a", Name: "Battery", Quantity: 1, Threshold: 5},
		{ItemID: "b", Name: "Screen", Quantity: 0, Threshold: 2},
	}}

	var kinds []string
	var contexts []map[string]string
	handler := NewLowStockSweepHandler(lister, func(ctx context.Context, kind string, nctx map[string]string) error {
		kinds = append(kinds, kind)
		contexts = append(contexts, nctx)
		return nil
	}, nil)

	require.NoError(t, handler(context.Background(), NewLowStockSweepTask()))
	require.Equal(t, []string{"LOW_STOCK", "LOW_STOCK"}, kinds)
	require.Equal(t, "Battery", contexts[0]["item_name"])
	require.Equal(t, "1", contexts[0]["quantity"])
	require.Equal(t, "5", contexts[0]["threshold"])
	require.Equal(t, "0", contexts[1]["quantity"])
}

func TestLowStockSweepHandlerPropagatesListError(t *testing.T) {
	lister := stubLister{err: errors.New("db down")}
	handler := NewLowStockSweepHandler(lister, func(ctx context.Context, kind string, nctx map[string]string) error {
		t.Fatal("notify must not run when listing fails")
		return nil
	}, nil)

	err := handler(context.Background(), NewLowStockSweepTask())
	require.Error(t, err)
}

type stubCleaner struct {
	removed   int64
	err       error
	olderThan time.Duration
}

func (s *stubCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return s.removed, s.err
}

func TestIdempotencyCleanupHandler(t *testing.T) {
	cleaner := &stubCleaner{removed: 7}
	handler := NewIdempotencyCleanupHandler(cleaner, 24*time.Hour, nil)

	require.NoError(t, handler(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, 24*time.Hour, cleaner.olderThan)
}

func TestIdempotencyCleanupHandlerDefaultsRetention(t *testing.T) {
	cleaner := &stubCleaner{}
	handler := NewIdempotencyCleanupHandler(cleaner, 0, nil)

	require.NoError(t, handler(context.Background(), NewIdempotencyCleanupTask()))
	require.Equal(t, 48*time.Hour, cleaner.olderThan)
}
