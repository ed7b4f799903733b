package inventory

import "context"

// LowStockEvent fires after a movement leaves an item at or below its
// threshold. It may fire on every such movement; consumers decide whether
// to deduplicate.
type LowStockEvent struct {
	Item        Item
	NewQuantity int64
}

// MovementPostedEvent describes a committed stock mutation.
type MovementPostedEvent struct {
	Item         Item
	Type         AdjustmentType
	Delta        int64
	NewQuantity  int64
	AdjustmentID string
}

// EventHandler receives inventory events after the ledger transaction
// commits. Handlers must not block; errors are logged by the service, not
// propagated to the caller.
type EventHandler interface {
	HandleLowStock(ctx context.Context, evt LowStockEvent) error
	HandleMovementPosted(ctx context.Context, evt MovementPostedEvent) error
}
