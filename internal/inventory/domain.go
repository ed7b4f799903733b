package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdjustmentType enumerates supported stock mutations.
type AdjustmentType string

const (
	// AdjustmentAdd represents inbound stock.
	AdjustmentAdd AdjustmentType = "ADD"
	// AdjustmentDeduct represents consumption, usually for a job.
	AdjustmentDeduct AdjustmentType = "DEDUCT"
	// AdjustmentManual is a manual correction that raises quantity.
	AdjustmentManual AdjustmentType = "MANUAL"
	// AdjustmentCorrection is a manual correction that lowers quantity.
	AdjustmentCorrection AdjustmentType = "CORRECTION"
)

// Item is a branch-scoped stock keeping unit. Quantity is never written
// directly; it moves only through the ledger operations, each of which
// appends one Adjustment.
type Item struct {
	ID                uuid.UUID
	BranchID          uuid.UUID
	Name              string
	SKU               string
	Quantity          int64
	LowStockThreshold int64
	CostPrice         decimal.Decimal
	SellingPrice      decimal.Decimal
	GSTRate           decimal.Decimal
	HSNCode           string
	Unit              string
	WarrantyMonths    int
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLowStock reports whether the item sits at or below its threshold.
func (i Item) IsLowStock() bool {
	return i.Quantity <= i.LowStockThreshold
}

// Adjustment is one immutable ledger row. The signed delta of a row is
// NewQuantity - OldQuantity; the sum of deltas since item creation always
// equals the item's current quantity.
type Adjustment struct {
	ID          uuid.UUID
	ItemID      uuid.UUID
	Type        AdjustmentType
	Quantity    int64
	OldQuantity int64
	NewQuantity int64
	Reason      string
	ActorID     uuid.UUID
	Manual      bool
	CreatedAt   time.Time
}

// Delta returns the signed quantity change of the adjustment.
func (a Adjustment) Delta() int64 {
	return a.NewQuantity - a.OldQuantity
}

// PartUsage links a job to an item consumption event, capturing the unit
// price at the time of use rather than a live lookup.
type PartUsage struct {
	ID           uuid.UUID
	JobID        uuid.UUID
	ItemID       uuid.UUID
	ItemName     string
	HSNCode      string
	Unit         string
	GSTRate      decimal.Decimal
	Quantity     int64
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
	AdjustmentID uuid.UUID
	CreatedAt    time.Time
}

// AddStockInput describes an inbound movement.
type AddStockInput struct {
	ItemID   uuid.UUID `validate:"required"`
	Quantity int64     `validate:"required,gt=0"`
	Reason   string    `validate:"max=500"`
	ActorID  uuid.UUID `validate:"required"`
	Key      string
}

// DeductStockInput describes an outbound movement, optionally tied to a
// job card to produce a PartUsage.
type DeductStockInput struct {
	ItemID   uuid.UUID `validate:"required"`
	Quantity int64     `validate:"required,gt=0"`
	Reason   string    `validate:"max=500"`
	ActorID  uuid.UUID `validate:"required"`
	JobID    uuid.UUID
	Key      string
}

// AdjustStockInput sets an absolute quantity. The reason is mandatory and
// must carry real content because the operation bypasses the normal flow.
type AdjustStockInput struct {
	ItemID      uuid.UUID `validate:"required"`
	NewQuantity int64     `validate:"gte=0"`
	Reason      string    `validate:"required,min=10,max=500"`
	ActorID     uuid.UUID `validate:"required"`
	Key         string
}

// MovementResult reports the outcome of a ledger operation.
type MovementResult struct {
	NewQuantity  int64
	AdjustmentID uuid.UUID
	PartUsageID  uuid.UUID
	LowStock     bool
}

// InsufficientStockError blocks a deduction that would drive quantity
// negative. It carries the figures needed for a precise caller message.
type InsufficientStockError struct {
	ItemName  string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ItemName, e.Requested, e.Available)
}

// ErrItemNotFound indicates a missing or inactive item.
var ErrItemNotFound = errors.New("inventory: item not found")

// ErrItemInactive indicates the item was deactivated.
var ErrItemInactive = errors.New("inventory: item is inactive")
