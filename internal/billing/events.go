package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceFinalizedEvent fires after the finalize latch commits.
type InvoiceFinalizedEvent struct {
	InvoiceID     uuid.UUID
	InvoiceNumber string
	BranchID      uuid.UUID
	JobID         uuid.UUID
	TotalAmount   decimal.Decimal
	At            time.Time
}

// PaymentRecordedEvent fires after a payment commits.
type PaymentRecordedEvent struct {
	InvoiceID     uuid.UUID
	InvoiceNumber string
	PaymentID     uuid.UUID
	Amount        decimal.Decimal
	Method        PaymentMethod
	BalanceDue    decimal.Decimal
	Status        InvoiceStatus
	At            time.Time
}

// EventHandler receives billing events post-commit. Handler errors are
// logged and never fail the originating operation.
type EventHandler interface {
	HandleInvoiceFinalized(ctx context.Context, evt InvoiceFinalizedEvent) error
	HandlePaymentRecorded(ctx context.Context, evt PaymentRecordedEvent) error
}
