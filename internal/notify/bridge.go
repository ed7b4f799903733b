package notify

import (
	"context"
	"strconv"

	"github.com/fixpoint-hq/fixpoint/internal/billing"
	"github.com/fixpoint-hq/fixpoint/internal/inventory"
	"github.com/fixpoint-hq/fixpoint/internal/jobcard"
)

// Metrics receives domain counters. The bridge sees every post-commit
// event, so it doubles as the metrics tap. Optional.
type Metrics interface {
	NotificationQueued(kind string)
	JobTransition(toStatus string)
	StockMovement(movementType string)
	InvoiceFinalized()
	PaymentRecorded()
}

var (
	_ jobcard.EventHandler   = (*Bridge)(nil)
	_ inventory.EventHandler = (*Bridge)(nil)
	_ billing.EventHandler   = (*Bridge)(nil)
)

// statusKinds maps the transitions customers hear about. Transitions
// outside this map are internal and stay silent.
var statusKinds = map[jobcard.Status]Kind{
	jobcard.StatusDiagnosed:      KindJobDiagnosed,
	jobcard.StatusEstimateShared: KindEstimateShared,
	jobcard.StatusReady:          KindJobReady,
	jobcard.StatusDelivered:      KindJobDelivered,
}

// Bridge subscribes to domain events and forwards them to the Notifier.
// It implements the event handler interfaces of jobcard, inventory and
// billing.
type Bridge struct {
	notifier Notifier
	metrics  Metrics
}

// NewBridge constructs Bridge. Metrics may be nil.
func NewBridge(notifier Notifier, metrics Metrics) *Bridge {
	return &Bridge{notifier: notifier, metrics: metrics}
}

func (b *Bridge) send(ctx context.Context, kind Kind, nctx map[string]string) error {
	if b.metrics != nil {
		b.metrics.NotificationQueued(string(kind))
	}
	return b.notifier.Notify(ctx, kind, nctx)
}

func (b *Bridge) HandleJobCreated(ctx context.Context, evt jobcard.JobCreatedEvent) error {
	return b.send(ctx, KindJobCreated, map[string]string{
		"job_id":      evt.JobID.String(),
		"job_number":  evt.JobNumber,
		"customer_id": evt.CustomerID.String(),
	})
}

func (b *Bridge) HandleStatusChanged(ctx context.Context, evt jobcard.StatusChangedEvent) error {
	if b.metrics != nil {
		b.metrics.JobTransition(string(evt.NewStatus))
	}
	kind, ok := statusKinds[evt.NewStatus]
	if !ok {
		return nil
	}
	return b.send(ctx, kind, map[string]string{
		"job_id":      evt.JobID.String(),
		"job_number":  evt.JobNumber,
		"customer_id": evt.CustomerID.String(),
		"old_status":  string(evt.OldStatus),
		"new_status":  string(evt.NewStatus),
	})
}

func (b *Bridge) HandleTechnicianAssigned(ctx context.Context, evt jobcard.TechnicianAssignedEvent) error {
	return b.send(ctx, KindTechnicianAssigned, map[string]string{
		"job_id":        evt.JobID.String(),
		"job_number":    evt.JobNumber,
		"technician_id": evt.TechnicianID.String(),
	})
}

func (b *Bridge) HandleDeliveryOTP(ctx context.Context, evt jobcard.DeliveryOTPEvent) error {
	return b.send(ctx, KindDeliveryOTP, map[string]string{
		"job_id":      evt.JobID.String(),
		"job_number":  evt.JobNumber,
		"customer_id": evt.CustomerID.String(),
		"otp":         evt.OTP,
	})
}

func (b *Bridge) HandleLowStock(ctx context.Context, evt inventory.LowStockEvent) error {
	return b.send(ctx, KindLowStock, map[string]string{
		"item_id":   evt.Item.ID.String(),
		"item_name": evt.Item.Name,
		"quantity":  strconv.FormatInt(evt.NewQuantity, 10),
		"threshold": strconv.FormatInt(evt.Item.LowStockThreshold, 10),
	})
}

// HandleMovementPosted counts the movement; plain movements carry no
// customer notification.
func (b *Bridge) HandleMovementPosted(ctx context.Context, evt inventory.MovementPostedEvent) error {
	if b.metrics != nil {
		b.metrics.StockMovement(string(evt.Type))
	}
	return nil
}

// HandleInvoiceFinalized counts the latch; the customer hears about
// payments, not finalization.
func (b *Bridge) HandleInvoiceFinalized(ctx context.Context, evt billing.InvoiceFinalizedEvent) error {
	if b.metrics != nil {
		b.metrics.InvoiceFinalized()
	}
	return nil
}

func (b *Bridge) HandlePaymentRecorded(ctx context.Context, evt billing.PaymentRecordedEvent) error {
	if b.metrics != nil {
		b.metrics.PaymentRecorded()
	}
	return b.send(ctx, KindPaymentReceived, map[string]string{
		"invoice_id":     evt.InvoiceID.String(),
		"invoice_number": evt.InvoiceNumber,
		"amount":         billing.FormatINR(evt.Amount),
		"balance_due":    billing.FormatINR(evt.BalanceDue),
		"status":         string(evt.Status),
	})
}
