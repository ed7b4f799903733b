// Package notify defines the notification sink this core emits into and
// the bridge from domain events to notification kinds. Actual delivery
// (SMS, WhatsApp, email) lives outside; only the contract matters here.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/fixpoint-hq/fixpoint/jobs"
)

// Kind identifies a notification template.
type Kind string

const (
	KindJobCreated         Kind = "JOB_CREATED"
	KindJobDiagnosed       Kind = "JOB_DIAGNOSED"
	KindEstimateShared     Kind = "ESTIMATE_SHARED"
	KindJobReady           Kind = "JOB_READY"
	KindJobDelivered       Kind = "JOB_DELIVERED"
	KindDeliveryOTP        Kind = "DELIVERY_OTP"
	KindPaymentReceived    Kind = "PAYMENT_RECEIVED"
	KindLowStock           Kind = "LOW_STOCK"
	KindTechnicianAssigned Kind = "TECHNICIAN_ASSIGNED"
)

// Notifier is the fire-and-forget sink. Errors are for the caller's log
// only; senders never block or fail business operations on them.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, context map[string]string) error
}

// SlogNotifier logs notifications instead of delivering them. Used in
// tests and when no queue is configured.
type SlogNotifier struct {
	Logger *slog.Logger
}

func (n *SlogNotifier) Notify(ctx context.Context, kind Kind, nctx map[string]string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", slog.String("kind", string(kind)), slog.Any("context", nctx))
	return nil
}

// AsynqNotifier enqueues a dispatch task per notification; the worker
// delivers out-of-band.
type AsynqNotifier struct {
	Client *jobs.Client
	now    func() time.Time
}

// NewAsynqNotifier constructs AsynqNotifier.
func NewAsynqNotifier(client *jobs.Client) *AsynqNotifier {
	return &AsynqNotifier{Client: client, now: time.Now}
}

func (n *AsynqNotifier) Notify(ctx context.Context, kind Kind, nctx map[string]string) error {
	_, err := n.Client.EnqueueNotifyDispatch(ctx, jobs.NotifyDispatchPayload{
		Kind:     string(kind),
		Context:  nctx,
		QueuedAt: n.now(),
	})
	return err
}
