package notify

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fixpoint-hq/fixpoint/internal/billing"
	"github.com/fixpoint-hq/fixpoint/internal/inventory"
	"github.com/fixpoint-hq/fixpoint/internal/jobcard"
)

type sent struct {
	kind Kind
	ctx  map[string]string
}

type recordingNotifier struct {
	sent []sent
}

func (n *recordingNotifier) Notify(ctx context.Context, kind Kind, nctx map[string]string) error {
	n.sent = append(n.sent, sent{kind: kind, ctx: nctx})
	return nil
}

type countingMetrics struct {
	kinds       map[string]int
	transitions map[string]int
	movements   map[string]int
	finalized   int
	payments    int
}

func (m *countingMetrics) NotificationQueued(kind string) {
	if m.kinds == nil {
		m.kinds = make(map[string]int)
	}
	m.kinds[kind]++
}

func (m *countingMetrics) JobTransition(toStatus string) {
	if m.transitions == nil {
		m.transitions = make(map[string]int)
	}
	m.transitions[toStatus]++
}

func (m *countingMetrics) StockMovement(adjustmentType string) {
	if m.movements == nil {
		m.movements = make(map[string]int)
	}
	m.movements[adjustmentType]++
}

func (m *countingMetrics) InvoiceFinalized() { m.finalized++ }
func (m *countingMetrics) PaymentRecorded() { m.payments++ }

func TestBridgeStatusChanges(t *testing.T) {
	cases := []struct {
		newStatus jobcard.Status
		kind      Kind
		silent    bool
	}{
		{jobcard.StatusDiagnosed, KindJobDiagnosed, false},
		{jobcard.StatusEstimateShared, KindEstimateShared, false},
		{jobcard.StatusReady, KindJobReady, false},
		{jobcard.StatusDelivered, KindJobDelivered, false},
		{jobcard.StatusInProgress, "", true},
		{jobcard.StatusOnHold, "", true},
		{jobcard.StatusCancelled, "", true},
	}
	for _, tc := range cases {
		notifier := &recordingNotifier{}
		bridge := NewBridge(notifier, nil)
		err := bridge.HandleStatusChanged(context.Background(), jobcard.StatusChangedEvent{
			JobID:     uuid.New(),
			JobNumber: "JOB/2025-26/MUM/00001",
			NewStatus: tc.newStatus,
		})
		require.NoError(t, err)
		if tc.silent {
			require.Empty(t, notifier.sent, "status %s", tc.newStatus)
			continue
		}
		require.Len(t, notifier.sent, 1, "status %s", tc.newStatus)
		require.Equal(t, tc.kind, notifier.sent[0].kind)
		require.Equal(t, "JOB/2025-26/MUM/00001", notifier.sent[0].ctx["job_number"])
	}
}

func TestBridgeDeliveryOTP(t *testing.T) {
	notifier := &recordingNotifier{}
	bridge := NewBridge(notifier, nil)

	err := bridge.HandleDeliveryOTP(context.Background(), jobcard.DeliveryOTPEvent{
		JobNumber: "JOB/2025-26/MUM/00002",
		OTP:       "482913",
	})
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, KindDeliveryOTP, notifier.sent[0].kind)
	require.Equal(t, "482913", notifier.sent[0].ctx["otp"])
}

func TestBridgeLowStock(t *testing.T) {
	notifier := &recordingNotifier{}
	metrics := &countingMetrics{}
	bridge := NewBridge(notifier, metrics)

	err := bridge.HandleLowStock(context.Background(), inventory.LowStockEvent{
		Item:        inventory.Item{ID: uuid.New(), Name: "Battery", LowStockThreshold: 5},
		NewQuantity: 1,
	})
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, KindLowStock, notifier.sent[0].kind)
	require.Equal(t, "1", notifier.sent[0].ctx["quantity"])
	require.Equal(t, "5", notifier.sent[0].ctx["threshold"])
	require.Equal(t, 1, metrics.kinds[string(KindLowStock)])
}

func TestBridgePaymentRecorded(t *testing.T) {
	notifier := &recordingNotifier{}
	bridge := NewBridge(notifier, nil)

	err := bridge.HandlePaymentRecorded(context.Background(), billing.PaymentRecordedEvent{
		InvoiceNumber: "INV/2025-26/MUM/00003",
		Amount:        decimal.RequireFromString("1180.00"),
		BalanceDue:    decimal.Zero,
		Status:        billing.StatusPaid,
	})
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, KindPaymentReceived, notifier.sent[0].kind)
	require.Equal(t, "₹1,180.00", notifier.sent[0].ctx["amount"])
}

func TestBridgeSilentEvents(t *testing.T) {
	notifier := &recordingNotifier{}
	metrics := &countingMetrics{}
	bridge := NewBridge(notifier, metrics)

	require.NoError(t, bridge.HandleMovementPosted(context.Background(), inventory.MovementPostedEvent{Type: inventory.AdjustmentDeduct}))
	require.NoError(t, bridge.HandleInvoiceFinalized(context.Background(), billing.InvoiceFinalizedEvent{}))
	require.Empty(t, notifier.sent)
	require.Equal(t, 1, metrics.movements[string(inventory.AdjustmentDeduct)])
	require.Equal(t, 1, metrics.finalized)
}
