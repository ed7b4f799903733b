package jobcard

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatusChangedEvent fires after a transition commits. Delivery is
// at-least-once; consumers must tolerate replays.
type StatusChangedEvent struct {
	JobID      uuid.UUID
	JobNumber  string
	BranchID   uuid.UUID
	CustomerID uuid.UUID
	OldStatus  Status
	NewStatus  Status
	ActorID    uuid.UUID
	At         time.Time
}

// JobCreatedEvent fires after intake commits.
type JobCreatedEvent struct {
	JobID      uuid.UUID
	JobNumber  string
	BranchID   uuid.UUID
	CustomerID uuid.UUID
	At         time.Time
}

// TechnicianAssignedEvent fires after an assignment commits.
type TechnicianAssignedEvent struct {
	JobID        uuid.UUID
	JobNumber    string
	TechnicianID uuid.UUID
	At           time.Time
}

// DeliveryOTPEvent carries a freshly generated OTP for out-of-band
// delivery to the customer.
type DeliveryOTPEvent struct {
	JobID      uuid.UUID
	JobNumber  string
	CustomerID uuid.UUID
	OTP        string
	At         time.Time
}

// EventHandler receives lifecycle events post-commit. Handler errors are
// logged by the service and never fail the originating operation.
type EventHandler interface {
	HandleJobCreated(ctx context.Context, evt JobCreatedEvent) error
	HandleStatusChanged(ctx context.Context, evt StatusChangedEvent) error
	HandleTechnicianAssigned(ctx context.Context, evt TechnicianAssignedEvent) error
	HandleDeliveryOTP(ctx context.Context, evt DeliveryOTPEvent) error
}
