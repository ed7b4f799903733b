// Package jobcard owns the repair job lifecycle: intake, the status state
// machine with its append-only history, technician assignment, part
// requests, and the delivery OTP handshake.
package jobcard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrJobNotFound         = errors.New("job card not found")
	ErrPartRequestNotFound = errors.New("part request not found")
	ErrPartRequestSettled  = errors.New("part request already settled")
	ErrOTPNotGenerated     = errors.New("no delivery OTP generated for job")
	ErrOTPAttemptsExceeded = errors.New("too many OTP attempts, try again later")
)

// Status is a job card lifecycle state.
type Status string

const (
	StatusReceived       Status = "RECEIVED"
	StatusDiagnosed      Status = "DIAGNOSED"
	StatusEstimateShared Status = "ESTIMATE_SHARED"
	StatusApproved       Status = "APPROVED"
	StatusRejected       Status = "REJECTED"
	StatusInProgress     Status = "IN_PROGRESS"
	StatusOnHold         Status = "ON_HOLD"
	StatusReady          Status = "READY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

// AllStatuses lists every status, in lifecycle order.
var AllStatuses = []Status{
	StatusReceived, StatusDiagnosed, StatusEstimateShared, StatusApproved,
	StatusRejected, StatusInProgress, StatusOnHold, StatusReady,
	StatusDelivered, StatusCancelled,
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusReceived, StatusDiagnosed, StatusEstimateShared, StatusApproved,
		StatusRejected, StatusInProgress, StatusOnHold, StatusReady,
		StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s admits no further transitions. A job in a
// terminal status is read-only except through the override path.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// AllowedTargets returns the statuses reachable from s. The switch is
// exhaustive over all states so adding a status without deciding its edges
// is caught here.
func AllowedTargets(s Status) []Status {
	switch s {
	case StatusReceived:
		return []Status{StatusDiagnosed, StatusCancelled}
	case StatusDiagnosed:
		return []Status{StatusEstimateShared, StatusCancelled}
	case StatusEstimateShared:
		return []Status{StatusApproved, StatusRejected, StatusCancelled}
	case StatusApproved:
		return []Status{StatusInProgress, StatusCancelled}
	case StatusInProgress:
		return []Status{StatusOnHold, StatusReady, StatusCancelled}
	case StatusOnHold:
		return []Status{StatusInProgress, StatusCancelled}
	case StatusReady:
		// The only back-edge: a fault found at pickup sends the job
		// back to the bench.
		return []Status{StatusDelivered, StatusInProgress}
	case StatusDelivered, StatusCancelled, StatusRejected:
		return nil
	}
	return nil
}

// CanTransition reports whether the edge from→to is in the legal graph.
func CanTransition(from, to Status) bool {
	for _, t := range AllowedTargets(from) {
		if t == to {
			return true
		}
	}
	return false
}

// DeviceType categorises the device under repair.
type DeviceType string

const (
	DeviceLaptop  DeviceType = "LAPTOP"
	DeviceDesktop DeviceType = "DESKTOP"
	DeviceTablet  DeviceType = "TABLET"
	DeviceMobile  DeviceType = "MOBILE"
	DevicePrinter DeviceType = "PRINTER"
	DeviceOther   DeviceType = "OTHER"
)

// JobCard is one repair job. The two password fields hold ciphertext only;
// plaintext never touches the row. Use Service.SetDevicePassword and
// Service.DevicePassword for access.
type JobCard struct {
	ID         uuid.UUID
	BranchID   uuid.UUID
	JobNumber  string
	CustomerID uuid.UUID

	DeviceType   DeviceType
	Brand        string
	Model        string
	SerialNumber string

	DevicePasswordCiphertext string
	BIOSPasswordCiphertext   string

	CustomerComplaint string
	PhysicalCondition string

	Status               Status
	AssignedTechnicianID uuid.UUID
	ReceivedByID         uuid.UUID

	DiagnosisNotes          string
	EstimatedCost           decimal.NullDecimal
	EstimatedCompletionDate *time.Time

	CustomerApprovalAt      *time.Time
	CustomerRejectionReason string

	CompletionNotes string
	CompletedAt     *time.Time

	DeliveredAt *time.Time
	DeliveryOTP string

	IsUrgent         bool
	IsWarrantyRepair bool
	WarrantyDetails  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusHistory is one immutable row per transition. Rows are insert-only;
// the repository exposes no update or delete for them.
type StatusHistory struct {
	ID         uuid.UUID
	JobID      uuid.UUID
	FromStatus Status
	ToStatus   Status
	ActorID    uuid.UUID
	Notes      string
	IsOverride bool
	CreatedAt  time.Time
}

// PartRequestStatus tracks a technician's part request through approval.
type PartRequestStatus string

const (
	PartRequestPending  PartRequestStatus = "PENDING"
	PartRequestApproved PartRequestStatus = "APPROVED"
	PartRequestRejected PartRequestStatus = "REJECTED"
)

// PartRequest is a technician's ask for a part. ItemID may be Nil for a
// part not yet stocked; approval only touches inventory when it is set.
type PartRequest struct {
	ID              uuid.UUID
	JobID           uuid.UUID
	RequestedByID   uuid.UUID
	ItemID          uuid.UUID
	PartName        string
	Quantity        int64
	Status          PartRequestStatus
	ApprovedByID    uuid.UUID
	RejectionReason string
	Notes           string
	CreatedAt       time.Time
}

// CreateJobInput is the intake payload. Passwords arrive in plaintext and
// are encrypted before anything is written.
type CreateJobInput struct {
	BranchID          uuid.UUID  `validate:"required"`
	CustomerID        uuid.UUID  `validate:"required"`
	DeviceType        DeviceType `validate:"required"`
	Brand             string     `validate:"required,max=100"`
	Model             string     `validate:"required,max=100"`
	SerialNumber      string     `validate:"max=100"`
	DevicePassword    string
	BIOSPassword      string
	CustomerComplaint string `validate:"required"`
	PhysicalCondition string `validate:"required"`
	ReceivedByID      uuid.UUID `validate:"required"`
	IsUrgent          bool
	IsWarrantyRepair  bool
	WarrantyDetails   string
}

// TransitionInput moves a job to a new status.
type TransitionInput struct {
	JobID      uuid.UUID `validate:"required"`
	NewStatus  Status    `validate:"required"`
	ActorID    uuid.UUID `validate:"required"`
	Notes      string    `validate:"max=2000"`
	IsOverride bool
}

// TransitionResult reports the committed transition.
type TransitionResult struct {
	Status    Status
	HistoryID uuid.UUID
}

// RecordDiagnosisInput captures the technician's findings. Cost and
// completion date are optional; notes are not.
type RecordDiagnosisInput struct {
	JobID                   uuid.UUID `validate:"required"`
	ActorID                 uuid.UUID `validate:"required"`
	Notes                   string    `validate:"required,max=5000"`
	EstimatedCost           decimal.NullDecimal
	EstimatedCompletionDate *time.Time
}

// RequestPartInput records a technician's part request against a job.
type RequestPartInput struct {
	JobID         uuid.UUID `validate:"required"`
	RequestedByID uuid.UUID `validate:"required"`
	ItemID        uuid.UUID
	PartName      string `validate:"required,max=255"`
	Quantity      int64  `validate:"required,gt=0"`
	Notes         string `validate:"max=2000"`
}

// InvalidTransitionError rejects an edge outside the legal graph. Allowed
// carries the full target list so callers can surface a precise message.
type InvalidTransitionError struct {
	JobNumber string
	From      Status
	To        Status
	Allowed   []Status
}

func (e *InvalidTransitionError) Error() string {
	targets := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		targets[i] = string(s)
	}
	return fmt.Sprintf("job %s: cannot transition from %s to %s (allowed: %s)",
		e.JobNumber, e.From, e.To, strings.Join(targets, ", "))
}

// ReadOnlyError rejects any mutation of a job in a terminal status.
type ReadOnlyError struct {
	JobNumber string
	Status    Status
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("job %s is %s and read-only", e.JobNumber, e.Status)
}
