package jobcard

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fixpoint-hq/fixpoint/internal/audit"
	"github.com/fixpoint-hq/fixpoint/internal/inventory"
	"github.com/fixpoint-hq/fixpoint/internal/sequence"
	"github.com/fixpoint-hq/fixpoint/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetJob(ctx context.Context, jobID uuid.UUID) (JobCard, error)
	ListStatusHistory(ctx context.Context, jobID uuid.UUID) ([]StatusHistory, error)
	ListPartRequests(ctx context.Context, jobID uuid.UUID) ([]PartRequest, error)
}

// TxRepository is the slice of the repository available inside a
// transaction. Status history is insert-only.
type TxRepository interface {
	GetJobForUpdate(ctx context.Context, jobID uuid.UUID) (JobCard, error)
	InsertJob(ctx context.Context, job JobCard) error
	UpdateJobStatus(ctx context.Context, job JobCard) error
	UpdateJobTechnician(ctx context.Context, jobID, technicianID uuid.UUID) error
	UpdateDiagnosis(ctx context.Context, job JobCard) error
	UpdateDeliveryOTP(ctx context.Context, jobID uuid.UUID, otp string) error
	UpdateDevicePasswords(ctx context.Context, jobID uuid.UUID, deviceCiphertext, biosCiphertext string) error
	InsertStatusHistory(ctx context.Context, row StatusHistory) error
	GetPartRequestForUpdate(ctx context.Context, requestID uuid.UUID) (PartRequest, error)
	InsertPartRequest(ctx context.Context, req PartRequest) error
	UpdatePartRequestStatus(ctx context.Context, req PartRequest) error
}

// NumberSource issues branch-scoped document numbers.
type NumberSource interface {
	NextNumber(ctx context.Context, branchID uuid.UUID, kind sequence.Kind) (string, error)
}

// StockPort is the slice of the inventory ledger a part-request approval
// needs.
type StockPort interface {
	DeductStock(ctx context.Context, input inventory.DeductStockInput) (inventory.MovementResult, error)
}

// AuditPort abstracts the audit trail sink.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service drives the job lifecycle. Every status change runs in one
// transaction against the locked job row and appends exactly one history
// row; events and audit fire post-commit.
type Service struct {
	repo     RepositoryPort
	numbers  NumberSource
	stock    StockPort
	audit    AuditPort
	events   EventHandler
	secrets  *shared.SecretBox
	limiter  *OTPLimiter
	otpLen   int
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service. Stock, audit, events and limiter are
// optional; secrets is required when jobs carry device passwords.
func NewService(repo RepositoryPort, numbers NumberSource, stock StockPort, auditSink AuditPort, events EventHandler, secrets *shared.SecretBox, limiter *OTPLimiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		numbers:  numbers,
		stock:    stock,
		audit:    auditSink,
		events:   events,
		secrets:  secrets,
		limiter:  limiter,
		otpLen:   DefaultOTPLength,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetOTPLength overrides the delivery OTP length. Out-of-range values
// keep the default.
func (s *Service) SetOTPLength(n int) {
	if n >= 4 && n <= 10 {
		s.otpLen = n
	}
}

// CreateJob registers a device at intake. The job number is drawn from
// the branch sequence before the insert, so an aborted insert burns the
// number rather than reusing it.
func (s *Service) CreateJob(ctx context.Context, input CreateJobInput) (JobCard, error) {
	if err := s.validate.Struct(input); err != nil {
		return JobCard{}, shared.NewValidationError("create_job", err.Error())
	}

	number, err := s.numbers.NextNumber(ctx, input.BranchID, sequence.KindJobCard)
	if err != nil {
		return JobCard{}, fmt.Errorf("issue job number: %w", err)
	}

	job := JobCard{
		ID:                uuid.New(),
		BranchID:          input.BranchID,
		JobNumber:         number,
		CustomerID:        input.CustomerID,
		DeviceType:        input.DeviceType,
		Brand:             input.Brand,
		Model:             input.Model,
		SerialNumber:      input.SerialNumber,
		CustomerComplaint: input.CustomerComplaint,
		PhysicalCondition: input.PhysicalCondition,
		Status:            StatusReceived,
		ReceivedByID:      input.ReceivedByID,
		IsUrgent:          input.IsUrgent,
		IsWarrantyRepair:  input.IsWarrantyRepair,
		WarrantyDetails:   input.WarrantyDetails,
		CreatedAt:         s.now(),
		UpdatedAt:         s.now(),
	}
	if job.DevicePasswordCiphertext, err = s.encrypt(input.DevicePassword); err != nil {
		return JobCard{}, err
	}
	if job.BIOSPasswordCiphertext, err = s.encrypt(input.BIOSPassword); err != nil {
		return JobCard{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertJob(ctx, job)
	})
	if err != nil {
		return JobCard{}, shared.MapLockError(err)
	}

	s.recordAudit(ctx, input.ReceivedByID, "jobcard:create", job.ID, nil, map[string]any{
		"job_number": job.JobNumber,
		"status":     string(job.Status),
	}, nil)
	if s.events != nil {
		evt := JobCreatedEvent{JobID: job.ID, JobNumber: job.JobNumber, BranchID: job.BranchID, CustomerID: job.CustomerID, At: job.CreatedAt}
		if err := s.events.HandleJobCreated(ctx, evt); err != nil {
			s.logger.Warn("job created event handler failed", slog.Any("error", err))
		}
	}
	return job, nil
}

// Transition moves a job along the lifecycle graph. Override bypasses
// both the terminal and the edge check; authorising the override is the
// caller's concern.
func (s *Service) Transition(ctx context.Context, input TransitionInput) (TransitionResult, error) {
	if err := s.validate.Struct(input); err != nil {
		return TransitionResult{}, shared.NewValidationError("transition", err.Error())
	}
	if !input.NewStatus.IsValid() {
		return TransitionResult{}, shared.NewValidationError("new_status", fmt.Sprintf("unknown status %q", input.NewStatus))
	}

	var (
		job JobCard
		row StatusHistory
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		job, err = tx.GetJobForUpdate(ctx, input.JobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() && !input.IsOverride {
			return &ReadOnlyError{JobNumber: job.JobNumber, Status: job.Status}
		}
		if !input.IsOverride && !CanTransition(job.Status, input.NewStatus) {
			return &InvalidTransitionError{
				JobNumber: job.JobNumber,
				From:      job.Status,
				To:        input.NewStatus,
				Allowed:   AllowedTargets(job.Status),
			}
		}

		now := s.now()
		oldStatus := job.Status
		job.Status = input.NewStatus
		job.UpdatedAt = now
		switch input.NewStatus {
		case StatusApproved:
			job.CustomerApprovalAt = &now
		case StatusRejected:
			job.CustomerRejectionReason = input.Notes
		case StatusReady:
			job.CompletedAt = &now
		case StatusDelivered:
			job.DeliveredAt = &now
		}
		if err := tx.UpdateJobStatus(ctx, job); err != nil {
			return err
		}

		row = StatusHistory{
			ID:         uuid.New(),
			JobID:      job.ID,
			FromStatus: oldStatus,
			ToStatus:   input.NewStatus,
			ActorID:    input.ActorID,
			Notes:      input.Notes,
			IsOverride: input.IsOverride,
			CreatedAt:  now,
		}
		return tx.InsertStatusHistory(ctx, row)
	})
	if err != nil {
		return TransitionResult{}, shared.MapLockError(err)
	}

	s.recordAudit(ctx, input.ActorID, "jobcard:transition", job.ID,
		map[string]any{"status": string(row.FromStatus)},
		map[string]any{"status": string(row.ToStatus)},
		map[string]any{"history_id": row.ID.String(), "is_override": input.IsOverride})
	if s.events != nil {
		evt := StatusChangedEvent{
			JobID:      job.ID,
			JobNumber:  job.JobNumber,
			BranchID:   job.BranchID,
			CustomerID: job.CustomerID,
			OldStatus:  row.FromStatus,
			NewStatus:  row.ToStatus,
			ActorID:    input.ActorID,
			At:         row.CreatedAt,
		}
		if err := s.events.HandleStatusChanged(ctx, evt); err != nil {
			s.logger.Warn("status changed event handler failed", slog.Any("error", err))
		}
	}
	return TransitionResult{Status: job.Status, HistoryID: row.ID}, nil
}

// RecordDiagnosis writes the technician's findings onto the job. A job
// still in RECEIVED moves to DIAGNOSED in the same transaction, with its
// own history row; a job already past intake keeps its status.
func (s *Service) RecordDiagnosis(ctx context.Context, input RecordDiagnosisInput) (JobCard, error) {
	if err := s.validate.Struct(input); err != nil {
		return JobCard{}, shared.NewValidationError("record_diagnosis", err.Error())
	}

	var (
		job        JobCard
		row        StatusHistory
		transition bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		job, err = tx.GetJobForUpdate(ctx, input.JobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return &ReadOnlyError{JobNumber: job.JobNumber, Status: job.Status}
		}

		now := s.now()
		oldStatus := job.Status
		job.DiagnosisNotes = input.Notes
		job.EstimatedCost = input.EstimatedCost
		job.EstimatedCompletionDate = input.EstimatedCompletionDate
		job.UpdatedAt = now
		transition = job.Status == StatusReceived
		if transition {
			job.Status = StatusDiagnosed
		}
		if err := tx.UpdateDiagnosis(ctx, job); err != nil {
			return err
		}
		if !transition {
			return nil
		}
		row = StatusHistory{
			ID:         uuid.New(),
			JobID:      job.ID,
			FromStatus: oldStatus,
			ToStatus:   StatusDiagnosed,
			ActorID:    input.ActorID,
			Notes:      "Diagnosis completed",
			CreatedAt:  now,
		}
		return tx.InsertStatusHistory(ctx, row)
	})
	if err != nil {
		return JobCard{}, shared.MapLockError(err)
	}

	after := map[string]any{"diagnosis_notes": input.Notes}
	if input.EstimatedCost.Valid {
		after["estimated_cost"] = input.EstimatedCost.Decimal.String()
	}
	s.recordAudit(ctx, input.ActorID, "jobcard:record_diagnosis", job.ID, nil, after, nil)
	if transition && s.events != nil {
		evt := StatusChangedEvent{
			JobID:      job.ID,
			JobNumber:  job.JobNumber,
			BranchID:   job.BranchID,
			CustomerID: job.CustomerID,
			OldStatus:  row.FromStatus,
			NewStatus:  row.ToStatus,
			ActorID:    input.ActorID,
			At:         row.CreatedAt,
		}
		if err := s.events.HandleStatusChanged(ctx, evt); err != nil {
			s.logger.Warn("status changed event handler failed", slog.Any("error", err))
		}
	}
	return job, nil
}

// AssignTechnician sets the job's technician. Terminal jobs reject the
// assignment.
func (s *Service) AssignTechnician(ctx context.Context, jobID, technicianID, actorID uuid.UUID) error {
	if technicianID == uuid.Nil {
		return shared.NewValidationError("technician_id", "required")
	}
	var job JobCard
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		job, err = tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return &ReadOnlyError{JobNumber: job.JobNumber, Status: job.Status}
		}
		return tx.UpdateJobTechnician(ctx, jobID, technicianID)
	})
	if err != nil {
		return shared.MapLockError(err)
	}

	s.recordAudit(ctx, actorID, "jobcard:assign_technician", jobID,
		map[string]any{"technician_id": nilUUIDString(job.AssignedTechnicianID)},
		map[string]any{"technician_id": technicianID.String()}, nil)
	if s.events != nil {
		evt := TechnicianAssignedEvent{JobID: jobID, JobNumber: job.JobNumber, TechnicianID: technicianID, At: s.now()}
		if err := s.events.HandleTechnicianAssigned(ctx, evt); err != nil {
			s.logger.Warn("technician assigned event handler failed", slog.Any("error", err))
		}
	}
	return nil
}

// RequestPart records a technician's part request in PENDING state.
func (s *Service) RequestPart(ctx context.Context, input RequestPartInput) (PartRequest, error) {
	if err := s.validate.Struct(input); err != nil {
		return PartRequest{}, shared.NewValidationError("request_part", err.Error())
	}

	req := PartRequest{
		ID:            uuid.New(),
		JobID:         input.JobID,
		RequestedByID: input.RequestedByID,
		ItemID:        input.ItemID,
		PartName:      input.PartName,
		Quantity:      input.Quantity,
		Status:        PartRequestPending,
		Notes:         input.Notes,
		CreatedAt:     s.now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		job, err := tx.GetJobForUpdate(ctx, input.JobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return &ReadOnlyError{JobNumber: job.JobNumber, Status: job.Status}
		}
		return tx.InsertPartRequest(ctx, req)
	})
	if err != nil {
		return PartRequest{}, shared.MapLockError(err)
	}

	s.recordAudit(ctx, input.RequestedByID, "jobcard:request_part", input.JobID, nil, map[string]any{
		"part_request_id": req.ID.String(),
		"part_name":       req.PartName,
		"quantity":        req.Quantity,
	}, nil)
	return req, nil
}

// ApprovePartRequest deducts the part from stock and marks the request
// APPROVED. The deduction carries an idempotency key derived from the
// request, so a retry after a failed approval update cannot deduct twice.
func (s *Service) ApprovePartRequest(ctx context.Context, requestID, approverID uuid.UUID) error {
	var req PartRequest
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetPartRequestForUpdate(ctx, requestID)
		return err
	}); err != nil {
		return shared.MapLockError(err)
	}
	if req.Status != PartRequestPending {
		return ErrPartRequestSettled
	}

	job, err := s.repo.GetJob(ctx, req.JobID)
	if err != nil {
		return err
	}

	if req.ItemID != uuid.Nil {
		if s.stock == nil {
			return shared.NewInvariantViolation("part request %s references stock but no inventory ledger is wired", requestID)
		}
		_, err := s.stock.DeductStock(ctx, inventory.DeductStockInput{
			ItemID:   req.ItemID,
			Quantity: req.Quantity,
			Reason:   fmt.Sprintf("used for job %s", job.JobNumber),
			ActorID:  approverID,
			JobID:    req.JobID,
			Key:      "part-request:" + requestID.String(),
		})
		// An idempotency conflict means a prior attempt already deducted
		// this request but died before flipping the status. The deduction
		// stands; carry on to the approval update.
		if err != nil && !errors.Is(err, shared.ErrIdempotencyConflict) {
			return err
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.GetPartRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if cur.Status != PartRequestPending {
			return ErrPartRequestSettled
		}
		cur.Status = PartRequestApproved
		cur.ApprovedByID = approverID
		return tx.UpdatePartRequestStatus(ctx, cur)
	})
	if err != nil {
		return shared.MapLockError(err)
	}

	s.recordAudit(ctx, approverID, "jobcard:approve_part_request", req.JobID,
		map[string]any{"status": string(PartRequestPending)},
		map[string]any{"status": string(PartRequestApproved)},
		map[string]any{"part_request_id": requestID.String()})
	return nil
}

// RejectPartRequest marks a pending request REJECTED with a reason.
func (s *Service) RejectPartRequest(ctx context.Context, requestID, approverID uuid.UUID, reason string) error {
	if reason == "" {
		return shared.NewValidationError("reason", "required")
	}
	var req PartRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetPartRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != PartRequestPending {
			return ErrPartRequestSettled
		}
		req.Status = PartRequestRejected
		req.ApprovedByID = approverID
		req.RejectionReason = reason
		return tx.UpdatePartRequestStatus(ctx, req)
	})
	if err != nil {
		return shared.MapLockError(err)
	}

	s.recordAudit(ctx, approverID, "jobcard:reject_part_request", req.JobID,
		map[string]any{"status": string(PartRequestPending)},
		map[string]any{"status": string(PartRequestRejected)},
		map[string]any{"part_request_id": requestID.String(), "reason": reason})
	return nil
}

// GenerateDeliveryOTP issues a fresh numeric code for a READY job, stores
// it, and emits it for out-of-band delivery. Issuing a new code resets
// the attempt counter.
func (s *Service) GenerateDeliveryOTP(ctx context.Context, jobID, actorID uuid.UUID) (string, error) {
	otp, err := GenerateOTP(s.otpLen)
	if err != nil {
		return "", err
	}

	var job JobCard
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		job, err = tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != StatusReady {
			return shared.NewValidationError("status", fmt.Sprintf("delivery OTP requires READY status, job is %s", job.Status))
		}
		return tx.UpdateDeliveryOTP(ctx, jobID, otp)
	})
	if err != nil {
		return "", shared.MapLockError(err)
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, jobID); err != nil {
			s.logger.Warn("otp limiter reset failed", slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actorID, "jobcard:generate_delivery_otp", jobID, nil, nil, nil)
	if s.events != nil {
		evt := DeliveryOTPEvent{JobID: jobID, JobNumber: job.JobNumber, CustomerID: job.CustomerID, OTP: otp, At: s.now()}
		if err := s.events.HandleDeliveryOTP(ctx, evt); err != nil {
			s.logger.Warn("delivery otp event handler failed", slog.Any("error", err))
		}
	}
	return otp, nil
}

// VerifyDeliveryOTP checks a candidate against the stored code without
// changing any state. Attempts are bounded per job when a limiter is
// wired; comparison is constant-time.
func (s *Service) VerifyDeliveryOTP(ctx context.Context, jobID uuid.UUID, candidate string) (bool, error) {
	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, jobID); err != nil {
			return false, err
		}
	}
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.DeliveryOTP == "" {
		return false, ErrOTPNotGenerated
	}
	ok := subtle.ConstantTimeCompare([]byte(job.DeliveryOTP), []byte(candidate)) == 1
	if ok && s.limiter != nil {
		if err := s.limiter.Reset(ctx, jobID); err != nil {
			s.logger.Warn("otp limiter reset failed", slog.Any("error", err))
		}
	}
	return ok, nil
}

// SetDevicePassword stores freshly encrypted device and BIOS passwords.
func (s *Service) SetDevicePassword(ctx context.Context, jobID, actorID uuid.UUID, devicePassword, biosPassword string) error {
	deviceCt, err := s.encrypt(devicePassword)
	if err != nil {
		return err
	}
	biosCt, err := s.encrypt(biosPassword)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		job, err := tx.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return &ReadOnlyError{JobNumber: job.JobNumber, Status: job.Status}
		}
		return tx.UpdateDevicePasswords(ctx, jobID, deviceCt, biosCt)
	})
	if err != nil {
		return shared.MapLockError(err)
	}
	s.recordAudit(ctx, actorID, "jobcard:set_device_password", jobID, nil, nil, nil)
	return nil
}

// DevicePassword returns the decrypted device and BIOS passwords.
func (s *Service) DevicePassword(ctx context.Context, jobID uuid.UUID) (device, bios string, err error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return "", "", err
	}
	if s.secrets == nil {
		return "", "", shared.NewInvariantViolation("no encryption key configured")
	}
	if device, err = s.secrets.Decrypt(job.DevicePasswordCiphertext); err != nil {
		return "", "", fmt.Errorf("decrypt device password: %w", err)
	}
	if bios, err = s.secrets.Decrypt(job.BIOSPasswordCiphertext); err != nil {
		return "", "", fmt.Errorf("decrypt bios password: %w", err)
	}
	return device, bios, nil
}

// GetJob fetches one job card.
func (s *Service) GetJob(ctx context.Context, jobID uuid.UUID) (JobCard, error) {
	return s.repo.GetJob(ctx, jobID)
}

// History returns the job's transition trail, oldest first.
func (s *Service) History(ctx context.Context, jobID uuid.UUID) ([]StatusHistory, error) {
	return s.repo.ListStatusHistory(ctx, jobID)
}

// PartRequests lists a job's part requests.
func (s *Service) PartRequests(ctx context.Context, jobID uuid.UUID) ([]PartRequest, error) {
	return s.repo.ListPartRequests(ctx, jobID)
}

func (s *Service) encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if s.secrets == nil {
		return "", shared.NewInvariantViolation("no encryption key configured")
	}
	ct, err := s.secrets.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt password: %w", err)
	}
	return ct, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, jobID uuid.UUID, oldValues, newValues, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		ActorID:   actorID,
		Action:    action,
		Entity:    "job_card",
		EntityID:  jobID.String(),
		OldValues: oldValues,
		NewValues: newValues,
		Details:   details,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("jobcard audit write failed", slog.Any("error", err))
	}
}

func nilUUIDString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
