package jobcard

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fixpoint-hq/fixpoint/internal/inventory"
	"github.com/fixpoint-hq/fixpoint/internal/sequence"
	"github.com/fixpoint-hq/fixpoint/internal/shared"
)

type memoryRepo struct {
	jobs     map[uuid.UUID]*JobCard
	history  []StatusHistory
	requests map[uuid.UUID]*PartRequest
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		jobs:     make(map[uuid.UUID]*JobCard),
		requests: make(map[uuid.UUID]*PartRequest),
	}
}

func (r *memoryRepo) addJob(job JobCard) uuid.UUID {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = StatusReceived
	}
	if job.JobNumber == "" {
		job.JobNumber = fmt.Sprintf("JOB/2025-26/MUM/%05d", len(r.jobs)+1)
	}
	r.jobs[job.ID] = &job
	return job.ID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetJob(ctx context.Context, jobID uuid.UUID) (JobCard, error) {
	job, ok := r.jobs[jobID]
	if !ok {
		return JobCard{}, ErrJobNotFound
	}
	return *job, nil
}

func (r *memoryRepo) ListStatusHistory(ctx context.Context, jobID uuid.UUID) ([]StatusHistory, error) {
	out := []StatusHistory{}
	for _, row := range r.history {
		if row.JobID == jobID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListPartRequests(ctx context.Context, jobID uuid.UUID) ([]PartRequest, error) {
	out := []PartRequest{}
	for _, req := range r.requests {
		if req.JobID == jobID {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetJobForUpdate(ctx context.Context, jobID uuid.UUID) (JobCard, error) {
	return tx.repo.GetJob(ctx, jobID)
}

func (tx *memoryTx) InsertJob(ctx context.Context, job JobCard) error {
	tx.repo.jobs[job.ID] = &job
	return nil
}

func (tx *memoryTx) UpdateJobStatus(ctx context.Context, job JobCard) error {
	cur, ok := tx.repo.jobs[job.ID]
	if !ok {
		return ErrJobNotFound
	}
	cur.Status = job.Status
	cur.CustomerApprovalAt = job.CustomerApprovalAt
	cur.CustomerRejectionReason = job.CustomerRejectionReason
	cur.CompletedAt = job.CompletedAt
	cur.DeliveredAt = job.DeliveredAt
	cur.UpdatedAt = job.UpdatedAt
	return nil
}

func (tx *memoryTx) UpdateDiagnosis(ctx context.Context, job JobCard) error {
	cur, ok := tx.repo.jobs[job.ID]
	if !ok {
		return ErrJobNotFound
	}
	cur.DiagnosisNotes = job.DiagnosisNotes
	cur.EstimatedCost = job.EstimatedCost
	cur.EstimatedCompletionDate = job.EstimatedCompletionDate
	cur.Status = job.Status
	cur.UpdatedAt = job.UpdatedAt
	return nil
}

func (tx *memoryTx) UpdateJobTechnician(ctx context.Context, jobID, technicianID uuid.UUID) error {
	job, ok := tx.repo.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.AssignedTechnicianID = technicianID
	return nil
}

func (tx *memoryTx) UpdateDeliveryOTP(ctx context.Context, jobID uuid.UUID, otp string) error {
	job, ok := tx.repo.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.DeliveryOTP = otp
	return nil
}

func (tx *memoryTx) UpdateDevicePasswords(ctx context.Context, jobID uuid.UUID, deviceCiphertext, biosCiphertext string) error {
	job, ok := tx.repo.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.DevicePasswordCiphertext = deviceCiphertext
	job.BIOSPasswordCiphertext = biosCiphertext
	return nil
}

func (tx *memoryTx) InsertStatusHistory(ctx context.Context, row StatusHistory) error {
	tx.repo.history = append(tx.repo.history, row)
	return nil
}

func (tx *memoryTx) GetPartRequestForUpdate(ctx context.Context, requestID uuid.UUID) (PartRequest, error) {
	req, ok := tx.repo.requests[requestID]
	if !ok {
		return PartRequest{}, ErrPartRequestNotFound
	}
	return *req, nil
}

func (tx *memoryTx) InsertPartRequest(ctx context.Context, req PartRequest) error {
	tx.repo.requests[req.ID] = &req
	return nil
}

func (tx *memoryTx) UpdatePartRequestStatus(ctx context.Context, req PartRequest) error {
	cur, ok := tx.repo.requests[req.ID]
	if !ok {
		return ErrPartRequestNotFound
	}
	cur.Status = req.Status
	cur.ApprovedByID = req.ApprovedByID
	cur.RejectionReason = req.RejectionReason
	return nil
}

type staticNumbers struct {
	next int
}

func (n *staticNumbers) NextNumber(ctx context.Context, branchID uuid.UUID, kind sequence.Kind) (string, error) {
	n.next++
	return fmt.Sprintf("JOB/2025-26/MUM/%05d", n.next), nil
}

type recordedStock struct {
	inputs []inventory.DeductStockInput
	fail   error
}

func (s *recordedStock) DeductStock(ctx context.Context, input inventory.DeductStockInput) (inventory.MovementResult, error) {
	if s.fail != nil {
		return inventory.MovementResult{}, s.fail
	}
	s.inputs = append(s.inputs, input)
	return inventory.MovementResult{NewQuantity: 1, AdjustmentID: uuid.New()}, nil
}

type recordedEvents struct {
	created    []JobCreatedEvent
	changed    []StatusChangedEvent
	assigned   []TechnicianAssignedEvent
	otpsIssued []DeliveryOTPEvent
}

func (e *recordedEvents) HandleJobCreated(ctx context.Context, evt JobCreatedEvent) error {
	e.created = append(e.created, evt)
	return nil
}

func (e *recordedEvents) HandleStatusChanged(ctx context.Context, evt StatusChangedEvent) error {
	e.changed = append(e.changed, evt)
	return nil
}

func (e *recordedEvents) HandleTechnicianAssigned(ctx context.Context, evt TechnicianAssignedEvent) error {
	e.assigned = append(e.assigned, evt)
	return nil
}

func (e *recordedEvents) HandleDeliveryOTP(ctx context.Context, evt DeliveryOTPEvent) error {
	e.otpsIssued = append(e.otpsIssued, evt)
	return nil
}

func testSecrets(t *testing.T) *shared.SecretBox {
	t.Helper()
	box, err := shared.NewSecretBox(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return box
}

func newTestService(t *testing.T, repo *memoryRepo, stock StockPort, events EventHandler, limiter *OTPLimiter) *Service {
	t.Helper()
	return NewService(repo, &staticNumbers{}, stock, nil, events, testSecrets(t), limiter, nil)
}

func TestCreateJob(t *testing.T) {
	repo := newMemoryRepo()
	events := &recordedEvents{}
	svc := newTestService(t, repo, nil, events, nil)

	job, err := svc.CreateJob(context.Background(), CreateJobInput{
		BranchID:          uuid.New(),
		CustomerID:        uuid.New(),
		DeviceType:        DeviceLaptop,
		Brand:             "Lenovo",
		Model:             "T14",
		CustomerComplaint: "Does not power on",
		PhysicalCondition: "Scratch on lid",
		ReceivedByID:      uuid.New(),
		DevicePassword:    "hunter2",
	})
	require.NoError(t, err)
	require.Equal(t, "JOB/2025-26/MUM/00001", job.JobNumber)
	require.Equal(t, StatusReceived, job.Status)

	// Ciphertext only at rest, plaintext round-trips through the service.
	stored, err := repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.DevicePasswordCiphertext)
	require.NotContains(t, stored.DevicePasswordCiphertext, "hunter2")
	device, bios, err := svc.DevicePassword(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, "hunter2", device)
	require.Empty(t, bios)

	require.Len(t, events.created, 1)
	require.Equal(t, job.JobNumber, events.created[0].JobNumber)
}

func TestTransitionLegality(t *testing.T) {
	// For every state and every target not in its edge set the transition
	// fails and leaves status and history untouched; legal edges succeed
	// with exactly one history row.
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			repo := newMemoryRepo()
			jobID := repo.addJob(JobCard{Status: from})
			svc := newTestService(t, repo, nil, nil, nil)

			res, err := svc.Transition(context.Background(), TransitionInput{
				JobID: jobID, NewStatus: to, ActorID: uuid.New(),
			})
			job, getErr := repo.GetJob(context.Background(), jobID)
			require.NoError(t, getErr)

			if CanTransition(from, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				require.Equal(t, to, res.Status)
				require.Equal(t, to, job.Status)
				require.Len(t, repo.history, 1)
				require.Equal(t, from, repo.history[0].FromStatus)
				require.Equal(t, to, repo.history[0].ToStatus)
			} else {
				require.Error(t, err, "%s -> %s", from, to)
				require.Equal(t, from, job.Status)
				require.Empty(t, repo.history)
				if from.IsTerminal() {
					var roe *ReadOnlyError
					require.ErrorAs(t, err, &roe)
				} else {
					var ite *InvalidTransitionError
					require.ErrorAs(t, err, &ite)
					require.ElementsMatch(t, AllowedTargets(from), ite.Allowed)
				}
			}
		}
	}
}

func TestTransitionStampsTimestamps(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusInProgress})
	svc := newTestService(t, repo, nil, nil, nil)
	fixed := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()
	actor := uuid.New()

	_, err := svc.Transition(ctx, TransitionInput{JobID: jobID, NewStatus: StatusReady, ActorID: actor})
	require.NoError(t, err)
	job, _ := repo.GetJob(ctx, jobID)
	require.NotNil(t, job.CompletedAt)
	require.Equal(t, fixed, *job.CompletedAt)
	require.Nil(t, job.DeliveredAt)

	_, err = svc.Transition(ctx, TransitionInput{JobID: jobID, NewStatus: StatusDelivered, ActorID: actor})
	require.NoError(t, err)
	job, _ = repo.GetJob(ctx, jobID)
	require.NotNil(t, job.DeliveredAt)
	require.Equal(t, fixed, *job.DeliveredAt)
}

func TestTransitionOverrideBypassesTerminal(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusDelivered})
	events := &recordedEvents{}
	svc := newTestService(t, repo, nil, events, nil)

	res, err := svc.Transition(context.Background(), TransitionInput{
		JobID: jobID, NewStatus: StatusInProgress, ActorID: uuid.New(),
		Notes: "device returned under warranty", IsOverride: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, res.Status)
	require.Len(t, repo.history, 1)
	require.True(t, repo.history[0].IsOverride)
	require.Len(t, events.changed, 1)
}

func TestTransitionReadyBackEdge(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusReady})
	svc := newTestService(t, repo, nil, nil, nil)

	_, err := svc.Transition(context.Background(), TransitionInput{JobID: jobID, NewStatus: StatusInProgress, ActorID: uuid.New()})
	require.NoError(t, err)
}

func TestRecordDiagnosisMovesReceivedJob(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusReceived})
	events := &recordedEvents{}
	svc := newTestService(t, repo, nil, events, nil)
	due := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	job, err := svc.RecordDiagnosis(context.Background(), RecordDiagnosisInput{
		JobID:                   jobID,
		ActorID:                 uuid.New(),
		Notes:                   "Failed DC jack, board otherwise healthy",
		EstimatedCost:           decimal.NewNullDecimal(decimal.NewFromInt(1800)),
		EstimatedCompletionDate: &due,
	})
	require.NoError(t, err)
	require.Equal(t, StatusDiagnosed, job.Status)

	stored, _ := repo.GetJob(context.Background(), jobID)
	require.Equal(t, StatusDiagnosed, stored.Status)
	require.Equal(t, "Failed DC jack, board otherwise healthy", stored.DiagnosisNotes)
	require.True(t, stored.EstimatedCost.Valid)
	require.True(t, stored.EstimatedCost.Decimal.Equal(decimal.NewFromInt(1800)))
	require.Equal(t, due, *stored.EstimatedCompletionDate)

	require.Len(t, repo.history, 1)
	require.Equal(t, StatusReceived, repo.history[0].FromStatus)
	require.Equal(t, StatusDiagnosed, repo.history[0].ToStatus)
	require.Equal(t, "Diagnosis completed", repo.history[0].Notes)
	require.Len(t, events.changed, 1)
}

func TestRecordDiagnosisKeepsLaterStatus(t *testing.T) {
	// Re-diagnosing a job already on the bench updates the findings
	// without rewinding the state machine.
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusInProgress})
	svc := newTestService(t, repo, nil, nil, nil)

	job, err := svc.RecordDiagnosis(context.Background(), RecordDiagnosisInput{
		JobID: jobID, ActorID: uuid.New(), Notes: "Second fault: swollen battery",
	})
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, job.Status)
	require.Empty(t, repo.history)
}

func TestRecordDiagnosisRejectsTerminalJob(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusDelivered})
	svc := newTestService(t, repo, nil, nil, nil)

	_, err := svc.RecordDiagnosis(context.Background(), RecordDiagnosisInput{
		JobID: jobID, ActorID: uuid.New(), Notes: "late findings",
	})
	var roe *ReadOnlyError
	require.ErrorAs(t, err, &roe)
}

func TestRecordDiagnosisRequiresNotes(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusReceived})
	svc := newTestService(t, repo, nil, nil, nil)

	_, err := svc.RecordDiagnosis(context.Background(), RecordDiagnosisInput{
		JobID: jobID, ActorID: uuid.New(),
	})
	require.True(t, shared.IsValidation(err))
}

func TestAssignTechnician(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusReceived})
	events := &recordedEvents{}
	svc := newTestService(t, repo, nil, events, nil)
	tech := uuid.New()

	require.NoError(t, svc.AssignTechnician(context.Background(), jobID, tech, uuid.New()))
	job, _ := repo.GetJob(context.Background(), jobID)
	require.Equal(t, tech, job.AssignedTechnicianID)
	require.Len(t, events.assigned, 1)

	// Terminal jobs reject assignment.
	cancelled := repo.addJob(JobCard{Status: StatusCancelled})
	err := svc.AssignTechnician(context.Background(), cancelled, tech, uuid.New())
	var roe *ReadOnlyError
	require.ErrorAs(t, err, &roe)
}

func TestPartRequestLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusInProgress, JobNumber: "JOB/2025-26/MUM/00042"})
	stock := &recordedStock{}
	svc := newTestService(t, repo, stock, nil, nil)
	ctx := context.Background()
	itemID := uuid.New()

	req, err := svc.RequestPart(ctx, RequestPartInput{
		JobID: jobID, RequestedByID: uuid.New(), ItemID: itemID,
		PartName: "Battery 57Wh", Quantity: 1,
	})
	require.NoError(t, err)
	require.Equal(t, PartRequestPending, req.Status)

	approver := uuid.New()
	require.NoError(t, svc.ApprovePartRequest(ctx, req.ID, approver))
	require.Len(t, stock.inputs, 1)
	require.Equal(t, itemID, stock.inputs[0].ItemID)
	require.Equal(t, jobID, stock.inputs[0].JobID)
	require.Contains(t, stock.inputs[0].Reason, "JOB/2025-26/MUM/00042")
	require.Equal(t, "part-request:"+req.ID.String(), stock.inputs[0].Key)

	stored := repo.requests[req.ID]
	require.Equal(t, PartRequestApproved, stored.Status)
	require.Equal(t, approver, stored.ApprovedByID)

	// A settled request cannot be approved or rejected again.
	require.ErrorIs(t, svc.ApprovePartRequest(ctx, req.ID, approver), ErrPartRequestSettled)
	require.ErrorIs(t, svc.RejectPartRequest(ctx, req.ID, approver, "late"), ErrPartRequestSettled)
}

func TestApprovePartRequestInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusInProgress})
	stock := &recordedStock{fail: &inventory.InsufficientStockError{ItemName: "SSD", Requested: 2, Available: 0}}
	svc := newTestService(t, repo, stock, nil, nil)

	req, err := svc.RequestPart(context.Background(), RequestPartInput{
		JobID: jobID, RequestedByID: uuid.New(), ItemID: uuid.New(),
		PartName: "SSD", Quantity: 2,
	})
	require.NoError(t, err)

	err = svc.ApprovePartRequest(context.Background(), req.ID, uuid.New())
	require.True(t, inventory.IsInsufficientStock(err))
	require.Equal(t, PartRequestPending, repo.requests[req.ID].Status)
}

func TestApprovePartRequestRetryAfterDeduction(t *testing.T) {
	// A first approval attempt that deducted stock but died before the
	// status update leaves the request PENDING. The retry's deduction hits
	// the idempotency key; the approval must still complete rather than
	// strand the request.
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusInProgress})
	stock := &recordedStock{fail: shared.ErrIdempotencyConflict}
	svc := newTestService(t, repo, stock, nil, nil)

	req, err := svc.RequestPart(context.Background(), RequestPartInput{
		JobID: jobID, RequestedByID: uuid.New(), ItemID: uuid.New(),
		PartName: "Fan assembly", Quantity: 1,
	})
	require.NoError(t, err)

	approver := uuid.New()
	require.NoError(t, svc.ApprovePartRequest(context.Background(), req.ID, approver))
	stored := repo.requests[req.ID]
	require.Equal(t, PartRequestApproved, stored.Status)
	require.Equal(t, approver, stored.ApprovedByID)
}

func TestRejectPartRequest(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusInProgress})
	svc := newTestService(t, repo, nil, nil, nil)

	req, err := svc.RequestPart(context.Background(), RequestPartInput{
		JobID: jobID, RequestedByID: uuid.New(), PartName: "Hinge set", Quantity: 2,
	})
	require.NoError(t, err)

	approver := uuid.New()
	require.NoError(t, svc.RejectPartRequest(context.Background(), req.ID, approver, "customer declined cost"))
	stored := repo.requests[req.ID]
	require.Equal(t, PartRequestRejected, stored.Status)
	require.Equal(t, "customer declined cost", stored.RejectionReason)
}

func testLimiter(t *testing.T, maxAttempts int64) *OTPLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewOTPLimiter(rdb, maxAttempts, time.Minute)
}

func TestDeliveryOTPFlow(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusReady})
	events := &recordedEvents{}
	svc := newTestService(t, repo, nil, events, testLimiter(t, 5))
	ctx := context.Background()

	otp, err := svc.GenerateDeliveryOTP(ctx, jobID, uuid.New())
	require.NoError(t, err)
	require.Len(t, otp, DefaultOTPLength)
	require.Len(t, events.otpsIssued, 1)
	require.Equal(t, otp, events.otpsIssued[0].OTP)

	ok, err := svc.VerifyDeliveryOTP(ctx, jobID, "000000")
	require.NoError(t, err)
	if otp == "000000" {
		require.True(t, ok)
	} else {
		require.False(t, ok)
	}

	ok, err = svc.VerifyDeliveryOTP(ctx, jobID, otp)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDeliveryOTPRequiresReady(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusInProgress})
	svc := newTestService(t, repo, nil, nil, nil)

	_, err := svc.GenerateDeliveryOTP(context.Background(), jobID, uuid.New())
	require.True(t, shared.IsValidation(err))
}

func TestVerifyDeliveryOTPRateLimited(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusReady})
	svc := newTestService(t, repo, nil, nil, testLimiter(t, 3))
	ctx := context.Background()

	otp, err := svc.GenerateDeliveryOTP(ctx, jobID, uuid.New())
	require.NoError(t, err)

	wrong := "999999"
	if wrong == otp {
		wrong = "111111"
	}
	for i := 0; i < 3; i++ {
		ok, err := svc.VerifyDeliveryOTP(ctx, jobID, wrong)
		require.NoError(t, err)
		require.False(t, ok)
	}
	_, err = svc.VerifyDeliveryOTP(ctx, jobID, otp)
	require.ErrorIs(t, err, ErrOTPAttemptsExceeded)

	// A fresh OTP resets the budget.
	otp, err = svc.GenerateDeliveryOTP(ctx, jobID, uuid.New())
	require.NoError(t, err)
	ok, err := svc.VerifyDeliveryOTP(ctx, jobID, otp)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyDeliveryOTPNotGenerated(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusReady})
	svc := newTestService(t, repo, nil, nil, nil)

	_, err := svc.VerifyDeliveryOTP(context.Background(), jobID, "123456")
	require.ErrorIs(t, err, ErrOTPNotGenerated)
}

func TestSetDevicePassword(t *testing.T) {
	repo := newMemoryRepo()
	jobID := repo.addJob(JobCard{Status: StatusReceived})
	svc := newTestService(t, repo, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetDevicePassword(ctx, jobID, uuid.New(), "pin1234", "biospass"))
	device, bios, err := svc.DevicePassword(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, "pin1234", device)
	require.Equal(t, "biospass", bios)
}
