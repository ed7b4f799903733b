package jobcard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists job cards in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

type txRepository struct {
	tx pgx.Tx
}

const jobColumns = `id, branch_id, job_number, customer_id, device_type, brand, model, serial_number,
device_password, bios_password, customer_complaint, physical_condition, status,
assigned_technician_id, received_by_id, diagnosis_notes, estimated_cost, estimated_completion_date,
customer_approval_at, customer_rejection_reason, completion_notes, completed_at,
delivered_at, delivery_otp, is_urgent, is_warranty_repair, warranty_details, created_at, updated_at`

// WithTx executes the callback inside a transaction with a bounded
// lock_timeout.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("jobcard repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetJob loads one job card without locking.
func (r *Repository) GetJob(ctx context.Context, jobID uuid.UUID) (JobCard, error) {
	if r == nil {
		return JobCard{}, errors.New("jobcard repository not initialised")
	}
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM job_cards WHERE id=$1`, jobID))
}

// ListStatusHistory returns the transition trail, oldest first.
func (r *Repository) ListStatusHistory(ctx context.Context, jobID uuid.UUID) ([]StatusHistory, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, job_id, from_status, to_status, actor_id, notes, is_override, created_at
FROM job_status_history WHERE job_id=$1 ORDER BY created_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusHistory
	for rows.Next() {
		var row StatusHistory
		if err := rows.Scan(&row.ID, &row.JobID, &row.FromStatus, &row.ToStatus, &row.ActorID, &row.Notes, &row.IsOverride, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListPartRequests returns a job's part requests, newest first.
func (r *Repository) ListPartRequests(ctx context.Context, jobID uuid.UUID) ([]PartRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, job_id, requested_by_id, item_id, part_name, quantity, status, approved_by_id, rejection_reason, notes, created_at
FROM part_requests WHERE job_id=$1 ORDER BY created_at DESC, id DESC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PartRequest
	for rows.Next() {
		req, err := scanPartRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (t *txRepository) GetJobForUpdate(ctx context.Context, jobID uuid.UUID) (JobCard, error) {
	return scanJob(t.tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM job_cards WHERE id=$1 FOR UPDATE`, jobID))
}

func (t *txRepository) InsertJob(ctx context.Context, job JobCard) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO job_cards (`+jobColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)`,
		job.ID, job.BranchID, job.JobNumber, job.CustomerID, job.DeviceType, job.Brand, job.Model, job.SerialNumber,
		job.DevicePasswordCiphertext, job.BIOSPasswordCiphertext, job.CustomerComplaint, job.PhysicalCondition, job.Status,
		nullableUUID(job.AssignedTechnicianID), job.ReceivedByID, job.DiagnosisNotes, job.EstimatedCost, job.EstimatedCompletionDate,
		job.CustomerApprovalAt, job.CustomerRejectionReason, job.CompletionNotes, job.CompletedAt,
		job.DeliveredAt, job.DeliveryOTP, job.IsUrgent, job.IsWarrantyRepair, job.WarrantyDetails, job.CreatedAt, job.UpdatedAt)
	return err
}

func (t *txRepository) UpdateJobStatus(ctx context.Context, job JobCard) error {
	tag, err := t.tx.Exec(ctx, `UPDATE job_cards SET status=$2, customer_approval_at=$3, customer_rejection_reason=$4,
completed_at=$5, delivered_at=$6, updated_at=$7 WHERE id=$1`,
		job.ID, job.Status, job.CustomerApprovalAt, job.CustomerRejectionReason, job.CompletedAt, job.DeliveredAt, job.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (t *txRepository) UpdateDiagnosis(ctx context.Context, job JobCard) error {
	tag, err := t.tx.Exec(ctx, `UPDATE job_cards SET diagnosis_notes=$2, estimated_cost=$3,
estimated_completion_date=$4, status=$5, updated_at=$6 WHERE id=$1`,
		job.ID, job.DiagnosisNotes, job.EstimatedCost, job.EstimatedCompletionDate, job.Status, job.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (t *txRepository) UpdateJobTechnician(ctx context.Context, jobID, technicianID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `UPDATE job_cards SET assigned_technician_id=$2, updated_at=NOW() WHERE id=$1`, jobID, technicianID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (t *txRepository) UpdateDeliveryOTP(ctx context.Context, jobID uuid.UUID, otp string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE job_cards SET delivery_otp=$2, updated_at=NOW() WHERE id=$1`, jobID, otp)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (t *txRepository) UpdateDevicePasswords(ctx context.Context, jobID uuid.UUID, deviceCiphertext, biosCiphertext string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE job_cards SET device_password=$2, bios_password=$3, updated_at=NOW() WHERE id=$1`,
		jobID, deviceCiphertext, biosCiphertext)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (t *txRepository) InsertStatusHistory(ctx context.Context, row StatusHistory) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO job_status_history (id, job_id, from_status, to_status, actor_id, notes, is_override, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		row.ID, row.JobID, row.FromStatus, row.ToStatus, row.ActorID, row.Notes, row.IsOverride, row.CreatedAt)
	return err
}

func (t *txRepository) GetPartRequestForUpdate(ctx context.Context, requestID uuid.UUID) (PartRequest, error) {
	row := t.tx.QueryRow(ctx, `SELECT id, job_id, requested_by_id, item_id, part_name, quantity, status, approved_by_id, rejection_reason, notes, created_at
FROM part_requests WHERE id=$1 FOR UPDATE`, requestID)
	req, err := scanPartRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PartRequest{}, ErrPartRequestNotFound
	}
	return req, err
}

func (t *txRepository) InsertPartRequest(ctx context.Context, req PartRequest) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO part_requests (id, job_id, requested_by_id, item_id, part_name, quantity, status, approved_by_id, rejection_reason, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		req.ID, req.JobID, req.RequestedByID, nullableUUID(req.ItemID), req.PartName, req.Quantity, req.Status,
		nullableUUID(req.ApprovedByID), req.RejectionReason, req.Notes, req.CreatedAt)
	return err
}

func (t *txRepository) UpdatePartRequestStatus(ctx context.Context, req PartRequest) error {
	tag, err := t.tx.Exec(ctx, `UPDATE part_requests SET status=$2, approved_by_id=$3, rejection_reason=$4 WHERE id=$1`,
		req.ID, req.Status, nullableUUID(req.ApprovedByID), req.RejectionReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPartRequestNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (JobCard, error) {
	var (
		job        JobCard
		technician uuid.NullUUID
	)
	err := row.Scan(&job.ID, &job.BranchID, &job.JobNumber, &job.CustomerID, &job.DeviceType, &job.Brand, &job.Model, &job.SerialNumber,
		&job.DevicePasswordCiphertext, &job.BIOSPasswordCiphertext, &job.CustomerComplaint, &job.PhysicalCondition, &job.Status,
		&technician, &job.ReceivedByID, &job.DiagnosisNotes, &job.EstimatedCost, &job.EstimatedCompletionDate,
		&job.CustomerApprovalAt, &job.CustomerRejectionReason, &job.CompletionNotes, &job.CompletedAt,
		&job.DeliveredAt, &job.DeliveryOTP, &job.IsUrgent, &job.IsWarrantyRepair, &job.WarrantyDetails, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return JobCard{}, ErrJobNotFound
	}
	if err != nil {
		return JobCard{}, err
	}
	if technician.Valid {
		job.AssignedTechnicianID = technician.UUID
	}
	return job, nil
}

func scanPartRequest(row pgx.Row) (PartRequest, error) {
	var (
		req      PartRequest
		item     uuid.NullUUID
		approver uuid.NullUUID
	)
	err := row.Scan(&req.ID, &req.JobID, &req.RequestedByID, &item, &req.PartName, &req.Quantity, &req.Status,
		&approver, &req.RejectionReason, &req.Notes, &req.CreatedAt)
	if err != nil {
		return PartRequest{}, err
	}
	if item.Valid {
		req.ItemID = item.UUID
	}
	if approver.Valid {
		req.ApprovedByID = approver.UUID
	}
	return req, nil
}

func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
