package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fixpoint-hq/fixpoint/internal/shared"
)

// Repository persists branch counters in PostgreSQL. Each document kind
// has its own prefix and counter column on the branches row.
type Repository struct {
	pool           *pgxpool.Pool
	lockTimeout    time.Duration
	defaultFYMonth time.Month
}

// NewRepository constructs Repository. lockTimeout bounds how long a
// caller may wait for the branch row lock before receiving a retryable
// conflict. defaultFYMonth is used for branches that never set their own
// financial-year start.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration, defaultFYMonth time.Month) *Repository {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	if defaultFYMonth < time.January || defaultFYMonth > time.December {
		defaultFYMonth = time.April
	}
	return &Repository{pool: pool, lockTimeout: lockTimeout, defaultFYMonth: defaultFYMonth}
}

type txRepository struct {
	tx             pgx.Tx
	defaultFYMonth time.Month
}

// WithTx executes the callback inside a transaction with a bounded
// lock_timeout so contended branch rows fail fast with a retryable error.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sequence repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx, defaultFYMonth: r.defaultFYMonth}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func counterColumns(kind Kind) (prefixCol, seqCol string, err error) {
	switch kind {
	case KindInvoice:
		return "invoice_prefix", "invoice_seq", nil
	case KindJobCard:
		return "jobcard_prefix", "jobcard_seq", nil
	case KindCreditNote:
		return "credit_note_prefix", "credit_note_seq", nil
	default:
		return "", "", ErrUnknownKind
	}
}

func (r *txRepository) GetCounterForUpdate(ctx context.Context, branchID uuid.UUID, kind Kind) (BranchCounter, error) {
	prefixCol, seqCol, err := counterColumns(kind)
	if err != nil {
		return BranchCounter{}, err
	}
	var counter BranchCounter
	var fyMonth int
	query := fmt.Sprintf(`SELECT id, code, %s, %s, COALESCE(NULLIF(fy_start_month, 0), $2) FROM branches WHERE id=$1 FOR UPDATE`, prefixCol, seqCol)
	err = r.tx.QueryRow(ctx, query, branchID, int(r.defaultFYMonth)).
		Scan(&counter.BranchID, &counter.BranchCode, &counter.Prefix, &counter.Current, &fyMonth)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BranchCounter{}, fmt.Errorf("sequence: branch %s: %w", branchID, shared.ErrNotFound)
		}
		return BranchCounter{}, err
	}
	counter.FYStartMonth = time.Month(fyMonth)
	return counter, nil
}

func (r *txRepository) SaveCounter(ctx context.Context, branchID uuid.UUID, kind Kind, current int64) error {
	_, seqCol, err := counterColumns(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE branches SET %s=$2, updated_at=NOW() WHERE id=$1`, seqCol)
	tag, err := r.tx.Exec(ctx, query, branchID, current)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sequence: branch %s: %w", branchID, shared.ErrNotFound)
	}
	return nil
}
