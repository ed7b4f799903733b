package sequence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fixpoint-hq/fixpoint/internal/shared"
)

// RepositoryPort abstracts counter persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the transactional counter operations. The get must
// take an exclusive row lock so two concurrent callers for the same
// branch+kind serialize.
type TxRepository interface {
	GetCounterForUpdate(ctx context.Context, branchID uuid.UUID, kind Kind) (BranchCounter, error)
	SaveCounter(ctx context.Context, branchID uuid.UUID, kind Kind, current int64) error
}

// Service issues branch-scoped monotonic document numbers.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NextNumber increments the branch counter for kind under a row lock and
// returns the formatted document number. Two concurrent callers never
// receive the same number; numbers may be skipped when the enclosing
// transaction aborts, never duplicated. Lock-wait exhaustion surfaces as
// shared.ErrConcurrencyConflict.
func (s *Service) NextNumber(ctx context.Context, branchID uuid.UUID, kind Kind) (string, error) {
	if branchID == uuid.Nil {
		return "", shared.NewValidationError("branch_id", "required")
	}
	if !kind.IsValid() {
		return "", ErrUnknownKind
	}
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		counter, err := tx.GetCounterForUpdate(ctx, branchID, kind)
		if err != nil {
			return err
		}
		next := counter.Current + 1
		if err := tx.SaveCounter(ctx, branchID, kind, next); err != nil {
			return err
		}
		fy := FinancialYear(s.now(), counter.FYStartMonth)
		number = Format(counter.Prefix, fy, counter.BranchCode, next)
		return nil
	})
	if err != nil {
		return "", shared.MapLockError(err)
	}
	return number, nil
}
