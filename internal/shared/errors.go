package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConcurrencyConflict indicates lock contention or a serialization
// failure at the data layer. The operation was not applied; callers should
// retry it as a whole. It is never a business-rule failure.
var ErrConcurrencyConflict = errors.New("concurrency conflict, retry the operation")

// ErrNotFound indicates a missing resource.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed input rejected before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvariantViolation signals a programming error upstream, such as an
// attempt to mutate an immutable ledger record. It must surface loudly and
// never be swallowed.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string { return "invariant violation: " + e.Msg }

// NewInvariantViolation builds an InvariantViolation.
func NewInvariantViolation(format string, args ...any) error {
	return &InvariantViolation{Msg: fmt.Sprintf(format, args...)}
}

// Postgres error codes that mean "retry": lock_not_available,
// serialization_failure, deadlock_detected.
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// MapLockError converts retryable Postgres failures into
// ErrConcurrencyConflict so callers can tell them apart from business
// failures. Other errors pass through unchanged.
func MapLockError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConcurrencyConflict, pgErr.Message)
		}
	}
	return err
}
