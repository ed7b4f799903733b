package httpx

import (
	"errors"
	"net/http"

	"github.com/fixpoint-hq/fixpoint/internal/shared"
)

// RespondError maps domain errors to HTTP problem responses. Unrecognized
// errors become opaque 500s so internals never leak to clients.
func RespondError(w http.ResponseWriter, err error) {
	var inv *shared.InvariantViolation
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case shared.IsValidation(err):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrConcurrencyConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &inv):
		Problem(w, http.StatusConflict, "Invariant Violation", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
