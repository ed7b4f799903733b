package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fixpoint-hq/fixpoint/internal/shared"
)

func TestJSONWritesBodyAndHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]string{"id": "42"})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"id":"42"}`, rec.Body.String())
}

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		title  string
	}{
		{"not found", fmt.Errorf("job x: %w", shared.ErrNotFound), http.StatusNotFound, "Not Found"},
		{"validation", shared.NewValidationError("quantity", "must be positive"), http.StatusBadRequest, "Validation Failed"},
		{"conflict", fmt.Errorf("branch row: %w", shared.ErrConcurrencyConflict), http.StatusConflict, "Conflict"},
		{"invariant", shared.NewInvariantViolation("ledger drift on item %s", "abc"), http.StatusConflict, "Invariant Violation"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal Error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)

			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Body.String(), tc.title)
		})
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "password")
}
