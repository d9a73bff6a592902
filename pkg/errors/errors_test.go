package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		sentinel   error
		code       string
		statusCode int
	}{
		{"not found", NotFound("balance"), ErrNotFound, "NOT_FOUND", http.StatusNotFound},
		{"bad request", BadRequest("bad"), ErrBadRequest, "BAD_REQUEST", http.StatusBadRequest},
		{"conflict", Conflict("dup"), ErrConflict, "CONFLICT", http.StatusConflict},
		{"internal", Internal("oops"), ErrInternal, "INTERNAL_ERROR", http.StatusInternalServerError},
		{"validation", Validation(map[string]string{"quantity": "required"}), ErrValidation, "VALIDATION_ERROR", http.StatusBadRequest},
		{"unprocessable", Unprocessable("INSUFFICIENT_STOCK", "short"), ErrUnprocessable, "INSUFFICIENT_STOCK", http.StatusUnprocessableEntity},
		{"unavailable", Unavailable("BALANCE_STORE_UNAVAILABLE", "retry"), ErrUnavailable, "BALANCE_STORE_UNAVAILABLE", http.StatusServiceUnavailable},
		{"forbidden", Forbidden("MISSING_TENANT", "no tenant"), ErrForbidden, "MISSING_TENANT", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.statusCode, tt.err.StatusCode)
		})
	}
}

func TestNotFound_Message(t *testing.T) {
	assert.Equal(t, "receipt not found: resource not found", NotFound("receipt").Error())
}

func TestAs_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", Conflict("location in use"))

	var appErr *AppError
	require.True(t, As(wrapped, &appErr))
	assert.Equal(t, http.StatusConflict, appErr.StatusCode)
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("pq: lock timeout")
	err := Wrap(cause, "BALANCE_STORE_UNAVAILABLE", "balance store unavailable", http.StatusServiceUnavailable).
		WithDetails(map[string]string{"key": "k"})

	assert.True(t, Is(err, cause))
	assert.Equal(t, "k", err.Details["key"])
	assert.Equal(t, "balance store unavailable: pq: lock timeout", err.Error())
}
