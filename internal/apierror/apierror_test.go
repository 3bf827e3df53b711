package apierror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/driftcap/driftcap/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	details := "some internal error details"
	apiErr := apierror.NewAPIError(apierror.ErrInternalServer, "Something went wrong", details)

	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
	assert.Equal(t, "Something went wrong", apiErr.Message)
	assert.Equal(t, details, apiErr.Details)
	assert.Equal(t, "INTERNAL_SERVER_ERROR: Something went wrong", apiErr.Error())
}

func TestIsCode(t *testing.T) {
	conflict := apierror.NewAPIError(apierror.ErrConflict, "duplicate resource", nil)
	assert.True(t, apierror.IsCode(conflict, apierror.ErrConflict))
	assert.False(t, apierror.IsCode(conflict, apierror.ErrNotFound))
	assert.False(t, apierror.IsCode(errors.New("plain"), apierror.ErrConflict))

	wrapped := fmt.Errorf("outer: %w", conflict)
	assert.True(t, apierror.IsCode(wrapped, apierror.ErrConflict))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "NotFound Error",
			err:      apierror.NewAPIError(apierror.ErrNotFound, "Resource not found", nil),
			expected: http.StatusNotFound,
		},
		{
			name:     "Conflict Error",
			err:      apierror.NewAPIError(apierror.ErrConflict, "Conflict occurred", nil),
			expected: http.StatusConflict,
		},
		{
			name:     "InvalidInput Error",
			err:      apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid input", nil),
			expected: http.StatusBadRequest,
		},
		{
			name:     "Configuration Error",
			err:      apierror.NewAPIError(apierror.ErrConfiguration, "Missing parent config", nil),
			expected: http.StatusUnprocessableEntity,
		},
		{
			name:     "InternalServerError",
			err:      apierror.NewAPIError(apierror.ErrInternalServer, "Internal error", nil),
			expected: http.StatusInternalServerError,
		},
		{
			name:     "Unknown error type",
			err:      errors.New("plain error"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apierror.MapErrorToHTTPStatus(tt.err))
		})
	}
}
