package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("lifecycle.Approve: %w", Conflict("host_profile", "cannot approve", "rejected", "pending_review"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestConflict_CarriesState(t *testing.T) {
	err := Conflict("contract", "contract already signed", "active", "pending")

	appErr, ok := As(fmt.Errorf("wrap: %w", err))
	require.True(t, ok)
	details, ok := appErr.Details.(StateDetails)
	require.True(t, ok)
	assert.Equal(t, "active", details.Current)
	assert.Equal(t, []string{"pending"}, details.Expected)
}

func TestWrap_Unwraps(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Delivery(cause, "failed to publish email")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "dial tcp: refused")
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   Code
		status int
	}{
		{name: "not found", err: NotFound("host_profile", "no such host"), want: CodeNotFound, status: http.StatusNotFound},
		{name: "validation", err: Validation("contract", "agreement required"), want: CodeValidationFailed, status: http.StatusBadRequest},
		{name: "permission", err: PermissionDenied("review permission required"), want: CodePermissionDenied, status: http.StatusForbidden},
		{name: "plain error", err: errors.New("boom"), want: CodeInternal, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
			assert.Equal(t, tt.status, CodeOf(tt.err).HTTPStatus())
		})
	}
}
