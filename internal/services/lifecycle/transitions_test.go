package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name    string
		machine Machine
		from    string
		event   Event
		to      string
		action  models.LogAction
		resend  bool
	}{
		{"approve pending", MachineHost, "pending_review", EventApprove, "approved", models.ActionApproved, false},
		{"re-approve resends", MachineHost, "approved", EventApprove, "approved", models.ActionLinkResent, true},
		{"reject pending", MachineHost, "pending_review", EventReject, "rejected", models.ActionRejected, false},
		{"password set activates", MachineHost, "approved", EventPasswordSet, "active", models.ActionPasswordSet, false},
		{"access expiry deactivates suspended", MachineHost, "suspended", EventAccessExpire, "deactivated", models.ActionAccessExpired, false},
		{"trial expiry", MachineSubscription, "trialing", EventTrialExpire, "cancelled", models.ActionStatusChanged, false},
		{"service end forces past due", MachineSubscription, "past_due", EventServiceEnd, "cancelled", "", false},
		{"admin update from any", MachineSubscription, "paused", EventAdminUpdate, AnyState, models.ActionStatusChanged, false},
		{"sign pending", MachineContract, "pending", EventSign, "active", models.ActionContractSigned, false},
		{"cancel active", MachineContract, "active", EventRequestCancel, "cancellation_requested", models.ActionCancellationRequested, false},
		{"service end", MachineContract, "cancellation_requested", EventServiceEnd, "cancelled", models.ActionServiceEnded, false},
		{"access expiry", MachineContract, "cancelled", EventAccessExpire, "expired", models.ActionAccessExpired, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.machine, tt.from, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.to, got.To)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, tt.resend, got.Resend)
		})
	}
}

func TestNext_Conflicts(t *testing.T) {
	tests := []struct {
		name     string
		machine  Machine
		from     string
		event    Event
		message  string
		expected []string
	}{
		{"reject approved", MachineHost, "approved", EventReject, "application cannot be rejected in its current status", []string{"pending_review"}},
		{"approve rejected", MachineHost, "rejected", EventApprove, "application cannot be approved in its current status", []string{"approved", "pending_review"}},
		{"password set twice", MachineHost, "active", EventPasswordSet, "account setup is not available for this application", []string{"approved"}},
		{"reactivate deactivated", MachineHost, "deactivated", EventAccessExpire, "host profile cannot be deactivated in its current status", []string{"active", "suspended"}},
		{"sign active", MachineContract, "active", EventSign, "contract already signed", []string{"pending"}},
		{"cancel pending", MachineContract, "pending", EventRequestCancel, "only an active contract can be cancelled", []string{"active"}},
		{"cancel twice", MachineContract, "cancellation_requested", EventRequestCancel, "only an active contract can be cancelled", []string{"active"}},
		{"trial expiry of active", MachineSubscription, "active", EventTrialExpire, "subscription is not trialing", []string{"trialing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Next(tt.machine, tt.from, tt.event)
			require.ErrorIs(t, err, apperrors.ErrConflict)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.message, appErr.Message)
			assert.Equal(t, string(tt.machine), appErr.Domain)
			details, ok := appErr.Details.(apperrors.StateDetails)
			require.True(t, ok)
			assert.Equal(t, tt.from, details.Current)
			assert.Equal(t, tt.expected, details.Expected)
		})
	}
}

func TestNext_RejectedIsTerminal(t *testing.T) {
	for _, ev := range []Event{EventApprove, EventReject, EventPasswordSet, EventAccessExpire} {
		_, err := Next(MachineHost, string(models.HostRejected), ev)
		assert.ErrorIs(t, err, apperrors.ErrConflict, string(ev))
	}
}

func TestContractState_AbsentIsPending(t *testing.T) {
	assert.Equal(t, "pending", contractState(nil))
	assert.Equal(t, "active", contractState(&models.ServiceContract{Status: models.ContractActive}))
}
