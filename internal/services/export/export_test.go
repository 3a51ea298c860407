package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage/memory"
)

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func seed(t *testing.T, st *memory.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateUser(ctx, &models.User{ID: "u-1", Email: "host@example.com", FullName: "Jane Host", IsHost: true}))
	approvedBy := "staff"
	require.NoError(t, st.CreateHostProfile(ctx, &models.HostProfile{
		ID: "h-1", UserID: "u-1", CompanyName: "Seaside Rentals", Status: models.HostDeactivated,
		ApprovedAt: &now, ApprovedBy: &approvedBy,
		SubscriptionPlan: models.PlanStarter, SubscriptionStatus: models.SubscriptionCancelled, CreatedAt: now,
	}))
	for i := range 205 {
		require.NoError(t, st.CreateNotification(ctx, &models.Notification{
			ID: fmt.Sprintf("n-%d", i), UserID: "u-1", Category: models.CategoryInfo,
			Title: fmt.Sprintf("Notice %d", i), CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, st.CreateLog(ctx, &models.ApplicationLog{ID: "l-1", HostID: "h-1", Action: models.ActionApproved, CreatedAt: now}))
	require.NoError(t, st.CreateConversation(ctx, &models.Conversation{
		ID: "c-1", HostID: "h-1", Subject: "Payouts", Status: models.ConversationClosed, LastMessageAt: now, CreatedAt: now,
	}))
	require.NoError(t, st.CreateMessage(ctx, &models.Message{ID: "m-1", ConversationID: "c-1", SenderID: "u-1", Body: "Hi", IsFromHost: true, CreatedAt: now}))
}

func TestExport(t *testing.T) {
	st := memory.New()
	seed(t, st)
	svc := New(newNoopLogger(), st, clock.NewManual(now))

	data, err := svc.Export(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, now, data.ExportedAt)
	assert.Equal(t, Account{Email: "host@example.com", FullName: "Jane Host"}, data.User)
	assert.Equal(t, "Seaside Rentals", data.Profile.CompanyName)
	assert.Nil(t, data.Contract)
	require.Len(t, data.Notifications, RecordLimit)
	assert.Equal(t, "Notice 204", data.Notifications[0].Title, "newest first")
	require.Len(t, data.ActivityLogs, 1)
	require.Len(t, data.Conversations, 1)
	assert.Equal(t, "Payouts", data.Conversations[0].Subject)
	assert.Len(t, data.Conversations[0].Messages, 1)
}

func TestExport_NotAHost(t *testing.T) {
	st := memory.New()
	seed(t, st)
	require.NoError(t, st.CreateUser(context.Background(), &models.User{ID: "staff", Email: "ops@unitopms.com", IsStaff: true}))
	svc := New(newNoopLogger(), st, nil)

	_, err := svc.Export(context.Background(), "staff")
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	_, err = svc.Export(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
