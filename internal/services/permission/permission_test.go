package permission

import (
	"context"
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

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func addUser(t *testing.T, st *memory.Store, id string, staff, super, active bool, grants ...models.PermissionLevel) *models.User {
	t.Helper()
	ctx := context.Background()
	u := &models.User{ID: id, Email: id + "@example.com", IsStaff: staff, IsSuperuser: super, IsActive: active, CreatedAt: now}
	require.NoError(t, st.CreateUser(ctx, u))
	for _, g := range grants {
		require.NoError(t, st.CreatePermission(ctx, &models.ApplicationPermission{
			ID: id + "-" + string(g), UserID: id, Permission: g, CreatedAt: now,
		}))
	}
	return u
}

func TestResolver_Require(t *testing.T) {
	st := memory.New()
	r := NewResolver(st)

	superuser := addUser(t, st, "root", true, true, true)
	manager := addUser(t, st, "manager", true, false, true, models.PermissionManage)
	reviewer := addUser(t, st, "reviewer", true, false, true, models.PermissionReview)
	viewer := addUser(t, st, "viewer", true, false, true, models.PermissionView)
	bare := addUser(t, st, "bare", true, false, true)
	notStaff := addUser(t, st, "host", false, false, true, models.PermissionManage)
	inactive := addUser(t, st, "inactive", true, true, false)

	tests := []struct {
		name    string
		actor   *models.User
		level   models.PermissionLevel
		allowed bool
	}{
		{"nil actor", nil, models.PermissionView, false},
		{"inactive superuser", inactive, models.PermissionView, false},
		{"superuser without grants", superuser, models.PermissionManage, true},
		{"manage covers review", manager, models.PermissionReview, true},
		{"manage covers view", manager, models.PermissionView, true},
		{"review covers view", reviewer, models.PermissionView, true},
		{"review lacks manage", reviewer, models.PermissionManage, false},
		{"view lacks review", viewer, models.PermissionReview, false},
		{"staff without grants", bare, models.PermissionView, false},
		{"grant without staff flag", notStaff, models.PermissionView, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Require(context.Background(), tt.actor, tt.level)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
		})
	}
}

func TestService_GrantIdempotentAndRevoke(t *testing.T) {
	st := memory.New()
	svc := NewService(newNoopLogger(), st, NewResolver(st), clock.NewManual(now))
	ctx := context.Background()

	admin := addUser(t, st, "admin", true, false, true, models.PermissionManage)
	staff := addUser(t, st, "staff", true, false, true)
	host := addUser(t, st, "host", false, false, true)

	p, created, err := svc.Grant(ctx, admin, staff.ID, models.PermissionReview)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "staff@example.com", p.UserEmail)
	require.NotNil(t, p.GrantedBy)
	assert.Equal(t, admin.ID, *p.GrantedBy)

	again, created, err := svc.Grant(ctx, admin, staff.ID, models.PermissionReview)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, again.ID)

	_, _, err = svc.Grant(ctx, admin, host.ID, models.PermissionView)
	require.ErrorIs(t, err, apperrors.ErrValidationFailed)
	_, _, err = svc.Grant(ctx, admin, staff.ID, "owner")
	require.ErrorIs(t, err, apperrors.ErrValidationFailed)
	_, _, err = svc.Grant(ctx, admin, "missing", models.PermissionView)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, _, err = svc.Grant(ctx, staff, staff.ID, models.PermissionManage)
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied, "review holder cannot grant")

	members, err := svc.ListStaff(ctx, admin)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "admin", members[0].ID)
	assert.Equal(t, []models.PermissionLevel{models.PermissionReview}, members[1].Permissions)

	require.NoError(t, svc.Revoke(ctx, admin, p.ID))
	require.ErrorIs(t, svc.Revoke(ctx, admin, p.ID), apperrors.ErrNotFound)

	grants, err := svc.ListGrants(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}
