//go:build integration

package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/host-lifecycle/internal/migrations"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(s.DB, filepath.Join(root, "migrations")))
	require.NoError(t, CheckDatabaseReady(ctx, s))
	return s
}

// testDataFactory создаёт тестовые записи через методы хранилища.
type testDataFactory struct {
	t *testing.T
	s *Storage
}

func (f *testDataFactory) user(email string, staff bool) *models.User {
	u := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		FullName:  "Test User",
		IsActive:  staff,
		IsStaff:   staff,
		IsHost:    !staff,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(f.t, f.s.CreateUser(context.Background(), u))
	return u
}

func (f *testDataFactory) host(u *models.User) *models.HostProfile {
	now := time.Now().UTC()
	trial := now.Add(14 * 24 * time.Hour)
	p := &models.HostProfile{
		ID:                 uuid.NewString(),
		UserID:             u.ID,
		CompanyName:        "Acme Rentals",
		NumProperties:      1,
		NumUnits:           3,
		Status:             models.HostPendingReview,
		OnboardingStep:     models.StepRegistered,
		SubscriptionPlan:   models.PlanFreeTrial,
		SubscriptionStatus: models.SubscriptionTrialing,
		TrialEndsAt:        &trial,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(f.t, f.s.CreateHostProfile(context.Background(), p))
	return p
}

func TestIntegration_UserAndHost(t *testing.T) {
	s := setupTestDatabase(t)
	f := &testDataFactory{t: t, s: s}
	ctx := context.Background()

	u := f.user("Owner@Example.com", false)
	p := f.host(u)

	dup := &models.User{ID: uuid.NewString(), Email: "owner@example.com", CreatedAt: time.Now().UTC()}
	require.ErrorIs(t, s.CreateUser(ctx, dup), storage.ErrAlreadyExists)

	got, err := s.GetUserByEmail(ctx, "OWNER@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	hp, err := s.GetHostProfileByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, hp.ID)
	assert.Equal(t, "owner@example.com", hp.Email)
}

func TestIntegration_ConcurrentApproveSingleWinner(t *testing.T) {
	s := setupTestDatabase(t)
	f := &testDataFactory{t: t, s: s}
	staff := f.user("staff@example.com", true)
	p := f.host(f.user("host@example.com", false))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, lost int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := *p
			now := time.Now().UTC()
			cp.Status = models.HostApproved
			cp.ApprovedAt = &now
			cp.ApprovedBy = &staff.ID
			err := s.UpdateHostProfile(context.Background(), &cp, p.State())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, storage.ErrStaleState):
				lost++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, lost)
}

func TestIntegration_UpdateHostProfile_RevisionGuardsOtherColumns(t *testing.T) {
	s := setupTestDatabase(t)
	f := &testDataFactory{t: t, s: s}
	ctx := context.Background()
	p := f.host(f.user("host@example.com", false))

	staffCopy := *p
	staffCopy.SubscriptionPlan = models.PlanProfessional
	require.NoError(t, s.UpdateHostProfile(ctx, &staffCopy, p.State()))
	assert.Equal(t, p.Revision+1, staffCopy.Revision)

	sweepCopy := *p
	sweepCopy.CompanyName = "Stale Name"
	err := s.UpdateHostProfile(ctx, &sweepCopy, p.State())
	require.ErrorIs(t, err, storage.ErrStaleState, "same statuses but an older revision")

	got, err := s.GetHostProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanProfessional, got.SubscriptionPlan)
	assert.Equal(t, p.CompanyName, got.CompanyName)
}

func TestIntegration_LoginTouchKeepsDeactivation(t *testing.T) {
	s := setupTestDatabase(t)
	f := &testDataFactory{t: t, s: s}
	ctx := context.Background()
	u := f.user("host@example.com", false)

	require.NoError(t, s.DeactivateUser(ctx, u.ID))
	require.NoError(t, s.TouchLastLogin(ctx, u.ID, time.Now().UTC()))

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.NotNil(t, got.LastLoginAt)
}

func TestIntegration_RejectedRequiresActor(t *testing.T) {
	s := setupTestDatabase(t)
	f := &testDataFactory{t: t, s: s}
	p := f.host(f.user("host@example.com", false))

	p.Status = models.HostRejected
	err := s.UpdateHostProfile(context.Background(), p, models.HostState{
		Status: models.HostPendingReview, SubscriptionStatus: models.SubscriptionTrialing,
	})
	require.Error(t, err, "check constraint must reject a rejected profile without rejected_at/by")
}

func TestIntegration_ContractsAndNotifications(t *testing.T) {
	s := setupTestDatabase(t)
	f := &testDataFactory{t: t, s: s}
	ctx := context.Background()
	u := f.user("host@example.com", false)
	p := f.host(u)

	tpl, err := s.GetActiveTemplate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0", tpl.Version)

	now := time.Now().UTC()
	c := &models.ServiceContract{
		ID: uuid.NewString(), HostID: p.ID, Version: tpl.Version, Status: models.ContractActive,
		SignedAt: &now, NoticeMonths: models.DefaultNoticeMonths, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context) error {
		return s.CreateContract(ctx, c)
	}))

	end := models.DateOf(now).AddDate(0, 0, 60)
	until := end.AddDate(0, 0, 365)
	c.Status = models.ContractCancellationRequested
	c.CancellationRequestedAt = &now
	c.ServiceEndDate = &end
	c.ReadOnlyAccessUntil = &until
	require.NoError(t, s.UpdateContract(ctx, c, models.ContractActive))
	require.ErrorIs(t, s.UpdateContract(ctx, c, models.ContractActive), storage.ErrStaleState)

	due, err := s.ListContracts(ctx, models.ContractFilter{Status: models.ContractCancellationRequested, ServiceEndBy: &end})
	require.NoError(t, err)
	assert.Len(t, due, 1)

	n := &models.Notification{ID: uuid.NewString(), UserID: u.ID, Category: models.CategorySubscription,
		Title: "Trial Expires in 2 Days", CreatedAt: now}
	require.NoError(t, s.CreateNotification(ctx, n))
	exists, err := s.RecentNotificationExists(ctx, u.ID, models.CategorySubscription, "Trial Expires", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.True(t, exists)

	count, err := s.CountUnreadNotifications(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	marked, err := s.MarkAllNotificationsRead(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)
}
