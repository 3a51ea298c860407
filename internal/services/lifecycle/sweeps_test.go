package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage/memory"
)

const day = 24 * time.Hour

// seedHost создаёт пользователя и профиль в обход заявки.
func (h *harness) seedHost(t *testing.T, id string, status models.HostStatus, sub models.SubscriptionStatus, trialEnds *time.Time) *models.HostProfile {
	t.Helper()
	ctx := context.Background()
	userID := "user-" + id
	require.NoError(t, h.store.CreateUser(ctx, &models.User{
		ID: userID, Email: id + "@hosts.example", FullName: "Host " + id, IsActive: true, IsHost: true, CreatedAt: testNow,
	}))
	p := &models.HostProfile{
		ID:                 id,
		UserID:             userID,
		CompanyName:        "Company " + id,
		Status:             status,
		OnboardingStep:     models.StepEmailVerified,
		SubscriptionPlan:   models.PlanFreeTrial,
		SubscriptionStatus: sub,
		TrialEndsAt:        trialEnds,
		CreatedAt:          testNow,
		UpdatedAt:          testNow,
	}
	if status != models.HostPendingReview && status != models.HostRejected {
		approvedAt := testNow.Add(-30 * day)
		approvedBy := h.reviewer.ID
		p.ApprovedAt, p.ApprovedBy = &approvedAt, &approvedBy
	}
	require.NoError(t, h.store.CreateHostProfile(ctx, p))
	return p
}

func (h *harness) seedContract(t *testing.T, hostID string, status models.ContractStatus, serviceEnd, readOnlyUntil time.Time) {
	t.Helper()
	signed := testNow.Add(-200 * day)
	require.NoError(t, h.store.CreateContract(context.Background(), &models.ServiceContract{
		ID:                  "contract-" + hostID,
		HostID:              hostID,
		Version:             "1.0",
		Status:              status,
		SignedAt:            &signed,
		NoticeMonths:        models.DefaultNoticeMonths,
		ServiceEndDate:      &serviceEnd,
		ReadOnlyAccessUntil: &readOnlyUntil,
		CreatedAt:           signed,
		UpdatedAt:           signed,
	}))
}

func (h *harness) titlesWithPrefix(t *testing.T, userID, prefix string) []string {
	t.Helper()
	var res []string
	for _, n := range h.notifications(t, userID) {
		if strings.HasPrefix(n.Title, prefix) {
			res = append(res, n.Title)
		}
	}
	return res
}

func ptr[T any](v T) *T { return &v }

func TestSweeps_CancellationToAccessExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.activate(t, "host@example.com")
	_, err := h.svc.SignContract(ctx, p.UserID, true)
	require.NoError(t, err)
	_, err = h.svc.RequestCancellation(ctx, p.UserID, "closing the business")
	require.NoError(t, err)

	h.clk.Set(testNow.Add(59 * day))
	res, err := h.svc.SweepServiceEndDates(ctx, h.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched, "service has not ended yet")

	h.clk.Set(testNow.Add(60 * day))
	res, err = h.svc.SweepServiceEndDates(ctx, h.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Sweep: SweepServiceEndDates, Matched: 1, Processed: 1}, res)

	c, err := h.store.GetContractByHost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractCancelled, c.Status)
	profile, err := h.store.GetHostProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, profile.SubscriptionStatus)
	assert.Equal(t, models.HostActive, profile.Status)
	assert.Len(t, h.titlesWithPrefix(t, p.UserID, "Service Ended"), 1)

	view, err := h.svc.Contract(ctx, p.UserID)
	require.NoError(t, err)
	require.NotNil(t, view.DaysUntilAccessExpires)
	assert.Equal(t, 365, *view.DaysUntilAccessExpires)

	h.clk.Set(testNow.Add(418 * day))
	res, err = h.svc.SweepAccessWarnings(ctx, h.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, []string{"Read-Only Access Ends in 7 Days"}, h.titlesWithPrefix(t, p.UserID, "Read-Only"))

	h.clk.Set(testNow.Add(425 * day))
	before := len(h.notifications(t, p.UserID))
	res, err = h.svc.SweepAccessExpiry(ctx, h.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	c, err = h.store.GetContractByHost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractExpired, c.Status)
	profile, err = h.store.GetHostProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostDeactivated, profile.Status)
	user, err := h.store.GetUser(ctx, p.UserID)
	require.NoError(t, err)
	assert.False(t, user.IsActive)
	assert.Len(t, h.notifications(t, p.UserID), before, "access expiry only sends mail")
	assert.Contains(t, h.mailer.templates(), "access_expired")

	res, err = h.svc.SweepAccessExpiry(ctx, h.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched)
}

func TestSweepTrialExpirations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	expired := h.seedHost(t, "expired", models.HostActive, models.SubscriptionTrialing, ptr(testNow.Add(-time.Minute)))
	h.seedHost(t, "boundary", models.HostActive, models.SubscriptionTrialing, ptr(testNow))
	h.seedHost(t, "future", models.HostActive, models.SubscriptionTrialing, ptr(testNow.Add(time.Minute)))
	h.seedHost(t, "paying", models.HostActive, models.SubscriptionActive, ptr(testNow.Add(-day)))
	h.mailer.fail["trial_expired"] = errors.New("smtp: 421 service not available")

	res, err := h.svc.SweepTrialExpirations(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Sweep: SweepTrialExpirations, Matched: 2, Processed: 2}, res)

	got, err := h.store.GetHostProfile(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, got.SubscriptionStatus, "mail failure keeps the transition")
	assert.Equal(t, []string{"Trial Expired"}, h.titlesWithPrefix(t, expired.UserID, "Trial"))
	assert.Equal(t, []models.LogAction{models.ActionStatusChanged}, h.actions(t, expired.ID))

	future, err := h.store.GetHostProfile(ctx, "future")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionTrialing, future.SubscriptionStatus)

	res, err = h.svc.SweepTrialExpirations(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Matched, "second run is a no-op")
}

func TestSweepTrialWarnings_Dedup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.seedHost(t, "soon", models.HostActive, models.SubscriptionTrialing, ptr(testNow.Add(2*day+12*time.Hour)))
	h.seedHost(t, "later", models.HostActive, models.SubscriptionTrialing, ptr(testNow.Add(10*day)))

	res, err := h.svc.SweepTrialWarnings(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Sweep: SweepTrialWarnings, Matched: 1, Processed: 1}, res)
	assert.Equal(t, []string{"Trial Expires in 3 Days"}, h.titlesWithPrefix(t, p.UserID, trialWarningPrefix))
	mail, ok := h.mailer.last("trial_expiring")
	require.True(t, ok)
	assert.Equal(t, 3, mail.data["days_remaining"])

	res, err = h.svc.SweepTrialWarnings(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	h.clk.Set(testNow.Add(12 * time.Hour))
	res, err = h.svc.SweepTrialWarnings(ctx, h.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped, "different day count still deduplicated by prefix")

	h.clk.Set(testNow.Add(25 * time.Hour))
	res, err = h.svc.SweepTrialWarnings(ctx, h.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, []string{"Trial Expires in 2 Days", "Trial Expires in 3 Days"},
		h.titlesWithPrefix(t, p.UserID, trialWarningPrefix))
}

func TestSweepAccessWarnings_ExactDays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	today := models.DateOf(testNow)
	hosts := map[string]int{"in-30": 30, "in-7": 7, "in-1": 1, "in-6": 6, "in-8": 8}
	for id, d := range hosts {
		h.seedHost(t, id, models.HostActive, models.SubscriptionCancelled, nil)
		h.seedContract(t, id, models.ContractCancelled, today.AddDate(0, 0, d-365), today.AddDate(0, 0, d))
	}
	h.seedHost(t, "requested", models.HostActive, models.SubscriptionActive, nil)
	h.seedContract(t, "requested", models.ContractCancellationRequested, today.AddDate(0, 0, 7), today.AddDate(0, 0, 7))

	res, err := h.svc.SweepAccessWarnings(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Sweep: SweepAccessWarnings, Matched: 3, Processed: 3}, res)
	assert.Equal(t, []string{"Read-Only Access Ends in 1 Day"}, h.titlesWithPrefix(t, "user-in-1", "Read-Only"))
	assert.Equal(t, []string{"Read-Only Access Ends in 30 Days"}, h.titlesWithPrefix(t, "user-in-30", "Read-Only"))
	assert.Empty(t, h.titlesWithPrefix(t, "user-in-6", "Read-Only"))
	assert.Empty(t, h.titlesWithPrefix(t, "user-requested", "Read-Only"))

	res, err = h.svc.SweepAccessWarnings(ctx, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Sweep: SweepAccessWarnings, Matched: 3, Skipped: 3}, res)

	h.clk.Set(testNow.Add(day))
	res, err = h.svc.SweepAccessWarnings(ctx, h.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Sweep: SweepAccessWarnings, Matched: 1, Processed: 1}, res)
	assert.Equal(t, []string{"Read-Only Access Ends in 7 Days"}, h.titlesWithPrefix(t, "user-in-8", "Read-Only"))
	assert.Equal(t, []string{"Read-Only Access Ends in 1 Day"}, h.titlesWithPrefix(t, "user-in-1", "Read-Only"))
}

func TestSweepPastDueReminders_NoDedup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.seedHost(t, "late", models.HostActive, models.SubscriptionPastDue, nil)
	h.seedHost(t, "fine", models.HostActive, models.SubscriptionActive, nil)

	for range 2 {
		res, err := h.svc.SweepPastDueReminders(ctx, testNow)
		require.NoError(t, err)
		assert.Equal(t, SweepResult{Sweep: SweepPastDueReminders, Matched: 1, Processed: 1}, res)
	}
	assert.Len(t, h.titlesWithPrefix(t, p.UserID, "Payment Failed"), 2)
	assert.Empty(t, h.titlesWithPrefix(t, "user-fine", "Payment Failed"))
	for _, n := range h.notifications(t, p.UserID) {
		assert.Equal(t, models.CategoryPayment, n.Category)
	}
}

// failingStore отказывает в обновлении одного профиля.
type failingStore struct {
	*memory.Store
	failID string
}

func (f *failingStore) UpdateHostProfile(ctx context.Context, p *models.HostProfile, expected models.HostState) error {
	if p.ID == f.failID {
		return errors.New("connection reset by peer")
	}
	return f.Store.UpdateHostProfile(ctx, p, expected)
}

func TestSweep_FailureIsolation(t *testing.T) {
	h := newHarnessWithStore(t, func(st *memory.Store) Store {
		return &failingStore{Store: st, failID: "broken"}
	})
	ctx := context.Background()
	past := ptr(testNow.Add(-time.Hour))
	h.seedHost(t, "first", models.HostActive, models.SubscriptionTrialing, past)
	h.seedHost(t, "broken", models.HostActive, models.SubscriptionTrialing, past)
	h.seedHost(t, "third", models.HostActive, models.SubscriptionTrialing, past)

	res, err := h.svc.SweepTrialExpirations(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Sweep: SweepTrialExpirations, Matched: 3, Processed: 2, Failed: 1}, res)

	broken, err := h.store.GetHostProfile(ctx, "broken")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionTrialing, broken.SubscriptionStatus)
	assert.Empty(t, h.actions(t, "broken"))
	for _, id := range []string{"first", "third"} {
		got, err := h.store.GetHostProfile(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionCancelled, got.SubscriptionStatus, id)
	}
}

func TestRunSweep_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	res := runSweep(ctx, newNoopLogger(), "test", []string{"a", "b", "c"}, func(s string) string { return s },
		func(context.Context, string) error {
			calls++
			cancel()
			return nil
		})
	assert.Equal(t, 1, calls)
	assert.Equal(t, SweepResult{Sweep: "test", Matched: 3, Processed: 1}, res)
}

func TestRunSweep_ClassifiesErrors(t *testing.T) {
	items := []error{nil, errSkip, apperrors.Conflict("contract", "stale", "active"), errors.New("boom")}
	res := runSweep(context.Background(), newNoopLogger(), "test", items, func(error) string { return "" },
		func(_ context.Context, err error) error { return err })
	assert.Equal(t, SweepResult{Sweep: "test", Matched: 4, Processed: 1, Skipped: 2, Failed: 1}, res)
}

func TestRunSweep_ByName(t *testing.T) {
	h := newHarness(t)
	for _, name := range append(DailySweeps(), WeeklySweeps()...) {
		res, err := h.svc.RunSweep(context.Background(), name, testNow)
		require.NoError(t, err, name)
		assert.Equal(t, name, res.Sweep)
	}
	_, err := h.svc.RunSweep(context.Background(), "nightly_cleanup", testNow)
	require.ErrorIs(t, err, apperrors.ErrValidationFailed)
	assert.Equal(t, []string{SweepTrialExpirations, SweepTrialWarnings, SweepServiceEndDates, SweepAccessExpiry, SweepAccessWarnings}, DailySweeps())
}

// afterListStore выполняет hook один раз сразу после того, как обход прочитал выборку.
type afterListStore struct {
	*memory.Store
	fired atomic.Bool
	hook  func()
}

func (a *afterListStore) ListHostProfiles(ctx context.Context, f models.HostFilter) ([]models.HostProfile, error) {
	res, err := a.Store.ListHostProfiles(ctx, f)
	if err == nil && a.hook != nil && a.fired.CompareAndSwap(false, true) {
		a.hook()
	}
	return res, err
}

func TestSweepTrialExpirations_KeepsConcurrentStaffUpdate(t *testing.T) {
	wrapped := &afterListStore{}
	h := newHarnessWithStore(t, func(st *memory.Store) Store {
		wrapped.Store = st
		return wrapped
	})
	ctx := context.Background()
	h.seedHost(t, "h-1", models.HostActive, models.SubscriptionTrialing, ptr(testNow.Add(-time.Hour)))

	plan := models.PlanProfessional
	extended := testNow.Add(30 * day)
	wrapped.hook = func() {
		_, err := h.svc.UpdateSubscription(ctx, "h-1", h.manager, SubscriptionUpdate{Plan: &plan, TrialEndsAt: &extended})
		require.NoError(t, err)
	}

	res, err := h.svc.SweepTrialExpirations(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Sweep: SweepTrialExpirations, Matched: 1, Skipped: 1}, res)

	got, err := h.store.GetHostProfile(ctx, "h-1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanProfessional, got.SubscriptionPlan)
	assert.Equal(t, models.SubscriptionTrialing, got.SubscriptionStatus)
	require.NotNil(t, got.TrialEndsAt)
	assert.True(t, extended.Equal(*got.TrialEndsAt))
	assert.Empty(t, h.titlesWithPrefix(t, "user-h-1", "Trial Expired"))

	res, err = h.svc.SweepTrialExpirations(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Sweep: SweepTrialExpirations}, res, "the extended trial is no longer due")
}
