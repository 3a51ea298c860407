package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/host-lifecycle/internal/cache"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/audit"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// SubscriptionUpdate изменение подписки сотрудником; nil-поля не меняются.
type SubscriptionUpdate struct {
	Plan        *models.SubscriptionPlan
	Status      *models.SubscriptionStatus
	TrialEndsAt *time.Time
}

// SubscriptionStatus представление подписки пользователя; кэшируется в redis.
func (s *Service) SubscriptionStatus(ctx context.Context, userID string) (*models.SubscriptionView, error) {
	const op = "lifecycle.SubscriptionStatus"
	key := cache.SubscriptionStatusKey(userID)
	if s.cache != nil {
		var cached models.SubscriptionView
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("failed to read subscription status from cache", slog.String("user_id", userID), sl.Err(err))
		}
		if found {
			return &cached, nil
		}
	}

	profile, err := s.hostByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	view := models.NewSubscriptionView(profile, s.clock.Now())
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, view, s.opts.StatusTTL); err != nil {
			s.log.Warn("failed to cache subscription status", slog.String("user_id", userID), sl.Err(err))
		}
	}
	return &view, nil
}

// UpdateSubscription меняет план, статус или конец пробного периода. Требует права manage.
// Возвращает список изменений; пустой список означает, что менять нечего.
func (s *Service) UpdateSubscription(ctx context.Context, hostID string, actor *models.User, upd SubscriptionUpdate) ([]string, error) {
	const op = "lifecycle.UpdateSubscription"
	if err := s.authz.Require(ctx, actor, models.PermissionManage); err != nil {
		return nil, err
	}
	if upd.Plan != nil && !upd.Plan.Valid() {
		return nil, apperrors.Validation("subscription", "unknown subscription plan").
			WithDetails(map[string]string{"field": "subscription_plan"})
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, apperrors.Validation("subscription", "unknown subscription status").
			WithDetails(map[string]string{"field": "subscription_status"})
	}
	profile, err := s.hostByID(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t, err := Next(MachineSubscription, string(profile.SubscriptionStatus), EventAdminUpdate)
	if err != nil {
		return nil, err
	}

	expected := profile.State()
	next := *profile
	changes := []string{}
	if upd.Plan != nil && *upd.Plan != profile.SubscriptionPlan {
		changes = append(changes, fmt.Sprintf("plan: %s → %s", profile.SubscriptionPlan, *upd.Plan))
		next.SubscriptionPlan = *upd.Plan
	}
	if upd.Status != nil && *upd.Status != profile.SubscriptionStatus {
		changes = append(changes, fmt.Sprintf("status: %s → %s", profile.SubscriptionStatus, *upd.Status))
		next.SubscriptionStatus = *upd.Status
	}
	if upd.TrialEndsAt != nil && (profile.TrialEndsAt == nil || !profile.TrialEndsAt.Equal(*upd.TrialEndsAt)) {
		changes = append(changes, "trial_ends_at updated")
		v := upd.TrialEndsAt.UTC()
		next.TrialEndsAt = &v
	}
	if len(changes) == 0 {
		return changes, nil
	}
	next.UpdatedAt = s.clock.Now()
	summary := strings.Join(changes, ", ")

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateHostProfile(ctx, &next, expected); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, audit.Entry{
			HostID:   next.ID,
			Action:   t.Action,
			ActorID:  actorID(actor),
			Note:     "Subscription updated: " + summary,
			Metadata: map[string]any{"changes": changes},
		})
		return err
	})
	if errors.Is(err, storage.ErrStaleState) {
		return nil, s.staleHost(ctx, hostID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.observe(MachineSubscription, EventAdminUpdate)

	after := s.afterCommit(ctx)
	s.invalidateStatus(after, next.UserID)
	s.notify(after, audit.Message{
		UserID:    next.UserID,
		Category:  models.CategorySubscription,
		Title:     "Subscription Updated",
		Body:      "Your subscription has been updated: " + summary,
		ActionURL: "/dashboard/subscription",
	})
	s.log.Info("subscription updated", slog.String("host_id", next.ID), slog.String("changes", summary))
	return changes, nil
}
