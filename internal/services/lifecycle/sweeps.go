package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/audit"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// Имена периодических проверок.
const (
	SweepTrialExpirations = "trial_expirations"
	SweepTrialWarnings    = "trial_warnings"
	SweepServiceEndDates  = "service_end_dates"
	SweepAccessExpiry     = "access_expiry"
	SweepAccessWarnings   = "access_warnings"
	SweepPastDueReminders = "past_due_reminders"
)

const trialWarningPrefix = "Trial Expires"

// errSkip запись уже обработана или не требует действий.
var errSkip = errors.New("record skipped")

// SweepResult итог одной проверки.
type SweepResult struct {
	Sweep     string `json:"sweep"`
	Matched   int    `json:"matched"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

func (r *SweepResult) add(other SweepResult) {
	r.Matched += other.Matched
	r.Processed += other.Processed
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

// runSweep обрабатывает записи независимо: ошибка одной записи журналируется, проверка продолжается.
// Проигранное условное обновление и Conflict считаются пропуском.
func runSweep[T any](ctx context.Context, log *slog.Logger, name string, items []T, id func(T) string, fn func(context.Context, T) error) SweepResult {
	res := SweepResult{Sweep: name, Matched: len(items)}
	for _, item := range items {
		if ctx.Err() != nil {
			log.Warn("sweep interrupted", slog.String("sweep", name), sl.Err(ctx.Err()))
			break
		}
		err := fn(ctx, item)
		switch {
		case err == nil:
			res.Processed++
		case errors.Is(err, errSkip), errors.Is(err, storage.ErrStaleState), errors.Is(err, apperrors.ErrConflict):
			res.Skipped++
			log.Debug("sweep record skipped", slog.String("sweep", name), slog.String("id", id(item)), sl.Err(err))
		default:
			res.Failed++
			log.Error("sweep record failed", slog.String("sweep", name), slog.String("id", id(item)), sl.Err(err))
		}
	}
	return res
}

func (s *Service) finishSweep(res SweepResult, started time.Time) SweepResult {
	took := time.Since(started)
	s.metrics.ObserveSweep(res.Sweep, res.Processed, res.Skipped, res.Failed, took)
	s.log.Info("sweep finished",
		slog.String("sweep", res.Sweep),
		slog.Int("matched", res.Matched),
		slog.Int("processed", res.Processed),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
		slog.Duration("took", took))
	return res
}

func profileKey(p models.HostProfile) string { return p.ID }

func contractKey(c models.ServiceContract) string { return c.ID }

// SweepTrialExpirations отменяет подписки, у которых закончился пробный период.
func (s *Service) SweepTrialExpirations(ctx context.Context, now time.Time) (SweepResult, error) {
	const op = "lifecycle.SweepTrialExpirations"
	started := time.Now()
	hosts, err := s.store.ListHostProfiles(ctx, models.HostFilter{
		SubscriptionStatus: models.SubscriptionTrialing,
		TrialEndsBy:        &now,
	})
	if err != nil {
		return SweepResult{Sweep: SweepTrialExpirations}, fmt.Errorf("%s: %w", op, err)
	}
	res := runSweep(ctx, s.log, SweepTrialExpirations, hosts, profileKey, func(ctx context.Context, p models.HostProfile) error {
		return s.expireTrial(ctx, &p, now)
	})
	return s.finishSweep(res, started), nil
}

func (s *Service) expireTrial(ctx context.Context, p *models.HostProfile, now time.Time) error {
	t, err := Next(MachineSubscription, string(p.SubscriptionStatus), EventTrialExpire)
	if err != nil {
		return err
	}
	expected := p.State()
	next := *p
	next.SubscriptionStatus = models.SubscriptionStatus(t.To)
	next.UpdatedAt = now
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateHostProfile(ctx, &next, expected); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, audit.Entry{
			HostID: next.ID,
			Action: t.Action,
			Note:   "Free trial expired. Subscription cancelled.",
		})
		return err
	})
	if err != nil {
		return err
	}
	s.observe(MachineSubscription, EventTrialExpire)

	s.invalidateStatus(ctx, next.UserID)
	s.notify(ctx, audit.Message{
		UserID:   next.UserID,
		Category: models.CategorySubscription,
		Title:    "Trial Expired",
		Body: "Your 14-day free trial has expired. Your portal is now read-only. " +
			"Upgrade your plan to restore full access.",
		ActionURL: "/dashboard/subscription",
	})
	s.sendMail(ctx, next.ID, "trial_expired", next.Email, map[string]any{
		"host_name":    hostName(&next),
		"company_name": next.CompanyName,
	})
	return nil
}

// SweepTrialWarnings предупреждает хостов, у которых пробный период закончится в ближайшие дни.
// Не больше одного предупреждения на пользователя за окно дедупликации.
func (s *Service) SweepTrialWarnings(ctx context.Context, now time.Time) (SweepResult, error) {
	const op = "lifecycle.SweepTrialWarnings"
	started := time.Now()
	horizon := now.Add(s.opts.TrialWarningWindow)
	hosts, err := s.store.ListHostProfiles(ctx, models.HostFilter{
		SubscriptionStatus: models.SubscriptionTrialing,
		TrialEndsAfter:     &now,
		TrialEndsBy:        &horizon,
	})
	if err != nil {
		return SweepResult{Sweep: SweepTrialWarnings}, fmt.Errorf("%s: %w", op, err)
	}
	since := now.Add(-s.opts.DedupWindow)
	res := runSweep(ctx, s.log, SweepTrialWarnings, hosts, profileKey, func(ctx context.Context, p models.HostProfile) error {
		days := models.DaysCeil(p.TrialEndsAt.Sub(now))
		created, err := s.audit.NotifyUnlessRecent(ctx, audit.Message{
			UserID:   p.UserID,
			Category: models.CategorySubscription,
			Title:    fmt.Sprintf("Trial Expires in %d %s", days, dayWord(days)),
			Body: fmt.Sprintf("Your free trial expires in %d day(s). "+
				"Upgrade now to keep full access to your property management tools.", days),
			ActionURL: "/dashboard/subscription",
		}, trialWarningPrefix, since)
		if err != nil {
			return err
		}
		if !created {
			return errSkip
		}
		s.sendMail(ctx, p.ID, "trial_expiring", p.Email, map[string]any{
			"host_name":      hostName(&p),
			"company_name":   p.CompanyName,
			"days_remaining": days,
		})
		return nil
	})
	return s.finishSweep(res, started), nil
}

// SweepServiceEndDates завершает обслуживание по договорам, у которых наступила дата окончания,
// и принудительно отменяет подписку хоста.
func (s *Service) SweepServiceEndDates(ctx context.Context, now time.Time) (SweepResult, error) {
	const op = "lifecycle.SweepServiceEndDates"
	started := time.Now()
	today := models.DateOf(now)
	contracts, err := s.store.ListContracts(ctx, models.ContractFilter{
		Status:       models.ContractCancellationRequested,
		ServiceEndBy: &today,
	})
	if err != nil {
		return SweepResult{Sweep: SweepServiceEndDates}, fmt.Errorf("%s: %w", op, err)
	}
	res := runSweep(ctx, s.log, SweepServiceEndDates, contracts, contractKey, func(ctx context.Context, c models.ServiceContract) error {
		return s.endService(ctx, &c, now)
	})
	return s.finishSweep(res, started), nil
}

func (s *Service) endService(ctx context.Context, c *models.ServiceContract, now time.Time) error {
	ct, err := Next(MachineContract, string(c.Status), EventServiceEnd)
	if err != nil {
		return err
	}
	profile, err := s.store.GetHostProfile(ctx, c.HostID)
	if err != nil {
		return err
	}
	nextContract := *c
	nextContract.Status = models.ContractStatus(ct.To)
	nextContract.UpdatedAt = now

	expectedHost := profile.State()
	nextHost := *profile
	hostChanged := false
	if profile.SubscriptionStatus != models.SubscriptionCancelled {
		st, err := Next(MachineSubscription, string(profile.SubscriptionStatus), EventServiceEnd)
		if err != nil {
			return err
		}
		nextHost.SubscriptionStatus = models.SubscriptionStatus(st.To)
		nextHost.UpdatedAt = now
		hostChanged = true
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateContract(ctx, &nextContract, c.Status); err != nil {
			return err
		}
		if hostChanged {
			if err := s.store.UpdateHostProfile(ctx, &nextHost, expectedHost); err != nil {
				return err
			}
		}
		_, err := s.audit.Record(ctx, audit.Entry{
			HostID: c.HostID,
			Action: ct.Action,
			Note: fmt.Sprintf("Service ended. Read-only access until %s.",
				formatDate(c.ReadOnlyAccessUntil)),
		})
		return err
	})
	if err != nil {
		return err
	}
	s.observe(MachineContract, EventServiceEnd)

	s.invalidateStatus(ctx, profile.UserID)
	s.notify(ctx, audit.Message{
		UserID:   profile.UserID,
		Category: models.CategorySubscription,
		Title:    "Service Ended",
		Body: fmt.Sprintf("Your service has ended. You have read-only access to your data until %s.",
			formatDate(c.ReadOnlyAccessUntil)),
		ActionURL: "/dashboard/contract",
	})
	s.sendMail(ctx, profile.ID, "service_ended", profile.Email, map[string]any{
		"host_name":       hostName(profile),
		"company_name":    profile.CompanyName,
		"read_only_until": formatDate(c.ReadOnlyAccessUntil),
	})
	return nil
}

// SweepAccessExpiry закрывает доступ только на чтение: договор истекает, учётная запись
// и профиль деактивируются без возможности восстановления.
func (s *Service) SweepAccessExpiry(ctx context.Context, now time.Time) (SweepResult, error) {
	const op = "lifecycle.SweepAccessExpiry"
	started := time.Now()
	today := models.DateOf(now)
	contracts, err := s.store.ListContracts(ctx, models.ContractFilter{
		Status:          models.ContractCancelled,
		ReadOnlyUntilBy: &today,
	})
	if err != nil {
		return SweepResult{Sweep: SweepAccessExpiry}, fmt.Errorf("%s: %w", op, err)
	}
	res := runSweep(ctx, s.log, SweepAccessExpiry, contracts, contractKey, func(ctx context.Context, c models.ServiceContract) error {
		return s.expireAccess(ctx, &c, now)
	})
	return s.finishSweep(res, started), nil
}

func (s *Service) expireAccess(ctx context.Context, c *models.ServiceContract, now time.Time) error {
	ct, err := Next(MachineContract, string(c.Status), EventAccessExpire)
	if err != nil {
		return err
	}
	profile, err := s.store.GetHostProfile(ctx, c.HostID)
	if err != nil {
		return err
	}
	user, err := s.store.GetUser(ctx, profile.UserID)
	if err != nil {
		return err
	}
	nextContract := *c
	nextContract.Status = models.ContractStatus(ct.To)
	nextContract.UpdatedAt = now

	expectedHost := profile.State()
	nextHost := *profile
	hostChanged := false
	if profile.Status != models.HostDeactivated {
		ht, err := Next(MachineHost, string(profile.Status), EventAccessExpire)
		if err != nil {
			s.log.Warn("host profile left unchanged on access expiry",
				slog.String("host_id", profile.ID),
				slog.String("status", string(profile.Status)))
		} else {
			nextHost.Status = models.HostStatus(ht.To)
			nextHost.UpdatedAt = now
			hostChanged = true
		}
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateContract(ctx, &nextContract, c.Status); err != nil {
			return err
		}
		if hostChanged {
			if err := s.store.UpdateHostProfile(ctx, &nextHost, expectedHost); err != nil {
				return err
			}
		}
		if err := s.store.DeactivateUser(ctx, user.ID); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, audit.Entry{
			HostID: profile.ID,
			Action: ct.Action,
			Note:   "Read-only access expired. Account deactivated.",
		})
		return err
	})
	if err != nil {
		return err
	}
	s.observe(MachineContract, EventAccessExpire)

	s.invalidateStatus(ctx, profile.UserID)
	s.sendMail(ctx, profile.ID, "access_expired", profile.Email, map[string]any{
		"host_name":    hostName(profile),
		"company_name": profile.CompanyName,
	})
	return nil
}

// SweepAccessWarnings предупреждает за точное число дней до конца доступа только на чтение.
// Каждый порог дедуплицируется по полному заголовку.
func (s *Service) SweepAccessWarnings(ctx context.Context, now time.Time) (SweepResult, error) {
	const op = "lifecycle.SweepAccessWarnings"
	started := time.Now()
	today := models.DateOf(now)
	since := now.Add(-s.opts.DedupWindow)
	total := SweepResult{Sweep: SweepAccessWarnings}
	for _, days := range s.opts.AccessWarningDays {
		target := today.AddDate(0, 0, days)
		contracts, err := s.store.ListContracts(ctx, models.ContractFilter{
			Status:             models.ContractCancelled,
			ReadOnlyUntilEqual: &target,
		})
		if err != nil {
			return s.finishSweep(total, started), fmt.Errorf("%s: %w", op, err)
		}
		res := runSweep(ctx, s.log, SweepAccessWarnings, contracts, contractKey, func(ctx context.Context, c models.ServiceContract) error {
			return s.warnAccess(ctx, &c, days, since)
		})
		total.add(res)
	}
	return s.finishSweep(total, started), nil
}

func (s *Service) warnAccess(ctx context.Context, c *models.ServiceContract, days int, since time.Time) error {
	profile, err := s.store.GetHostProfile(ctx, c.HostID)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("Read-Only Access Ends in %d %s", days, dayWord(days))
	created, err := s.audit.NotifyUnlessRecent(ctx, audit.Message{
		UserID:   profile.UserID,
		Category: models.CategorySubscription,
		Title:    title,
		Body: fmt.Sprintf("Your read-only access ends on %s. Export your data before then.",
			formatDate(c.ReadOnlyAccessUntil)),
		ActionURL: "/dashboard/contract",
	}, title, since)
	if err != nil {
		return err
	}
	if !created {
		return errSkip
	}
	s.sendMail(ctx, profile.ID, "access_expiring", profile.Email, map[string]any{
		"host_name":       hostName(profile),
		"company_name":    profile.CompanyName,
		"days_remaining":  days,
		"read_only_until": formatDate(c.ReadOnlyAccessUntil),
	})
	return nil
}

// SweepPastDueReminders напоминает всем хостам с просроченной оплатой. Без дедупликации:
// каждый запуск уведомляет заново.
func (s *Service) SweepPastDueReminders(ctx context.Context, now time.Time) (SweepResult, error) {
	const op = "lifecycle.SweepPastDueReminders"
	started := time.Now()
	hosts, err := s.store.ListHostProfiles(ctx, models.HostFilter{SubscriptionStatus: models.SubscriptionPastDue})
	if err != nil {
		return SweepResult{Sweep: SweepPastDueReminders}, fmt.Errorf("%s: %w", op, err)
	}
	res := runSweep(ctx, s.log, SweepPastDueReminders, hosts, profileKey, func(ctx context.Context, p models.HostProfile) error {
		if _, err := s.audit.Notify(ctx, audit.Message{
			UserID:   p.UserID,
			Category: models.CategoryPayment,
			Title:    "Payment Failed: Services Suspended",
			Body: "We were unable to process your payment. You can still view bookings from connected OTAs, " +
				"but all other services are suspended. Please update your payment method to restore access.",
			ActionURL: "/dashboard/subscription",
		}); err != nil {
			return err
		}
		s.sendMail(ctx, p.ID, "payment_failed", p.Email, map[string]any{
			"host_name":    hostName(&p),
			"company_name": p.CompanyName,
		})
		return nil
	})
	return s.finishSweep(res, started), nil
}

// RunSweep запускает проверку по имени.
func (s *Service) RunSweep(ctx context.Context, name string, now time.Time) (SweepResult, error) {
	switch name {
	case SweepTrialExpirations:
		return s.SweepTrialExpirations(ctx, now)
	case SweepTrialWarnings:
		return s.SweepTrialWarnings(ctx, now)
	case SweepServiceEndDates:
		return s.SweepServiceEndDates(ctx, now)
	case SweepAccessExpiry:
		return s.SweepAccessExpiry(ctx, now)
	case SweepAccessWarnings:
		return s.SweepAccessWarnings(ctx, now)
	case SweepPastDueReminders:
		return s.SweepPastDueReminders(ctx, now)
	}
	return SweepResult{Sweep: name}, apperrors.Validation("sweep", "unknown sweep "+name)
}

// DailySweeps проверки ежедневного запуска в порядке выполнения.
func DailySweeps() []string {
	return []string{
		SweepTrialExpirations,
		SweepTrialWarnings,
		SweepServiceEndDates,
		SweepAccessExpiry,
		SweepAccessWarnings,
	}
}

// WeeklySweeps проверки еженедельного запуска.
func WeeklySweeps() []string {
	return []string{SweepPastDueReminders}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
