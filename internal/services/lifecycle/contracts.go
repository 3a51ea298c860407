package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/audit"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

const (
	noticeDaysPerMonth = 30
	readOnlyAccessDays = 365
	dateLayout         = "2006-01-02"
)

// CancellationDates даты окончания обслуживания и доступа только на чтение
// для запроса расторжения, поданного в момент requestedAt.
func CancellationDates(requestedAt time.Time, noticeMonths int) (serviceEnd, readOnlyUntil time.Time) {
	if noticeMonths <= 0 {
		noticeMonths = models.DefaultNoticeMonths
	}
	serviceEnd = models.DateOf(requestedAt).AddDate(0, 0, noticeMonths*noticeDaysPerMonth)
	readOnlyUntil = serviceEnd.AddDate(0, 0, readOnlyAccessDays)
	return serviceEnd, readOnlyUntil
}

// ActiveTemplate действующая версия договора.
func (s *Service) ActiveTemplate(ctx context.Context) (*models.ContractTemplate, error) {
	const op = "lifecycle.ActiveTemplate"
	tpl, err := s.store.GetActiveTemplate(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("contract", "no active contract template")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tpl, nil
}

// Contract договор хоста с оставшимися сроками.
func (s *Service) Contract(ctx context.Context, userID string) (*models.ContractView, error) {
	const op = "lifecycle.Contract"
	profile, err := s.hostByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c, err := s.contractOf(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if c == nil {
		return nil, apperrors.NotFound("contract", "contract not signed yet")
	}
	v := models.NewContractView(c, s.clock.Now())
	return &v, nil
}

// SignContract подписывает действующую версию договора. Отсутствующий договор считается pending.
func (s *Service) SignContract(ctx context.Context, userID string, agreed bool) (*models.ServiceContract, error) {
	const op = "lifecycle.SignContract"
	if !agreed {
		return nil, apperrors.Validation("contract", "you must agree to the service agreement").
			WithDetails(map[string]string{"field": "agreed"})
	}
	profile, err := s.hostByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tpl, err := s.store.GetActiveTemplate(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.Validation("contract", "no active contract template")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	existing, err := s.contractOf(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t, err := Next(MachineContract, contractState(existing), EventSign)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	start := models.DateOf(now)
	var c models.ServiceContract
	if existing != nil {
		c = *existing
	} else {
		c = models.ServiceContract{
			ID:           uuid.NewString(),
			HostID:       profile.ID,
			NoticeMonths: models.DefaultNoticeMonths,
			CreatedAt:    now,
		}
	}
	c.Version = tpl.Version
	c.Status = models.ContractStatus(t.To)
	c.SignedAt = &now
	c.ServiceStartDate = &start
	c.UpdatedAt = now
	if c.NoticeMonths <= 0 {
		c.NoticeMonths = models.DefaultNoticeMonths
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if existing == nil {
			if err := s.store.CreateContract(ctx, &c); err != nil {
				return err
			}
		} else if err := s.store.UpdateContract(ctx, &c, existing.Status); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, audit.Entry{
			HostID:   profile.ID,
			Action:   t.Action,
			ActorID:  &profile.UserID,
			Note:     "Signed contract v" + tpl.Version,
			Metadata: map[string]any{"template_id": tpl.ID, "version": tpl.Version},
		})
		return err
	})
	if errors.Is(err, storage.ErrAlreadyExists) || errors.Is(err, storage.ErrStaleState) {
		return nil, s.staleContract(ctx, profile.ID, Sources(MachineContract, EventSign)...)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.observe(MachineContract, EventSign)

	s.notify(s.afterCommit(ctx), audit.Message{
		UserID:    profile.UserID,
		Category:  models.CategorySystem,
		Title:     "Contract Signed",
		Body:      "You have successfully signed the UnitoPMS service agreement.",
		ActionURL: "/dashboard/contract",
	})
	s.log.Info("contract signed", slog.String("host_id", profile.ID), slog.String("version", tpl.Version))
	return &c, nil
}

// RequestCancellation переводит действующий договор в cancellation_requested
// и вычисляет даты окончания обслуживания и доступа.
func (s *Service) RequestCancellation(ctx context.Context, userID, reason string) (*models.ServiceContract, error) {
	const op = "lifecycle.RequestCancellation"
	profile, err := s.hostByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	existing, err := s.contractOf(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t, err := Next(MachineContract, contractState(existing), EventRequestCancel)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	end, until := CancellationDates(now, existing.NoticeMonths)
	c := *existing
	c.Status = models.ContractStatus(t.To)
	c.CancellationRequestedAt = &now
	c.CancellationReason = strings.TrimSpace(reason)
	c.ServiceEndDate = &end
	c.ReadOnlyAccessUntil = &until
	c.UpdatedAt = now

	reasonNote := c.CancellationReason
	if reasonNote == "" {
		reasonNote = "N/A"
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateContract(ctx, &c, existing.Status); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, audit.Entry{
			HostID:  profile.ID,
			Action:  t.Action,
			ActorID: &profile.UserID,
			Note: fmt.Sprintf("Cancellation requested. Service ends %s. Read-only until %s. Reason: %s",
				end.Format(dateLayout), until.Format(dateLayout), reasonNote),
			Metadata: map[string]any{
				"service_end_date":       end.Format(dateLayout),
				"read_only_access_until": until.Format(dateLayout),
			},
		})
		return err
	})
	if errors.Is(err, storage.ErrStaleState) {
		return nil, s.staleContract(ctx, profile.ID, Sources(MachineContract, EventRequestCancel)...)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.observe(MachineContract, EventRequestCancel)

	after := s.afterCommit(ctx)
	s.notify(after, audit.Message{
		UserID:   profile.UserID,
		Category: models.CategorySubscription,
		Title:    "Cancellation Requested",
		Body: fmt.Sprintf("Your cancellation has been received. Service will end on %s. "+
			"You will have read-only access until %s.", end.Format(dateLayout), until.Format(dateLayout)),
		ActionURL: "/dashboard/contract",
	})
	s.sendMail(after, profile.ID, "cancellation_confirmed", profile.Email, map[string]any{
		"host_name":        hostName(profile),
		"company_name":     profile.CompanyName,
		"service_end_date": end.Format(dateLayout),
		"read_only_until":  until.Format(dateLayout),
	})
	s.log.Info("cancellation requested",
		slog.String("host_id", profile.ID),
		slog.String("service_end_date", end.Format(dateLayout)))
	return &c, nil
}
