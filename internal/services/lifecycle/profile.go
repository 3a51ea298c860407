package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/audit"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

const (
	maxCompanyNameLen = 255
	maxPhoneLen       = 30
)

// ProfileUpdate поля профиля, которые хост меняет сам; nil оставляет поле как есть.
type ProfileUpdate struct {
	CompanyName *string
	Phone       *string
}

// HostProfile возвращает профиль хоста текущего пользователя.
func (s *Service) HostProfile(ctx context.Context, userID string) (*models.HostProfile, error) {
	const op = "lifecycle.HostProfile"
	p, err := s.hostByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// UpdateHostProfile меняет редактируемые поля профиля. Статусы не затрагиваются;
// одновременное изменение профиля кем-то ещё даёт Conflict.
func (s *Service) UpdateHostProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.HostProfile, error) {
	const op = "lifecycle.UpdateHostProfile"
	profile, err := s.hostByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	next := *profile
	var changed []string
	if upd.CompanyName != nil {
		name := strings.TrimSpace(*upd.CompanyName)
		if name == "" || utf8.RuneCountInString(name) > maxCompanyNameLen {
			return nil, apperrors.Validation("host_profile", "company name must be 1-255 characters").
				WithDetails(map[string]string{"field": "company_name"})
		}
		if name != profile.CompanyName {
			next.CompanyName = name
			changed = append(changed, "company_name")
		}
	}
	if upd.Phone != nil {
		phone := strings.TrimSpace(*upd.Phone)
		if utf8.RuneCountInString(phone) > maxPhoneLen {
			return nil, apperrors.Validation("host_profile", "phone must be at most 30 characters").
				WithDetails(map[string]string{"field": "phone"})
		}
		if phone != profile.Phone {
			next.Phone = phone
			changed = append(changed, "phone")
		}
	}
	if len(changed) == 0 {
		return profile, nil
	}
	next.UpdatedAt = s.clock.Now()

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateHostProfile(ctx, &next, profile.State()); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, audit.Entry{
			HostID:   next.ID,
			Action:   models.ActionProfileUpdated,
			ActorID:  &userID,
			Note:     "Host updated " + strings.Join(changed, ", "),
			Metadata: map[string]any{"fields": changed},
		})
		return err
	})
	if errors.Is(err, storage.ErrStaleState) {
		return nil, s.staleHost(ctx, next.ID, string(profile.Status))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &next, nil
}
