// Package permission проверяет права сотрудников на работу с заявками хостов
// и управляет выданными правами.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// Store хранилище прав.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListStaff(ctx context.Context) ([]models.User, error)
	CreatePermission(ctx context.Context, p *models.ApplicationPermission) error
	GetPermission(ctx context.Context, userID string, level models.PermissionLevel) (*models.ApplicationPermission, error)
	DeletePermission(ctx context.Context, id string) error
	ListPermissionsByUser(ctx context.Context, userID string) ([]models.ApplicationPermission, error)
	ListPermissions(ctx context.Context) ([]models.ApplicationPermission, error)
}

// Resolver проверяет уровень доступа сотрудника.
type Resolver struct {
	store Store
}

// NewResolver создаёт Resolver.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Require возвращает PermissionDenied, если actor не может действовать на уровне level.
// Без флага сотрудника доступа нет даже при выданных правах; суперпользователь проходит всегда.
func (r *Resolver) Require(ctx context.Context, actor *models.User, level models.PermissionLevel) error {
	const op = "permission.Require"
	if actor == nil || !actor.IsActive {
		return apperrors.PermissionDenied("active account required")
	}
	if !actor.IsStaff {
		return apperrors.PermissionDenied("staff access required")
	}
	if actor.IsSuperuser {
		return nil
	}
	grants, err := r.store.ListPermissionsByUser(ctx, actor.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, g := range grants {
		if g.Permission.Satisfies(level) {
			return nil
		}
	}
	return apperrors.PermissionDenied(string(level) + " permission required")
}

// Service управление правами; каждая операция требует уровня manage.
type Service struct {
	log      *slog.Logger
	store    Store
	resolver *Resolver
	clock    clock.Clock
}

// NewService создаёт сервис управления правами.
func NewService(log *slog.Logger, store Store, resolver *Resolver, clk clock.Clock) *Service {
	return &Service{log: log, store: store, resolver: resolver, clock: clk}
}

// Grant выдаёт право сотруднику. Повторная выдача возвращает существующее право и created=false.
func (s *Service) Grant(ctx context.Context, actor *models.User, userID string, level models.PermissionLevel) (*models.ApplicationPermission, bool, error) {
	const op = "permission.Grant"
	if err := s.resolver.Require(ctx, actor, models.PermissionManage); err != nil {
		return nil, false, err
	}
	if !level.Valid() {
		return nil, false, apperrors.Validation("permission", "unknown permission level").
			WithDetails(map[string]string{"permission": string(level)})
	}
	target, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, apperrors.NotFound("user", "user not found")
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if !target.IsStaff {
		return nil, false, apperrors.Validation("permission", "permissions can only be granted to staff users")
	}

	existing, err := s.store.GetPermission(ctx, userID, level)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	p := &models.ApplicationPermission{
		ID:         uuid.NewString(),
		UserID:     userID,
		UserEmail:  target.Email,
		Permission: level,
		GrantedBy:  &actor.ID,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.store.CreatePermission(ctx, p); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			existing, getErr := s.store.GetPermission(ctx, userID, level)
			if getErr != nil {
				return nil, false, fmt.Errorf("%s: %w", op, getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("permission granted",
		slog.String("user_id", userID),
		slog.String("permission", string(level)),
		slog.String("granted_by", actor.ID))
	return p, true, nil
}

// Revoke отзывает право по идентификатору.
func (s *Service) Revoke(ctx context.Context, actor *models.User, id string) error {
	const op = "permission.Revoke"
	if err := s.resolver.Require(ctx, actor, models.PermissionManage); err != nil {
		return err
	}
	if err := s.store.DeletePermission(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound("permission", "permission not found")
		}
		s.log.Error("failed to revoke permission", sl.Op(op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("permission revoked", slog.String("id", id), slog.String("revoked_by", actor.ID))
	return nil
}

// ListGrants все выданные права.
func (s *Service) ListGrants(ctx context.Context, actor *models.User) ([]models.ApplicationPermission, error) {
	const op = "permission.ListGrants"
	if err := s.resolver.Require(ctx, actor, models.PermissionManage); err != nil {
		return nil, err
	}
	res, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if res == nil {
		res = []models.ApplicationPermission{}
	}
	return res, nil
}

// StaffMember сотрудник с выданными правами.
type StaffMember struct {
	models.User
	Permissions []models.PermissionLevel `json:"permissions"`
}

// ListStaff сотрудники вместе с их правами.
func (s *Service) ListStaff(ctx context.Context, actor *models.User) ([]StaffMember, error) {
	const op = "permission.ListStaff"
	if err := s.resolver.Require(ctx, actor, models.PermissionManage); err != nil {
		return nil, err
	}
	users, err := s.store.ListStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	grants, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	byUser := make(map[string][]models.PermissionLevel)
	for _, g := range grants {
		byUser[g.UserID] = append(byUser[g.UserID], g.Permission)
	}
	res := make([]StaffMember, 0, len(users))
	for _, u := range users {
		levels := byUser[u.ID]
		if levels == nil {
			levels = []models.PermissionLevel{}
		}
		res = append(res, StaffMember{User: u, Permissions: levels})
	}
	return res, nil
}
