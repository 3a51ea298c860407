// Package auth отвечает за вход по email и паролю и проверку токенов доступа.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/jwt"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/password"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// GetUserByEmail возвращает пользователя по email или storage.ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUser возвращает пользователя по ID или storage.ErrNotFound.
	GetUser(ctx context.Context, id string) (*models.User, error)

	// TouchLastLogin записывает время входа, не трогая флаги пользователя.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	// GetHostProfileByUser возвращает профиль хоста пользователя или storage.ErrNotFound.
	GetHostProfileByUser(ctx context.Context, userID string) (*models.HostProfile, error)
}

// LoginResult результат успешного входа.
type LoginResult struct {
	AccessToken string              `json:"access_token"`
	User        *models.User        `json:"user"`
	Host        *models.HostProfile `json:"host_profile,omitempty"`
}

// AuthService отвечает за вход и проверку JWT.
type AuthService struct {
	log      *slog.Logger
	users    UserRepository
	jwtMaker jwt.Maker
	clock    clock.Clock
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(log *slog.Logger, users UserRepository, jwtMaker jwt.Maker, clk clock.Clock) *AuthService {
	if clk == nil {
		clk = clock.System{}
	}
	return &AuthService{
		log:      log,
		users:    users,
		jwtMaker: jwtMaker,
		clock:    clk,
	}
}

var errInvalidCredentials = apperrors.PermissionDenied("invalid email or password")

// Login проверяет пароль и выпускает токен доступа. Неактивная учётная запись войти не может.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (*LoginResult, error) {
	const op = "auth.Login"
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		return nil, apperrors.PermissionDenied("account is not active")
	}

	token, err := s.jwtMaker.GenerateToken(claimsOf(user))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.clock.Now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.LastLoginAt = &now

	res := &LoginResult{AccessToken: token, User: user}
	if user.IsHost {
		host, err := s.users.GetHostProfileByUser(ctx, user.ID)
		switch {
		case err == nil:
			res.Host = host
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	s.log.Info("user logged in", slog.String("user_id", user.ID), slog.Bool("is_staff", user.IsStaff))
	return res, nil
}

// Authenticate проверяет токен доступа и загружает актуального пользователя.
// Флаги берутся из хранилища, а не из токена: отзыв прав действует сразу.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	const op = "auth.Authenticate"
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}
	user, err := s.users.GetUser(ctx, claims.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !user.IsActive {
		return nil, apperrors.PermissionDenied("account is not active")
	}
	return user, nil
}

func claimsOf(u *models.User) jwt.UserClaims {
	return jwt.UserClaims{
		UserID:      u.ID,
		Email:       u.Email,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		IsHost:      u.IsHost,
	}
}
