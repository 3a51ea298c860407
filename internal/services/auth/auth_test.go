package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	customjwt "github.com/magabrotheeeer/host-lifecycle/internal/lib/jwt"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/password"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/auth"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage/memory"
)

// Мок для UserRepository
type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *UserRepoMock) GetHostProfileByUser(ctx context.Context, userID string) (*models.HostProfile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HostProfile), args.Error(1)
}

// Мок для jwt.Maker
type JwtMakerMock struct {
	mock.Mock
}

func (m *JwtMakerMock) GenerateToken(claims customjwt.UserClaims) (string, error) {
	args := m.Called(claims)
	return args.String(0), args.Error(1)
}

func (m *JwtMakerMock) ParseToken(token string) (*customjwt.CustomClaims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customjwt.CustomClaims), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var loginAt = time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

func TestAuthService_Login(t *testing.T) {
	rawPassword := "correct-password"
	hashedPassword, err := password.GetHash(rawPassword)
	require.NoError(t, err)

	hostUser := func() *models.User {
		return &models.User{ID: "u-1", Email: "host@example.com", PasswordHash: hashedPassword, IsActive: true, IsHost: true}
	}
	profile := &models.HostProfile{ID: "h-1", UserID: "u-1", CompanyName: "Seaside Rentals"}

	tests := []struct {
		name       string
		email      string
		password   string
		setupMocks func(r *UserRepoMock, j *JwtMakerMock)
		wantToken  string
		wantHost   bool
		wantErr    error
		errMsg     string
	}{
		{
			name:     "successful login",
			email:    " Host@Example.com ",
			password: rawPassword,
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "host@example.com").Return(hostUser(), nil).Once()
				j.On("GenerateToken", customjwt.UserClaims{UserID: "u-1", Email: "host@example.com", IsHost: true}).
					Return("jwt-token-123", nil).Once()
				r.On("TouchLastLogin", mock.Anything, "u-1", loginAt).Return(nil).Once()
				r.On("GetHostProfileByUser", mock.Anything, "u-1").Return(profile, nil).Once()
			},
			wantToken: "jwt-token-123",
			wantHost:  true,
		},
		{
			name:     "user not found",
			email:    "nobody@example.com",
			password: "password",
			setupMocks: func(r *UserRepoMock, _ *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "nobody@example.com").Return(nil, storage.ErrNotFound).Once()
			},
			wantErr: apperrors.ErrPermissionDenied,
			errMsg:  "invalid email or password",
		},
		{
			name:     "wrong password",
			email:    "host@example.com",
			password: "wrong-password",
			setupMocks: func(r *UserRepoMock, _ *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "host@example.com").Return(hostUser(), nil).Once()
			},
			wantErr: apperrors.ErrPermissionDenied,
			errMsg:  "invalid email or password",
		},
		{
			name:     "deactivated account",
			email:    "host@example.com",
			password: rawPassword,
			setupMocks: func(r *UserRepoMock, _ *JwtMakerMock) {
				u := hostUser()
				u.IsActive = false
				r.On("GetUserByEmail", mock.Anything, "host@example.com").Return(u, nil).Once()
			},
			wantErr: apperrors.ErrPermissionDenied,
			errMsg:  "account is not active",
		},
		{
			name:     "token generation error",
			email:    "host@example.com",
			password: rawPassword,
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "host@example.com").Return(hostUser(), nil).Once()
				j.On("GenerateToken", mock.Anything).Return("", errors.New("token error")).Once()
			},
			errMsg: "token error",
		},
		{
			name:     "repository error",
			email:    "host@example.com",
			password: rawPassword,
			setupMocks: func(r *UserRepoMock, _ *JwtMakerMock) {
				r.On("GetUserByEmail", mock.Anything, "host@example.com").Return(nil, errors.New("db error")).Once()
			},
			errMsg: "db error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(UserRepoMock)
			jwtMock := new(JwtMakerMock)
			svc := auth.NewAuthService(newNoopLogger(), repo, jwtMock, clock.NewManual(loginAt))

			tt.setupMocks(repo, jwtMock)

			res, err := svc.Login(context.Background(), tt.email, tt.password)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantToken, res.AccessToken)
				assert.Equal(t, tt.wantHost, res.Host != nil)
			}

			repo.AssertExpectations(t)
			jwtMock.AssertExpectations(t)
		})
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	claims := &customjwt.CustomClaims{UserClaims: customjwt.UserClaims{UserID: "u-1"}}

	tests := []struct {
		name       string
		token      string
		setupMocks func(r *UserRepoMock, j *JwtMakerMock)
		wantErr    error
	}{
		{
			name:  "valid token",
			token: "valid-token",
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				j.On("ParseToken", "valid-token").Return(claims, nil).Once()
				r.On("GetUser", mock.Anything, "u-1").Return(&models.User{ID: "u-1", IsActive: true, IsStaff: true}, nil).Once()
			},
		},
		{
			name:  "invalid token",
			token: "invalid-token",
			setupMocks: func(_ *UserRepoMock, j *JwtMakerMock) {
				j.On("ParseToken", "invalid-token").Return(nil, errors.New("token is expired")).Once()
			},
			wantErr: apperrors.ErrUnauthorized,
		},
		{
			name:  "user deleted",
			token: "valid-token",
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				j.On("ParseToken", "valid-token").Return(claims, nil).Once()
				r.On("GetUser", mock.Anything, "u-1").Return(nil, storage.ErrNotFound).Once()
			},
			wantErr: apperrors.ErrUnauthorized,
		},
		{
			name:  "user deactivated after token issue",
			token: "valid-token",
			setupMocks: func(r *UserRepoMock, j *JwtMakerMock) {
				j.On("ParseToken", "valid-token").Return(claims, nil).Once()
				r.On("GetUser", mock.Anything, "u-1").Return(&models.User{ID: "u-1"}, nil).Once()
			},
			wantErr: apperrors.ErrPermissionDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(UserRepoMock)
			jwtMock := new(JwtMakerMock)
			svc := auth.NewAuthService(newNoopLogger(), repo, jwtMock, nil)

			tt.setupMocks(repo, jwtMock)

			user, err := svc.Authenticate(context.Background(), tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "u-1", user.ID)
				assert.True(t, user.IsStaff)
			}

			repo.AssertExpectations(t)
			jwtMock.AssertExpectations(t)
		})
	}
}

func TestAuthService_LoginWithRealTokens(t *testing.T) {
	maker := customjwt.NewJWTMaker("access-secret", time.Hour)
	hashed, err := password.GetHash("s3cure-pass")
	require.NoError(t, err)
	staff := &models.User{ID: "staff-1", Email: "ops@unitopms.com", PasswordHash: hashed, IsActive: true, IsStaff: true}

	repo := new(UserRepoMock)
	repo.On("GetUserByEmail", mock.Anything, "ops@unitopms.com").Return(staff, nil).Once()
	repo.On("TouchLastLogin", mock.Anything, "staff-1", mock.AnythingOfType("time.Time")).Return(nil).Once()
	repo.On("GetUser", mock.Anything, "staff-1").Return(staff, nil).Once()

	svc := auth.NewAuthService(newNoopLogger(), repo, maker, nil)
	res, err := svc.Login(context.Background(), "ops@unitopms.com", "s3cure-pass")
	require.NoError(t, err)
	assert.Nil(t, res.Host)

	user, err := svc.Authenticate(context.Background(), res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", user.ID)
	repo.AssertExpectations(t)
}

// deactivatedMidLogin снимает активность сразу после того, как вход прочитал пользователя.
type deactivatedMidLogin struct {
	*memory.Store
}

func (r deactivatedMidLogin) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := r.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := r.Store.DeactivateUser(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func TestAuthService_LoginKeepsConcurrentDeactivation(t *testing.T) {
	st := memory.New()
	hashed, err := password.GetHash("s3cure-pass")
	require.NoError(t, err)
	require.NoError(t, st.CreateUser(context.Background(), &models.User{
		ID: "u-1", Email: "host@example.com", PasswordHash: hashed, IsActive: true, IsHost: true,
	}))

	svc := auth.NewAuthService(newNoopLogger(), deactivatedMidLogin{Store: st},
		customjwt.NewJWTMaker("access-secret", time.Hour), clock.NewManual(loginAt))
	res, err := svc.Login(context.Background(), "host@example.com", "s3cure-pass")
	require.NoError(t, err, "the login read an active user")

	stored, err := st.GetUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, stored.IsActive, "recording the login must not reactivate the account")
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, loginAt.Equal(*stored.LastLoginAt))

	_, err = svc.Authenticate(context.Background(), res.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)
}
