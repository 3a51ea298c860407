package hosting_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/handlers/hosting"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/lifecycle"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) ApplyForHosting(ctx context.Context, app lifecycle.Application) (*models.HostProfile, error) {
	args := m.Called(ctx, app)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HostProfile), args.Error(1)
}

func (m *ServiceMock) SetPassword(ctx context.Context, userID, token, newPassword, confirm string) error {
	args := m.Called(ctx, userID, token, newPassword, confirm)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func post(h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestApply(t *testing.T) {
	validReq := hosting.ApplyRequest{
		Email:         "host@example.com",
		FullName:      "Jane Host",
		CompanyName:   "Seaside Rentals",
		Country:       "PT",
		NumProperties: 2,
		NumUnits:      5,
	}

	tests := []struct {
		name       string
		body       any
		setupMock  func(*ServiceMock)
		wantStatus int
		wantBody   string
	}{
		{
			name: "created",
			body: validReq,
			setupMock: func(m *ServiceMock) {
				m.On("ApplyForHosting", mock.Anything, mock.MatchedBy(func(a lifecycle.Application) bool {
					return a.Email == "host@example.com" && a.CompanyName == "Seaside Rentals" && a.NumUnits == 5
				})).Return(&models.HostProfile{ID: "h-1", Status: models.HostPendingReview}, nil).Once()
			},
			wantStatus: http.StatusCreated,
			wantBody:   `"status":"pending_review"`,
		},
		{
			name:       "invalid email",
			body:       hosting.ApplyRequest{Email: "nope", FullName: "J", CompanyName: "C"},
			setupMock:  func(*ServiceMock) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   "field Email must be a valid email",
		},
		{
			name:       "malformed json",
			body:       `{"email":`,
			setupMock:  func(*ServiceMock) {},
			wantStatus: http.StatusBadRequest,
			wantBody:   "failed to decode request",
		},
		{
			name: "duplicate email",
			body: validReq,
			setupMock: func(m *ServiceMock) {
				m.On("ApplyForHosting", mock.Anything, mock.Anything).
					Return(nil, apperrors.Validation("user", "a user with this email already exists")).Once()
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMock(svc)

			w := post(hosting.NewApply(newNoopLogger(), svc), tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			svc.AssertExpectations(t)
		})
	}
}

func TestSetPassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("SetPassword", mock.Anything, "u-1", "tok", "Str0ngPass!", "Str0ngPass!").Return(nil).Once()

		w := post(hosting.NewSetPassword(newNoopLogger(), svc), hosting.SetPasswordRequest{
			UserID: "u-1", Token: "tok", Password: "Str0ngPass!", ConfirmPassword: "Str0ngPass!",
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Password set successfully")
		svc.AssertExpectations(t)
	})

	t.Run("expired link", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("SetPassword", mock.Anything, "u-1", "old", "Str0ngPass!", "Str0ngPass!").
			Return(apperrors.Validation("user", "invalid or expired link")).Once()

		w := post(hosting.NewSetPassword(newNoopLogger(), svc), hosting.SetPasswordRequest{
			UserID: "u-1", Token: "old", Password: "Str0ngPass!", ConfirmPassword: "Str0ngPass!",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid or expired link")
	})

	t.Run("missing token", func(t *testing.T) {
		svc := new(ServiceMock)
		w := post(hosting.NewSetPassword(newNoopLogger(), svc), map[string]string{"uid": "u-1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "SetPassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
