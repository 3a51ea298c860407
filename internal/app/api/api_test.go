package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/host-lifecycle/internal/app/core"
	"github.com/magabrotheeeer/host-lifecycle/internal/config"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/mware"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/jwt"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/password"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
)

const secret = "test-secret"

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func testConfig() *config.Config {
	return &config.Config{
		Env:      "local",
		Storage:  config.Storage{Driver: "memory"},
		JWTToken: config.JWTToken{JWTSecretKey: secret, TokenTTL: time.Hour, SetupTTL: 72 * time.Hour},
		Mail:     config.Mail{Mode: "log", Timeout: time.Second},
		Lifecycle: config.Lifecycle{
			FrontendURL:        "https://portal.example.com",
			TrialPeriod:        14 * 24 * time.Hour,
			TrialWarningWindow: 72 * time.Hour,
			DedupWindow:        24 * time.Hour,
			AccessWarningDays:  []int{30, 7, 1},
		},
	}
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
	Code   string          `json:"code"`
}

type client struct {
	t      *testing.T
	router http.Handler
}

func (c client) do(method, path, token string, body any) (int, envelope) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	c.router.ServeHTTP(rr, req)

	var env envelope
	if rr.Header().Get("Content-Type") != "" && bytes.HasPrefix(bytes.TrimSpace(rr.Body.Bytes()), []byte("{")) {
		require.NoError(c.t, json.Unmarshal(rr.Body.Bytes(), &env))
	}
	return rr.Code, env
}

func (c client) login(email, pw string) string {
	c.t.Helper()
	code, env := c.do(http.MethodPost, "/api/v1/login", "", map[string]string{"email": email, "password": pw})
	require.Equal(c.t, http.StatusOK, code, env.Error)
	var res struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(c.t, json.Unmarshal(env.Data, &res))
	require.NotEmpty(c.t, res.AccessToken)
	return res.AccessToken
}

func setup(t *testing.T) (client, *core.Core) {
	t.Helper()
	ctx := context.Background()
	c, err := core.Build(ctx, testConfig(), newNoopLogger())
	require.NoError(t, err)
	t.Cleanup(c.Close)

	hash, err := password.GetHash("staff-password")
	require.NoError(t, err)
	require.NoError(t, c.Store.CreateUser(ctx, &models.User{
		ID: "staff-1", Email: "ops@unitopms.com", FullName: "Ops", PasswordHash: hash,
		IsActive: true, IsStaff: true, IsSuperuser: true, CreatedAt: time.Now().UTC(),
	}))

	router := NewRouter(newNoopLogger(), c, mware.NewRateLimiter(100, 100))
	return client{t: t, router: router}, c
}

func TestHostJourney(t *testing.T) {
	cl, c := setup(t)
	ctx := context.Background()

	code, env := cl.do(http.MethodPost, "/api/v1/host-applications", "", map[string]any{
		"email": "Host@Example.com", "full_name": "Jane Host", "company_name": "Seaside Rentals",
		"num_properties": 2, "num_units": 5,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var applied struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &applied))
	assert.Equal(t, string(models.HostPendingReview), applied.Status)

	code, env = cl.do(http.MethodPost, "/api/v1/host-applications", "", map[string]any{
		"email": "host@example.com", "full_name": "Jane Host", "company_name": "Seaside Rentals",
	})
	assert.Equal(t, http.StatusConflict, code, env.Error)

	staff := cl.login("ops@unitopms.com", "staff-password")

	code, env = cl.do(http.MethodGet, "/api/v1/applications?status=pending_review", staff, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var listed []models.HostProfile
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)

	code, env = cl.do(http.MethodPost, "/api/v1/applications/"+applied.ID+"/approve", staff, nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	profile, err := c.Store.GetHostProfile(ctx, applied.ID)
	require.NoError(t, err)
	user, err := c.Store.GetUser(ctx, profile.UserID)
	require.NoError(t, err)
	token, err := jwt.NewSetupTokenIssuer(secret, 72*time.Hour, c.Clock).Issue(user)
	require.NoError(t, err)

	code, env = cl.do(http.MethodPost, "/api/v1/set-password", "", map[string]string{
		"uid": user.ID, "token": token, "password": "host-password", "confirm_password": "host-password",
	})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, _ = cl.do(http.MethodPost, "/api/v1/set-password", "", map[string]string{
		"uid": user.ID, "token": token, "password": "another-pass", "confirm_password": "another-pass",
	})
	assert.Equal(t, http.StatusBadRequest, code, "setup link is single use")

	host := cl.login("host@example.com", "host-password")

	code, env = cl.do(http.MethodGet, "/api/v1/subscription-status", host, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var sub models.SubscriptionView
	require.NoError(t, json.Unmarshal(env.Data, &sub))
	assert.Equal(t, models.SubscriptionTrialing, sub.Status)
	assert.Equal(t, 14, sub.TrialDaysRemaining)

	code, _ = cl.do(http.MethodPost, "/api/v1/contract/sign", host, map[string]bool{"agreed": false})
	assert.Equal(t, http.StatusBadRequest, code)
	code, env = cl.do(http.MethodPost, "/api/v1/contract/sign", host, map[string]bool{"agreed": true})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = cl.do(http.MethodPost, "/api/v1/contract/cancel", host, map[string]string{"reason": "moving on"})
	require.Equal(t, http.StatusOK, code, env.Error)
	var contract models.ServiceContract
	require.NoError(t, json.Unmarshal(env.Data, &contract))
	assert.Equal(t, models.ContractCancellationRequested, contract.Status)
	require.NotNil(t, contract.ServiceEndDate)
	require.NotNil(t, contract.ReadOnlyAccessUntil)

	code, _ = cl.do(http.MethodPost, "/api/v1/contract/cancel", host, map[string]string{"reason": "again"})
	assert.Equal(t, http.StatusConflict, code)

	code, env = cl.do(http.MethodGet, "/api/v1/notifications/unread-count", host, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var unread struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &unread))
	assert.Positive(t, unread.Count)

	code, env = cl.do(http.MethodGet, "/api/v1/applications/"+applied.ID+"/logs", staff, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var logs []models.ApplicationLog
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	assert.GreaterOrEqual(t, len(logs), 4)
}

func TestAccessControl(t *testing.T) {
	cl, c := setup(t)
	ctx := context.Background()

	code, env := cl.do(http.MethodGet, "/api/v1/subscription-status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", env.Code)

	code, _ = cl.do(http.MethodGet, "/api/v1/applications", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	hash, err := password.GetHash("plain-password")
	require.NoError(t, err)
	require.NoError(t, c.Store.CreateUser(ctx, &models.User{
		ID: "u-plain", Email: "plain@example.com", PasswordHash: hash, IsActive: true, CreatedAt: time.Now().UTC(),
	}))
	plain := cl.login("plain@example.com", "plain-password")

	code, _ = cl.do(http.MethodGet, "/api/v1/applications", plain, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = cl.do(http.MethodGet, "/api/v1/permissions", plain, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = cl.do(http.MethodPost, "/api/v1/login", "", map[string]string{"email": "plain@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestHealthAndMetrics(t *testing.T) {
	cl, _ := setup(t)

	code, env := cl.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code, env.Error)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	cl.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "host_lifecycle_http_requests_total")
}
