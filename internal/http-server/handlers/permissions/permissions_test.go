package permissions_test

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

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/handlers/permissions"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/mware"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/permission"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage/memory"
)

var (
	admin    = &models.User{ID: "admin", Email: "admin@unitopms.com", IsActive: true, IsStaff: true, IsSuperuser: true}
	reviewer = &models.User{ID: "reviewer", Email: "review@unitopms.com", IsActive: true, IsStaff: true}
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	st := memory.New()
	for _, u := range []*models.User{admin, reviewer} {
		require.NoError(t, st.CreateUser(context.Background(), u))
	}
	log := newNoopLogger()
	svc := permission.NewService(log, st, permission.NewResolver(st), clock.NewManual(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)))
	users := map[string]*models.User{admin.ID: admin, reviewer.ID: reviewer}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if u, ok := users[r.Header.Get("X-Test-User")]; ok {
				r = r.WithContext(mware.WithUser(r.Context(), u))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/permissions", permissions.NewList(log, svc))
	r.Post("/permissions", permissions.NewGrant(log, svc))
	r.Delete("/permissions/{id}", permissions.NewRevoke(log, svc))
	r.Get("/staff", permissions.NewStaff(log, svc))
	return r
}

func call(h http.Handler, method, path string, user *models.User, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Test-User", user.ID)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGrantAndRevoke(t *testing.T) {
	h := newRouter(t)

	w := call(h, http.MethodPost, "/permissions", admin, permissions.GrantRequest{UserID: reviewer.ID, Permission: "review"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Data models.ApplicationPermission `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.PermissionReview, resp.Data.Permission)
	grantID := resp.Data.ID

	w = call(h, http.MethodPost, "/permissions", admin, permissions.GrantRequest{UserID: reviewer.ID, Permission: "review"})
	assert.Equal(t, http.StatusOK, w.Code, "repeated grant is idempotent")

	w = call(h, http.MethodPost, "/permissions", reviewer, permissions.GrantRequest{UserID: reviewer.ID, Permission: "manage"})
	assert.Equal(t, http.StatusForbidden, w.Code, "review does not imply manage")

	w = call(h, http.MethodPost, "/permissions", admin, permissions.GrantRequest{UserID: reviewer.ID, Permission: "owner"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(h, http.MethodGet, "/staff", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"permissions":["review"]`)

	w = call(h, http.MethodDelete, "/permissions/"+grantID, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = call(h, http.MethodDelete, "/permissions/"+grantID, admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call(h, http.MethodGet, "/permissions", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","data":[]}`, w.Body.String())
}
