package health_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/handlers/health"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestHealth(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     map[string]health.Checker
		wantStatus int
		wantBody   string
	}{
		{name: "no dependencies", checks: nil, wantStatus: http.StatusOK, wantBody: `{"status":"OK","data":{}}`},
		{
			name:       "all up",
			checks:     map[string]health.Checker{"postgres": up, "redis": up},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"OK","data":{"postgres":"up","redis":"up"}}`,
		},
		{
			name:       "redis down",
			checks:     map[string]health.Checker{"postgres": up, "redis": down},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"Error","error":"service degraded","data":{"postgres":"up","redis":"down"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			health.New(newNoopLogger(), tt.checks).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}
