// Package mware содержит middleware HTTP-сервера: аутентификацию по JWT,
// проверку роли сотрудника, ограничение частоты запросов и сбор метрик.
package mware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/response"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/audit"
)

type userKey struct{}

// WithUser кладёт аутентифицированного пользователя в контекст.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom пользователь из контекста запроса.
func UserFrom(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey{}).(*models.User)
	return u, ok && u != nil
}

// Authenticator проверяет токен доступа.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// JWTMiddleware проверяет заголовок Authorization: Bearer <token> и кладёт
// актуального пользователя в контекст.
func JWTMiddleware(authn Authenticator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := RequestLogger(log, r, "mware.JWTMiddleware")

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.FromError(w, r, log, apperrors.Unauthorized("missing or invalid authorization header"))
				return
			}
			user, err := authn.Authenticate(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				response.FromError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// StaffOnly пропускает только сотрудников. Права на заявки проверяет сервис.
func StaffOnly(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(w, r, log)
			if !ok {
				return
			}
			if !u.IsStaff {
				response.FromError(w, r, log, apperrors.PermissionDenied("staff access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP сохраняет IP клиента в контексте для журнала заявок.
// Ставится после middleware.RealIP.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(audit.WithIP(r.Context(), remoteIP(r))))
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HTTPObserver учёт обработанных запросов.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, took time.Duration)
}

// Metrics учитывает запросы по шаблону маршрута chi.
func Metrics(m HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveHTTP(r.Method, route, status, time.Since(started))
		})
	}
}

// RequestLogger логгер обработчика с op и request_id.
func RequestLogger(log *slog.Logger, r *http.Request, op string) *slog.Logger {
	return log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// CurrentUser пользователь запроса; при его отсутствии отвечает 401.
func CurrentUser(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*models.User, bool) {
	u, ok := UserFrom(r.Context())
	if !ok {
		response.FromError(w, r, log, apperrors.Unauthorized("authentication required"))
		return nil, false
	}
	return u, true
}
