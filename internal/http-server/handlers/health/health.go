// Package health проверка готовности сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/response"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
)

// Checker проверка одной зависимости.
type Checker func(ctx context.Context) error

// New GET /health. Отвечает 503, если хотя бы одна зависимость недоступна.
func New(log *slog.Logger, checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.health"
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				log.Warn("dependency unhealthy", sl.Op(op), slog.String("dependency", name), sl.Err(err))
				status[name] = "down"
				healthy = false
				continue
			}
			status[name] = "up"
		}
		if !healthy {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Response{Status: response.StatusError, Error: "service degraded", Data: status})
			return
		}
		render.JSON(w, r, response.OKWithData(status))
	}
}
