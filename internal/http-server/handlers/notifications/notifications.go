// Package notifications обработчики уведомлений текущего пользователя.
package notifications

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/mware"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/response"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
)

// Service уведомления пользователя.
type Service interface {
	List(ctx context.Context, userID string) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

// NewList GET /notifications.
func NewList(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.notifications.List")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		items, err := svc.List(r.Context(), u.ID)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(items))
	}
}

// NewUnreadCount GET /notifications/unread-count.
func NewUnreadCount(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.notifications.UnreadCount")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		n, err := svc.UnreadCount(r.Context(), u.ID)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(map[string]int{"count": n}))
	}
}

// NewMarkRead POST /notifications/{id}/read.
func NewMarkRead(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.notifications.MarkRead")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		if err := svc.MarkRead(r.Context(), u.ID, chi.URLParam(r, "id")); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OK())
	}
}

// NewMarkAllRead POST /notifications/read-all.
func NewMarkAllRead(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.notifications.MarkAllRead")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		n, err := svc.MarkAllRead(r.Context(), u.ID)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(map[string]int{"updated": n}))
	}
}
