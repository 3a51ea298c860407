// Package conversations обработчики переписки хоста с поддержкой.
package conversations

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/mware"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/response"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/messaging"
)

// Service переписка.
type Service interface {
	List(ctx context.Context, u *models.User, status models.ConversationStatus) ([]models.Conversation, error)
	Open(ctx context.Context, u *models.User, id string) (*messaging.Detail, error)
	Start(ctx context.Context, u *models.User, hostID, subject, body string) (*messaging.Detail, error)
	Send(ctx context.Context, u *models.User, id, body string) (*models.Message, error)
	Close(ctx context.Context, u *models.User, id string) error
}

// NewList GET /conversations?status=.
func NewList(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.conversations.List")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		items, err := svc.List(r.Context(), u, models.ConversationStatus(r.URL.Query().Get("status")))
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(items))
	}
}

// StartRequest новая переписка. HostID обязателен для сотрудника.
type StartRequest struct {
	HostID  string `json:"host_id"`
	Subject string `json:"subject" validate:"required,max=255"`
	Body    string `json:"body" validate:"required"`
}

// NewStart POST /conversations.
func NewStart(log *slog.Logger, svc Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.conversations.Start")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		var req StartRequest
		if err := response.Decode(r, &req, validate); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		detail, err := svc.Start(r.Context(), u, req.HostID, req.Subject, req.Body)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.OKWithData(detail))
	}
}

// NewGet GET /conversations/{id}. Открытие отмечает входящие сообщения прочитанными.
func NewGet(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.conversations.Get")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		detail, err := svc.Open(r.Context(), u, chi.URLParam(r, "id"))
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(detail))
	}
}

// MessageRequest новое сообщение.
type MessageRequest struct {
	Body string `json:"body" validate:"required"`
}

// NewSend POST /conversations/{id}/messages.
func NewSend(log *slog.Logger, svc Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.conversations.Send")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		var req MessageRequest
		if err := response.Decode(r, &req, validate); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		msg, err := svc.Send(r.Context(), u, chi.URLParam(r, "id"), req.Body)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.OKWithData(msg))
	}
}

// NewClose POST /conversations/{id}/close.
func NewClose(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.conversations.Close")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		if err := svc.Close(r.Context(), u, chi.URLParam(r, "id")); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OK())
	}
}
