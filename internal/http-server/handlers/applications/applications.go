// Package applications обработчики сотрудников: просмотр и рассмотрение заявок хостов,
// журнал, заметки и изменение подписки.
package applications

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/mware"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/response"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/lifecycle"
)

const maxPageSize = 200

// Service операции сотрудника над заявками.
type Service interface {
	ListApplications(ctx context.Context, actor *models.User, f models.HostFilter) ([]models.HostProfile, error)
	GetApplication(ctx context.Context, actor *models.User, id string) (*lifecycle.ApplicationDetail, error)
	ApproveApplication(ctx context.Context, id string, actor *models.User) (*lifecycle.ApprovalResult, error)
	RejectApplication(ctx context.Context, id string, actor *models.User, reason string) (*models.HostProfile, error)
	ApplicationLogs(ctx context.Context, actor *models.User, id string) ([]models.ApplicationLog, error)
	AddNote(ctx context.Context, actor *models.User, id, note string) (*models.ApplicationLog, error)
	UpdateSubscription(ctx context.Context, hostID string, actor *models.User, upd lifecycle.SubscriptionUpdate) ([]string, error)
}

// Conversations переписка по заявке.
type Conversations interface {
	HostConversations(ctx context.Context, actor *models.User, hostID string) ([]models.Conversation, error)
}

func parseFilter(r *http.Request) (models.HostFilter, error) {
	q := r.URL.Query()
	f := models.HostFilter{
		Status:             models.HostStatus(q.Get("status")),
		SubscriptionStatus: models.SubscriptionStatus(q.Get("subscription_status")),
		Limit:              50,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return f, apperrors.Validation("request", "limit must be between 1 and 200")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, apperrors.Validation("request", "offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

// NewList GET /applications?status=&subscription_status=&limit=&offset=.
func NewList(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.applications.List")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		f, err := parseFilter(r)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		items, err := svc.ListApplications(r.Context(), u, f)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(items))
	}
}

// NewGet GET /applications/{id}.
func NewGet(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.applications.Get")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		detail, err := svc.GetApplication(r.Context(), u, chi.URLParam(r, "id"))
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(detail))
	}
}

// NewApprove POST /applications/{id}/approve. Повтор для одобренной заявки переотправляет письмо.
func NewApprove(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.applications.Approve")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		res, err := svc.ApproveApplication(r.Context(), chi.URLParam(r, "id"), u)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		msg := "Application approved. A password setup email has been sent."
		if res.Resent {
			msg = "Password setup email resent."
		}
		render.JSON(w, r, response.OKWithData(map[string]any{
			"message": msg,
			"profile": res.Profile,
			"resent":  res.Resent,
		}))
	}
}

// RejectRequest причина отклонения.
type RejectRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// NewReject POST /applications/{id}/reject.
func NewReject(log *slog.Logger, svc Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.applications.Reject")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		var req RejectRequest
		if err := response.Decode(r, &req, validate); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		profile, err := svc.RejectApplication(r.Context(), chi.URLParam(r, "id"), u, req.Reason)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(profile))
	}
}

// NewLogs GET /applications/{id}/logs.
func NewLogs(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.applications.Logs")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		logs, err := svc.ApplicationLogs(r.Context(), u, chi.URLParam(r, "id"))
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(logs))
	}
}

// NoteRequest заметка сотрудника.
type NoteRequest struct {
	Note string `json:"note" validate:"required,max=5000"`
}

// NewAddNote POST /applications/{id}/notes.
func NewAddNote(log *slog.Logger, svc Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.applications.AddNote")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		var req NoteRequest
		if err := response.Decode(r, &req, validate); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		entry, err := svc.AddNote(r.Context(), u, chi.URLParam(r, "id"), req.Note)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.OKWithData(entry))
	}
}

// SubscriptionRequest изменение подписки; отсутствующие поля не меняются.
type SubscriptionRequest struct {
	Plan        *string    `json:"subscription_plan" validate:"omitempty,oneof=free_trial starter professional enterprise"`
	Status      *string    `json:"subscription_status" validate:"omitempty,oneof=trialing active past_due cancelled paused"`
	TrialEndsAt *time.Time `json:"trial_ends_at"`
}

func (req SubscriptionRequest) update() lifecycle.SubscriptionUpdate {
	var upd lifecycle.SubscriptionUpdate
	if req.Plan != nil {
		p := models.SubscriptionPlan(*req.Plan)
		upd.Plan = &p
	}
	if req.Status != nil {
		s := models.SubscriptionStatus(*req.Status)
		upd.Status = &s
	}
	upd.TrialEndsAt = req.TrialEndsAt
	return upd
}

// NewUpdateSubscription POST /applications/{id}/subscription.
func NewUpdateSubscription(log *slog.Logger, svc Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.applications.UpdateSubscription")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		var req SubscriptionRequest
		if err := response.Decode(r, &req, validate); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		changes, err := svc.UpdateSubscription(r.Context(), chi.URLParam(r, "id"), u, req.update())
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(map[string]any{"changes": changes}))
	}
}

// NewConversations GET /applications/{id}/conversations.
func NewConversations(log *slog.Logger, svc Conversations) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.applications.Conversations")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		items, err := svc.HostConversations(r.Context(), u, chi.URLParam(r, "id"))
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(items))
	}
}
