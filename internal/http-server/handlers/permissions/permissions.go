// Package permissions обработчики управления правами сотрудников на заявки.
package permissions

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
	"github.com/magabrotheeeer/host-lifecycle/internal/services/permission"
)

// Service управление правами.
type Service interface {
	Grant(ctx context.Context, actor *models.User, userID string, level models.PermissionLevel) (*models.ApplicationPermission, bool, error)
	Revoke(ctx context.Context, actor *models.User, id string) error
	ListGrants(ctx context.Context, actor *models.User) ([]models.ApplicationPermission, error)
	ListStaff(ctx context.Context, actor *models.User) ([]permission.StaffMember, error)
}

// NewList GET /permissions.
func NewList(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.permissions.List")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		grants, err := svc.ListGrants(r.Context(), u)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(grants))
	}
}

// GrantRequest выдача права.
type GrantRequest struct {
	UserID     string `json:"user_id" validate:"required"`
	Permission string `json:"permission" validate:"required,oneof=view review manage"`
}

// NewGrant POST /permissions. Новое право отдаётся с 201, существующее с 200.
func NewGrant(log *slog.Logger, svc Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.permissions.Grant")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		var req GrantRequest
		if err := response.Decode(r, &req, validate); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		p, created, err := svc.Grant(r.Context(), u, req.UserID, models.PermissionLevel(req.Permission))
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		if created {
			render.Status(r, http.StatusCreated)
		}
		render.JSON(w, r, response.OKWithData(p))
	}
}

// NewRevoke DELETE /permissions/{id}.
func NewRevoke(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.permissions.Revoke")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		if err := svc.Revoke(r.Context(), u, chi.URLParam(r, "id")); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OK())
	}
}

// NewStaff GET /staff.
func NewStaff(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.permissions.Staff")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		staff, err := svc.ListStaff(r.Context(), u)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(staff))
	}
}
