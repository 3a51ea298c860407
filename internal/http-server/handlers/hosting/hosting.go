// Package hosting содержит публичные обработчики: подачу заявки хоста
// и установку пароля по ссылке из письма.
package hosting

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/mware"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/response"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/lifecycle"
)

// Service часть сервиса жизненного цикла для публичных обработчиков.
type Service interface {
	ApplyForHosting(ctx context.Context, app lifecycle.Application) (*models.HostProfile, error)
	SetPassword(ctx context.Context, userID, token, newPassword, confirm string) error
}

// ApplyRequest заявка хоста.
type ApplyRequest struct {
	Email         string `json:"email" validate:"required,email"`
	FullName      string `json:"full_name" validate:"required,max=150"`
	CompanyName   string `json:"company_name" validate:"required,max=255"`
	Country       string `json:"country" validate:"max=100"`
	Phone         string `json:"phone" validate:"max=32"`
	PropertyType  string `json:"property_type" validate:"max=50"`
	NumProperties int    `json:"num_properties" validate:"gte=0"`
	NumUnits      int    `json:"num_units" validate:"gte=0"`
}

// NewApply POST /host-applications.
func NewApply(log *slog.Logger, svc Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.hosting.Apply")

		var req ApplyRequest
		if err := response.Decode(r, &req, validate); err != nil {
			response.FromError(w, r, log, err)
			return
		}

		profile, err := svc.ApplyForHosting(r.Context(), lifecycle.Application{
			Email:         req.Email,
			FullName:      req.FullName,
			CompanyName:   req.CompanyName,
			Country:       req.Country,
			Phone:         req.Phone,
			PropertyType:  req.PropertyType,
			NumProperties: req.NumProperties,
			NumUnits:      req.NumUnits,
		})
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}

		log.Info("host application submitted", slog.String("host_id", profile.ID))
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.OKWithData(map[string]any{
			"id":     profile.ID,
			"status": profile.Status,
		}))
	}
}

// SetPasswordRequest установка пароля по одноразовой ссылке.
type SetPasswordRequest struct {
	UserID          string `json:"uid" validate:"required"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// NewSetPassword POST /set-password.
func NewSetPassword(log *slog.Logger, svc Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.hosting.SetPassword")

		var req SetPasswordRequest
		if err := response.Decode(r, &req, validate); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		if err := svc.SetPassword(r.Context(), req.UserID, req.Token, req.Password, req.ConfirmPassword); err != nil {
			response.FromError(w, r, log, err)
			return
		}

		log.Info("password set", slog.String("user_id", req.UserID))
		render.JSON(w, r, response.OKWithData(map[string]any{
			"message": "Password set successfully. You can now log in.",
		}))
	}
}
