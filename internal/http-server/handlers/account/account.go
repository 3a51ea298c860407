// Package account содержит обработчики кабинета хоста: профиль, статус подписки,
// договор, запрос на расторжение и выгрузку данных.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/mware"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/response"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/export"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/lifecycle"
)

// Service операции хоста над профилем, подпиской и договором.
type Service interface {
	HostProfile(ctx context.Context, userID string) (*models.HostProfile, error)
	UpdateHostProfile(ctx context.Context, userID string, upd lifecycle.ProfileUpdate) (*models.HostProfile, error)
	SubscriptionStatus(ctx context.Context, userID string) (*models.SubscriptionView, error)
	ActiveTemplate(ctx context.Context) (*models.ContractTemplate, error)
	Contract(ctx context.Context, userID string) (*models.ContractView, error)
	SignContract(ctx context.Context, userID string, agreed bool) (*models.ServiceContract, error)
	RequestCancellation(ctx context.Context, userID, reason string) (*models.ServiceContract, error)
}

// Exporter выгрузка данных хоста.
type Exporter interface {
	Export(ctx context.Context, userID string) (*export.Data, error)
}

// NewProfile GET /profile.
func NewProfile(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.account.Profile")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		p, err := svc.HostProfile(r.Context(), u.ID)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(p))
	}
}

// ProfileRequest изменяемые поля профиля; отсутствующее поле не меняется.
type ProfileRequest struct {
	CompanyName *string `json:"company_name" validate:"omitempty,max=255"`
	Phone       *string `json:"phone" validate:"omitempty,max=30"`
}

// NewUpdateProfile PATCH /profile.
func NewUpdateProfile(log *slog.Logger, svc Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.account.UpdateProfile")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		var req ProfileRequest
		if err := response.Decode(r, &req, validate); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		p, err := svc.UpdateHostProfile(r.Context(), u.ID, lifecycle.ProfileUpdate{
			CompanyName: req.CompanyName,
			Phone:       req.Phone,
		})
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		log.Info("host profile updated", slog.String("host_id", p.ID))
		render.JSON(w, r, response.OKWithData(p))
	}
}

// NewSubscriptionStatus GET /subscription-status.
func NewSubscriptionStatus(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.account.SubscriptionStatus")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		view, err := svc.SubscriptionStatus(r.Context(), u.ID)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(view))
	}
}

// NewContractTemplate GET /contract-template.
func NewContractTemplate(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.account.ContractTemplate")
		tpl, err := svc.ActiveTemplate(r.Context())
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(tpl))
	}
}

// NewContract GET /contract.
func NewContract(log *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.account.Contract")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		view, err := svc.Contract(r.Context(), u.ID)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(view))
	}
}

// SignRequest согласие с договором.
type SignRequest struct {
	Agreed bool `json:"agreed"`
}

// NewSignContract POST /contract/sign.
func NewSignContract(log *slog.Logger, svc Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.account.SignContract")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		var req SignRequest
		if err := response.Decode(r, &req, validate); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		c, err := svc.SignContract(r.Context(), u.ID, req.Agreed)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		log.Info("contract signed", slog.String("contract_id", c.ID))
		render.JSON(w, r, response.OKWithData(c))
	}
}

// CancelRequest запрос на расторжение.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// NewRequestCancellation POST /contract/cancel.
func NewRequestCancellation(log *slog.Logger, svc Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.account.RequestCancellation")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		var req CancelRequest
		if err := response.Decode(r, &req, validate); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		c, err := svc.RequestCancellation(r.Context(), u.ID, req.Reason)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		render.JSON(w, r, response.OKWithData(c))
	}
}

// NewExport GET /contract/export. Отдаётся файлом для скачивания.
func NewExport(log *slog.Logger, exp Exporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.account.Export")
		u, ok := mware.CurrentUser(w, r, log)
		if !ok {
			return
		}
		data, err := exp.Export(r.Context(), u.ID)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}
		filename := fmt.Sprintf("unitopms-export-%s.json", data.ExportedAt.Format("2006-01-02"))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		render.JSON(w, r, data)
	}
}
