// Package login обработчик входа по email и паролю.
package login

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/mware"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/response"
	"github.com/magabrotheeeer/host-lifecycle/internal/services/auth"
)

// Request тело запроса входа.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Service вход пользователя.
type Service interface {
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
}

// New POST /login.
func New(log *slog.Logger, svc Service) http.HandlerFunc {
	validate := validator.New()
	return func(w http.ResponseWriter, r *http.Request) {
		log := mware.RequestLogger(log, r, "handlers.login.New")

		var req Request
		if err := response.Decode(r, &req, validate); err != nil {
			response.FromError(w, r, log, err)
			return
		}
		log.Info("all fields are validated")

		res, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			response.FromError(w, r, log, err)
			return
		}

		render.JSON(w, r, response.OKWithData(res))
	}
}
