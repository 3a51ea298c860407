// Package response формирует единые JSON-ответы HTTP-обработчиков
// и переводит ошибки приложения в HTTP-статусы.
package response

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/apperrors"
	"github.com/magabrotheeeer/host-lifecycle/internal/lib/sl"
)

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

// Response стандартный ответ сервера.
type Response struct {
	Status  string         `json:"status"`
	Data    any            `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    apperrors.Code `json:"code,omitempty"`
	Domain  string         `json:"domain,omitempty"`
	Details any            `json:"details,omitempty"`
}

func OK() Response {
	return Response{Status: StatusOK}
}

func OKWithData(data any) Response {
	return Response{Status: StatusOK, Data: data}
}

func Error(msg string) Response {
	return Response{Status: StatusError, Error: msg}
}

// FieldError нарушение правила валидации поля.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string
	fields := make([]FieldError, 0, len(errs))

	for _, err := range errs {
		fields = append(fields, FieldError{Field: err.Field(), Rule: err.ActualTag()})
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is too short", err.Field()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is too long", err.Field()))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be one of: %s", err.Field(), err.Param()))
		case "gte", "gt":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is out of range", err.Field()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Response{
		Status:  StatusError,
		Error:   strings.Join(errsMsgs, ", "),
		Code:    apperrors.CodeValidationFailed,
		Domain:  "request",
		Details: fields,
	}
}

// Decode читает JSON-тело в v и проверяет теги validate. Пустое тело считается пустым объектом.
// Ошибка всегда *apperrors.AppError с кодом VALIDATION_FAILED.
func Decode(r *http.Request, v any, validate *validator.Validate) error {
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.Wrap(err, apperrors.CodeValidationFailed, "request", "failed to decode request")
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			resp := ValidationError(verrs)
			return apperrors.Validation("request", resp.Error).WithDetails(resp.Details)
		}
		return apperrors.Wrap(err, apperrors.CodeValidationFailed, "request", "invalid request")
	}
	return nil
}

// FromError пишет ответ с ошибкой. Ошибки приложения отдаются со своим кодом и деталями,
// остальные журналируются и скрываются за 500.
func FromError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Code == apperrors.CodeInternal || appErr.Code == apperrors.CodeDeliveryError {
		log.Error("request failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, Response{Status: StatusError, Error: "internal error", Code: apperrors.CodeInternal})
		return
	}
	log.Warn("request rejected", slog.String("code", string(appErr.Code)), sl.Err(err))
	render.Status(r, appErr.Code.HTTPStatus())
	render.JSON(w, r, Response{
		Status:  StatusError,
		Error:   appErr.Message,
		Code:    appErr.Code,
		Domain:  appErr.Domain,
		Details: appErr.Details,
	})
}
