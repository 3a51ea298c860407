// Package apperrors описывает ошибки предметной области: код, домен, сообщение и детали
// для диагностики (например, текущий и ожидаемый статус при конфликте).
package apperrors

import (
	"errors"
	"fmt"
)

// AppError ошибка приложения.
type AppError struct {
	Code    Code   `json:"code"`
	Domain  string `json:"domain"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s (%v)", e.Domain, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Domain, e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по коду, чтобы errors.Is(err, apperrors.ErrConflict) работал
// для любой ошибки с кодом CONFLICT.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Domain == "" && t.Message == "" && t.Code == e.Code
}

// Маркеры для errors.Is.
var (
	ErrNotFound         = &AppError{Code: CodeNotFound}
	ErrConflict         = &AppError{Code: CodeConflict}
	ErrValidationFailed = &AppError{Code: CodeValidationFailed}
	ErrPermissionDenied = &AppError{Code: CodePermissionDenied}
	ErrUnauthorized     = &AppError{Code: CodeUnauthorized}
	ErrDelivery         = &AppError{Code: CodeDeliveryError}
)

// StateDetails детали конфликта статусов.
type StateDetails struct {
	Current  string   `json:"current"`
	Expected []string `json:"expected,omitempty"`
}

// New создаёт ошибку без причины.
func New(code Code, domain, message string) *AppError {
	return &AppError{Code: code, Domain: domain, Message: message}
}

// Wrap оборачивает причину.
func Wrap(err error, code Code, domain, message string) *AppError {
	return &AppError{Code: code, Domain: domain, Message: message, Err: err}
}

// WithDetails добавляет детали.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// NotFound сущность отсутствует.
func NotFound(domain, message string) *AppError {
	return New(CodeNotFound, domain, message)
}

// Conflict нарушено предусловие по статусу.
func Conflict(domain, message, current string, expected ...string) *AppError {
	return New(CodeConflict, domain, message).WithDetails(StateDetails{Current: current, Expected: expected})
}

// Validation некорректный ввод.
func Validation(domain, message string) *AppError {
	return New(CodeValidationFailed, domain, message)
}

// PermissionDenied проверка прав не пройдена.
func PermissionDenied(message string) *AppError {
	return New(CodePermissionDenied, "auth", message)
}

// Unauthorized пользователь не аутентифицирован.
func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, "auth", message)
}

// Delivery ошибка доставки письма; не прерывает переход состояния.
func Delivery(err error, message string) *AppError {
	return Wrap(err, CodeDeliveryError, "mail", message)
}

// As извлекает *AppError из цепочки.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf код ошибки из цепочки или CodeInternal.
func CodeOf(err error) Code {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}
