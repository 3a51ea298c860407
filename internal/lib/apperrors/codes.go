package apperrors

import "net/http"

// Code машинный код ошибки.
type Code string

const (
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeDeliveryError    Code = "DELIVERY_ERROR"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// HTTPStatus код ответа, соответствующий коду ошибки.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeValidationFailed:
		return http.StatusBadRequest
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeDeliveryError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
