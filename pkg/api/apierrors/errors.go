package apierrors

import (
	"errors"
	"net/http"

	"github.com/bryanEnzee/skillance-relay/pkg/relay"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, relay.ErrEmptyBatch), errors.Is(err, relay.ErrBatchTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, relay.ErrRelayBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
