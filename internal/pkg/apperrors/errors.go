package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrAlreadyExists               ErrorType = "ALREADY_EXISTS"
	ErrWalletNotFound              ErrorType = "WALLET_NOT_FOUND"
	ErrConnectorInit               ErrorType = "CONNECTOR_INIT"
	ErrBalanceFetchTimeout         ErrorType = "BALANCE_FETCH_TIMEOUT"
	ErrContainerCreate             ErrorType = "CONTAINER_CREATE"
	ErrContainerRuntimeUnavailable ErrorType = "CONTAINER_RUNTIME_UNAVAILABLE"
	ErrBrokerConnection            ErrorType = "BROKER_CONNECTION"
	ErrInvalidPerformanceReport    ErrorType = "INVALID_PERFORMANCE_REPORT"
	ErrInvalidRequest              ErrorType = "INVALID_REQUEST"
	ErrNotFound                    ErrorType = "NOT_FOUND"
	ErrUpstream                    ErrorType = "UPSTREAM_ERROR"
	ErrInternal                    ErrorType = "INTERNAL_ERROR"
	ErrReadOnly                    ErrorType = "READ_ONLY"
	ErrUnauthorized                ErrorType = "UNAUTHORIZED"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError of the same type, so errors.Is(err, apperrors.New(ErrNotFound, "", nil)) works.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return other.Type == e.Type
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func Newf(errType ErrorType, format string, args ...any) *AppError {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewNotFound(msg string) *AppError {
	return New(ErrNotFound, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// IsType reports whether err carries an AppError of the given type anywhere in its chain.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Type == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest, ErrConnectorInit:
		return http.StatusBadRequest
	case ErrAlreadyExists:
		return http.StatusConflict
	case ErrReadOnly:
		return http.StatusForbidden
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrNotFound, ErrWalletNotFound:
		return http.StatusNotFound
	case ErrInvalidPerformanceReport:
		return http.StatusUnprocessableEntity
	case ErrUpstream, ErrBrokerConnection:
		return http.StatusBadGateway
	case ErrContainerRuntimeUnavailable:
		return http.StatusServiceUnavailable
	case ErrBalanceFetchTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrAlreadyExists:
		return "Pick a different name or delete the existing resource first."
	case ErrWalletNotFound:
		return "Generate a wallet for the account before using it."
	case ErrConnectorInit:
		return "Check the connector name and its API keys."
	case ErrContainerRuntimeUnavailable:
		return "Make sure the Docker daemon is running and reachable."
	case ErrBrokerConnection:
		return "Check the message broker and that the worker is online."
	case ErrReadOnly:
		return "The API is in read-only mode; only bot stops are accepted."
	case ErrUnauthorized:
		return "Send the operator key in the X-Admin-Key header."
	default:
		return ""
	}
}
