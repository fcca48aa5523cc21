package provider

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("PROVIDER")

// ErrorType is the tagged-result error kind spec.md §4.2 mandates for
// every ProviderClient method.
type ErrorType string

const (
	TypeNetworkError  ErrorType = "NETWORK_ERROR"
	TypeTimeout       ErrorType = "TIMEOUT"
	TypeAuthError     ErrorType = "AUTH_ERROR"
	TypeValidation    ErrorType = "VALIDATION_ERROR"
	TypeServerError   ErrorType = "SERVER_ERROR"
	TypeConfigError   ErrorType = "CONFIG_ERROR"
)

var (
	CodeNetworkError = ErrRegistry.Register("NETWORK_ERROR", errx.TypeExternal, http.StatusBadGateway, "network error calling provider")
	CodeTimeout      = ErrRegistry.Register("TIMEOUT", errx.TypeTimeout, http.StatusGatewayTimeout, "provider call timed out")
	CodeAuthError    = ErrRegistry.Register("AUTH_ERROR", errx.TypeUnauthorized, http.StatusUnauthorized, "provider rejected credentials")
	CodeValidation   = ErrRegistry.Register("VALIDATION_ERROR", errx.TypeValidation, http.StatusBadRequest, "provider rejected the request body")
	CodeServerError  = ErrRegistry.Register("SERVER_ERROR", errx.TypeExternal, http.StatusBadGateway, "provider returned a server error")
	CodeConfigError  = ErrRegistry.Register("CONFIG_ERROR", errx.TypeInternal, http.StatusBadRequest, "no usable token for this village")
)

// ProviderError is the `{ ok:false, error:{type, message, statusCode?} }`
// variant spec.md §4.2 mandates; Result[T] below carries either this or data.
type ProviderError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"statusCode,omitempty"`
}

func (e *ProviderError) Error() string { return string(e.Type) + ": " + e.Message }

// ToErrx maps the tagged error type onto the registered errx code, so
// callers at the API boundary get the right HTTP status instead of a
// generic 500.
func (e *ProviderError) ToErrx() *errx.Error {
	switch e.Type {
	case TypeTimeout:
		return ErrRegistry.New(CodeTimeout).WithDetail("message", e.Message)
	case TypeAuthError:
		return ErrRegistry.New(CodeAuthError).WithDetail("message", e.Message)
	case TypeValidation:
		return ErrRegistry.New(CodeValidation).WithDetail("message", e.Message)
	case TypeServerError:
		return ErrRegistry.New(CodeServerError).WithDetail("message", e.Message)
	case TypeConfigError:
		return ErrRegistry.New(CodeConfigError).WithDetail("message", e.Message)
	default:
		return ErrRegistry.New(CodeNetworkError).WithDetail("message", e.Message)
	}
}

func errorForStatus(statusCode int, message string) *ProviderError {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &ProviderError{Type: TypeAuthError, Message: message, StatusCode: statusCode}
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		return &ProviderError{Type: TypeValidation, Message: message, StatusCode: statusCode}
	case statusCode >= 500:
		return &ProviderError{Type: TypeServerError, Message: message, StatusCode: statusCode}
	default:
		return &ProviderError{Type: TypeServerError, Message: message, StatusCode: statusCode}
	}
}

func networkError(err error) *ProviderError {
	return &ProviderError{Type: TypeNetworkError, Message: err.Error()}
}

func timeoutError(err error) *ProviderError {
	return &ProviderError{Type: TypeTimeout, Message: err.Error()}
}

func configError(message string) *ProviderError {
	return &ProviderError{Type: TypeConfigError, Message: message}
}

// Result is the tagged `{ ok, data } | { ok:false, error }` return shape.
type Result[T any] struct {
	OK    bool
	Data  T
	Err   *ProviderError
}

func Ok[T any](data T) Result[T]           { return Result[T]{OK: true, Data: data} }
func Fail[T any](err *ProviderError) Result[T] { return Result[T]{OK: false, Err: err} }
