package circuithttp

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("CIRCUIT")

var (
	CodeCircuitOpen  = ErrRegistry.Register("CIRCUIT_OPEN", errx.TypeExternal, http.StatusServiceUnavailable, "circuit breaker is open")
	CodeNetworkError = ErrRegistry.Register("NETWORK_ERROR", errx.TypeExternal, http.StatusBadGateway, "network error calling downstream")
	CodeTimeout      = ErrRegistry.Register("TIMEOUT", errx.TypeTimeout, http.StatusGatewayTimeout, "downstream call timed out")
)

func ErrCircuitOpen(name string) *errx.Error {
	return ErrRegistry.New(CodeCircuitOpen).WithDetail("breaker", name)
}

func ErrNetworkError(name string, cause error) *errx.Error {
	return errx.Wrap(cause, "network error", errx.TypeExternal).WithDetail("breaker", name)
}

func ErrTimeout(name string, cause error) *errx.Error {
	return errx.Wrap(cause, "request timed out", errx.TypeTimeout).WithDetail("breaker", name)
}
