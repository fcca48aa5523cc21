package forwarder

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("FORWARDER")

var (
	CodeSendFailed = ErrRegistry.Register("SEND_FAILED", errx.TypeExternal, http.StatusBadGateway, "failed to deliver reply to provider")
)

func ErrSendFailed(cause error) error {
	return errx.Wrap(cause, "failed to deliver reply to provider", errx.TypeExternal)
}
