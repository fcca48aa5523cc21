package bus

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("BUS")

var (
	CodeNotConnected = ErrRegistry.Register("NOT_CONNECTED", errx.TypeExternal, http.StatusServiceUnavailable, "event bus connection is not established")
	CodePublishFailed = ErrRegistry.Register("PUBLISH_FAILED", errx.TypeExternal, http.StatusBadGateway, "failed to publish event")
)

func ErrNotConnected() error {
	return ErrRegistry.New(CodeNotConnected)
}

func ErrPublishFailed(cause error) error {
	return errx.Wrap(cause, "failed to publish event", errx.TypeExternal)
}
