package ingest

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("INGEST")

var (
	CodeInvalidBody = ErrRegistry.Register("INVALID_BODY", errx.TypeValidation, http.StatusBadRequest, "webhook body could not be parsed")
)

func ErrInvalidBody(cause error) error {
	return errx.Wrap(cause, "webhook body could not be parsed", errx.TypeValidation)
}
