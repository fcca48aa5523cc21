package api

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("API")

var (
	CodeUnauthorized   = ErrRegistry.Register("UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "missing or invalid internal API key")
	CodeBadRequest     = ErrRegistry.Register("BAD_REQUEST", errx.TypeValidation, http.StatusBadRequest, "invalid request")
	CodeFileTooLarge   = ErrRegistry.Register("FILE_TOO_LARGE", errx.TypeValidation, http.StatusBadRequest, "file exceeds the 5MB upload limit")
	CodeUnsupportedExt = ErrRegistry.Register("UNSUPPORTED_FILE_TYPE", errx.TypeValidation, http.StatusBadRequest, "unsupported file type")
)

func ErrUnauthorized() *errx.Error { return ErrRegistry.New(CodeUnauthorized) }

func ErrBadRequest(detail string) *errx.Error {
	return ErrRegistry.New(CodeBadRequest).WithDetail("reason", detail)
}

func ErrFileTooLarge() *errx.Error  { return ErrRegistry.New(CodeFileTooLarge) }
func ErrUnsupportedExt() *errx.Error { return ErrRegistry.New(CodeUnsupportedExt) }
