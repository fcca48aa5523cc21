package sessionmgr

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("SESSIONMGR")

var (
	CodeDuplicateNumber   = ErrRegistry.Register("DUPLICATE_NUMBER", errx.TypeConflict, http.StatusConflict, "wa_number is already connected on another village")
	CodeSessionNotFound   = ErrRegistry.Register("SESSION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "no session for this village")
	CodeProvisionFailed   = ErrRegistry.Register("PROVISION_FAILED", errx.TypeExternal, http.StatusBadGateway, "failed to provision support user")
	CodeTokenGeneration   = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "failed to sign service token")
	CodeTokenValidation   = ErrRegistry.Register("TOKEN_VALIDATION_FAILED", errx.TypeUnauthorized, http.StatusUnauthorized, "service token is invalid or expired")
)

func ErrDuplicateNumber(villageID, waNumber string) error {
	return ErrRegistry.New(CodeDuplicateNumber).WithDetail("village_id", villageID).WithDetail("wa_number", waNumber)
}

func ErrSessionNotFound(villageID string) error {
	return ErrRegistry.New(CodeSessionNotFound).WithDetail("village_id", villageID)
}

func ErrProvisionFailed(cause error) error {
	return errx.Wrap(cause, "failed to provision support user", errx.TypeExternal)
}
