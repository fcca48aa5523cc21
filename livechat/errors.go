package livechat

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("LIVECHAT")

var (
	CodeConversationNotFound = ErrRegistry.Register("CONVERSATION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "conversation not found")
	CodeNoPendingToRetry     = ErrRegistry.Register("NO_PENDING_TO_RETRY", errx.TypeNotFound, http.StatusNotFound, "no pending message to retry")
	CodeSendFailed           = ErrRegistry.Register("SEND_FAILED", errx.TypeExternal, http.StatusBadGateway, "failed to deliver admin message")
)

func ErrConversationNotFound(id string) error {
	return ErrRegistry.New(CodeConversationNotFound).WithDetail("conversation", id)
}

func ErrNoPendingToRetry(id string) error {
	return ErrRegistry.New(CodeNoPendingToRetry).WithDetail("conversation", id)
}

func ErrSendFailed(cause error) error {
	return errx.Wrap(cause, "failed to deliver admin message", errx.TypeExternal)
}
