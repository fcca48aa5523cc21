package store

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("STORE")

var (
	CodeSessionNotFound         = ErrRegistry.Register("SESSION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "session not found")
	CodeChannelAccountNotFound  = ErrRegistry.Register("CHANNEL_ACCOUNT_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "channel account not found")
	CodeConversationNotFound    = ErrRegistry.Register("CONVERSATION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "conversation not found")
	CodeDuplicateMessage        = ErrRegistry.Register("DUPLICATE_MESSAGE", errx.TypeConflict, http.StatusConflict, "message already stored")
	CodePendingMessageNotFound  = ErrRegistry.Register("PENDING_MESSAGE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "pending message not found")
	CodeTakeoverNotFound        = ErrRegistry.Register("TAKEOVER_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "active takeover not found")
)

func ErrSessionNotFound() *errx.Error        { return ErrRegistry.New(CodeSessionNotFound) }
func ErrChannelAccountNotFound() *errx.Error { return ErrRegistry.New(CodeChannelAccountNotFound) }
func ErrConversationNotFound() *errx.Error   { return ErrRegistry.New(CodeConversationNotFound) }
func ErrDuplicateMessage() *errx.Error       { return ErrRegistry.New(CodeDuplicateMessage) }
func ErrPendingMessageNotFound() *errx.Error { return ErrRegistry.New(CodePendingMessageNotFound) }
func ErrTakeoverNotFound() *errx.Error       { return ErrRegistry.New(CodeTakeoverNotFound) }
