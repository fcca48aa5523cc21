package forwarder

// SpamGuardInfo mirrors spec.md §4.8's spam_guard sub-object.
type SpamGuardInfo struct {
	IsDuplicate          bool     `json:"isDuplicate"`
	SupersedePrevious    bool     `json:"supersedePrevious"`
	SuppressedMessageIDs []string `json:"suppressedMessageIds,omitempty"`
	ContextMessages      []string `json:"contextMessages"`
}

// OutboundEvent is the publish-path payload sent on
// whatsapp.message.received, bit-exact per spec.md §4.8.
type OutboundEvent struct {
	VillageID         string        `json:"village_id"`
	WAUserID          string        `json:"wa_user_id"`
	Message           string        `json:"message"`
	MessageID         string        `json:"message_id"`
	ReceivedAt        int64         `json:"received_at"`
	BatchedMessageIDs []string      `json:"batched_message_ids"`
	HasMedia          bool          `json:"has_media"`
	MediaType         string        `json:"media_type,omitempty"`
	MediaURL          string        `json:"media_url,omitempty"`
	MediaPublicURL    string        `json:"media_public_url,omitempty"`
	SpamGuard         SpamGuardInfo `json:"spam_guard"`
	IsRetry           bool          `json:"is_retry,omitempty"`
}

// AIReplyEvent is the `ai.reply` consumer payload.
type AIReplyEvent struct {
	VillageID         string   `json:"village_id"`
	WAUserID          string   `json:"wa_user_id"`
	MessageID         string   `json:"message_id"`
	BatchedMessageIDs []string `json:"batched_message_ids"`
	ReplyText         string   `json:"reply_text"`
	GuidanceText      string   `json:"guidance_text,omitempty"`
}

// AIErrorEvent is the `ai.error` consumer payload.
type AIErrorEvent struct {
	VillageID         string   `json:"village_id"`
	WAUserID          string   `json:"wa_user_id"`
	MessageID         string   `json:"message_id"`
	BatchedMessageIDs []string `json:"batched_message_ids"`
	ErrorMessage      string   `json:"error_message"`
}

// MessageStatusEvent is the `message.status` consumer payload.
type MessageStatusEvent struct {
	VillageID string   `json:"village_id"`
	MessageID string   `json:"message_id"`
	Status    string   `json:"status"`
	ErrorText string   `json:"error_text,omitempty"`
}
