package ingest

import "encoding/json"

// ParseEnvelope accepts either a direct JSON body or a form-mode body
// whose jsonData field holds the stringified JSON, per spec.md §4.7.
func ParseEnvelope(body []byte, isForm bool) (*WebhookEnvelope, error) {
	if isForm {
		var wrapper FormWrapper
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, ErrInvalidBody(err)
		}
		body = []byte(wrapper.JSONData)
	}

	var env WebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ErrInvalidBody(err)
	}
	return &env, nil
}

// ParseMessage folds the payload's camelCase/PascalCase variants into one
// WebhookMessage.
func ParseMessage(payload json.RawMessage) (*WebhookMessage, error) {
	var raw rawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, ErrInvalidBody(err)
	}

	msg := &WebhookMessage{
		MessageID: firstNonEmpty(raw.MessageID, raw.MessageIDAlt),
		JID:       firstNonEmpty(raw.JID, raw.JIDAlt),
		IsGroup:   raw.IsGroup || raw.IsGroupAlt,
		IsFromMe:  raw.IsFromMe || raw.FromMeAlt,
		Timestamp: firstNonZero(raw.Timestamp, raw.TimestampAlt),
		Text:      firstNonEmpty(raw.Conversation, raw.TextBody),
	}

	switch {
	case raw.S3.URL != "":
		msg.HasMedia = true
		msg.MediaType = "document"
		msg.S3URL = raw.S3.URL
	case raw.ImageMessage.Base64 != "":
		msg.HasMedia = true
		msg.MediaType = "image"
		msg.Base64 = raw.ImageMessage.Base64
		msg.MimeType = raw.ImageMessage.MimeType
	case raw.ImageMessage.JPEGThumbnail != "":
		msg.HasMedia = true
		msg.MediaType = "image"
		msg.JPEGThumb = raw.ImageMessage.JPEGThumbnail
	case raw.DocumentMessage.Base64 != "":
		msg.HasMedia = true
		msg.MediaType = "document"
		msg.Base64 = raw.DocumentMessage.Base64
		msg.MimeType = raw.DocumentMessage.MimeType
	case raw.Base64 != "":
		msg.HasMedia = true
		msg.MediaType = "document"
		msg.Base64 = raw.Base64
		msg.MimeType = raw.MimeType
	}

	return msg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
