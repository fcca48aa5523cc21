package ingest

import (
	"encoding/json"
)

// WebhookEnvelope is the outer shape the provider posts: either JSON mode
// directly, or form mode where the JSON is stringified under jsonData
// (spec.md §4.7). Field names accept both camelCase and PascalCase since
// the provider is inconsistent across event types.
type WebhookEnvelope struct {
	Type         string          `json:"type"`
	Event        string          `json:"event"`
	InstanceName string          `json:"instanceName"`
	Payload      json.RawMessage `json:"payload"`
}

// FormWrapper is the form-mode outer body.
type FormWrapper struct {
	JSONData string `json:"jsonData" form:"jsonData"`
}

// WebhookMessage is the normalized inner payload for type=="Message".
// Both camelCase and PascalCase keys are tried at parse time (see
// parse.go) since the provider emits either depending on event subtype.
type WebhookMessage struct {
	MessageID  string
	JID        string
	IsGroup    bool
	IsFromMe   bool
	Timestamp  int64
	Text       string
	HasMedia   bool
	MediaType  string
	S3URL      string
	Base64     string
	MimeType   string
	JPEGThumb  string
}

// rawMessage is the wire shape with every casing variant the provider is
// known to emit; parse.go folds it into WebhookMessage.
type rawMessage struct {
	MessageID    string `json:"messageId"`
	MessageIDAlt string `json:"MessageID"`

	JID    string `json:"jid"`
	JIDAlt string `json:"Jid"`

	IsGroup    bool `json:"isGroup"`
	IsGroupAlt bool `json:"IsGroup"`
	IsFromMe   bool `json:"isFromMe"`
	FromMeAlt  bool `json:"IsFromMe"`

	Timestamp    int64 `json:"timestamp"`
	TimestampAlt int64 `json:"Timestamp"`

	Conversation string `json:"conversation"`
	TextBody     string `json:"text"`

	S3 struct {
		URL string `json:"url"`
	} `json:"s3"`

	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`

	ImageMessage struct {
		Base64        string `json:"base64"`
		MimeType      string `json:"mimetype"`
		JPEGThumbnail string `json:"JPEGThumbnail"`
	} `json:"imageMessage"`
	DocumentMessage struct {
		Base64   string `json:"base64"`
		MimeType string `json:"mimetype"`
	} `json:"documentMessage"`
}
