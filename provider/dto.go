package provider

// SessionStatus is the gateway plane's session-status response.
type SessionStatus struct {
	JID       string `json:"jid"`
	Connected bool   `json:"connected"`
}

// ProvisionUserResult is the support plane's `POST users` response.
// APIKey is empty when the user already existed (caller must rotate).
type ProvisionUserResult struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key,omitempty"`
}

// CreateSessionParams mirrors spec.md §4.6's create() call shape.
type CreateSessionParams struct {
	InstanceName      string `json:"instance_name"`
	WebhookURL        string `json:"webhook_url"`
	AutoReadEnabled   bool   `json:"auto_read_enabled"`
	TypingEnabled     bool   `json:"typing_enabled"`
	Events            string `json:"events"`
}

// CreateSessionResult is the support plane's session-creation response.
type CreateSessionResult struct {
	Token            string `json:"token"`
	SupportSessionID string `json:"support_session_id"`
}

// QRResult carries the pairing QR code.
type QRResult struct {
	QRCode string `json:"qr_code"`
}
