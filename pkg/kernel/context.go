package kernel

// ============================================================================
// Context Keys
// ============================================================================

type ContextKey string

const (
	// VillageContextKey stores the resolved VillageID on a request/consumer
	// context, for log correlation and for handlers that don't otherwise
	// thread it through.
	VillageContextKey ContextKey = "village_id"

	// RequestIDKey stores the inbound request id for log correlation.
	RequestIDKey ContextKey = "request_id"
)
