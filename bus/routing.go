package bus

// Routing keys, bit-exact per spec.md §6's event bus table.
const (
	RoutingWhatsAppMessageReceived = "whatsapp.message.received"
	RoutingAIReply                 = "ai.reply"
	RoutingAIError                 = "ai.error"
	RoutingMessageStatus           = "message.status"
)

// Queue names are stable per consumer so redeploys rebind to the same
// durable queue instead of orphaning undelivered messages.
const (
	QueueAIReply     = "channel.ai.reply"
	QueueAIError     = "channel.ai.error"
	QueueMessageStat = "channel.message.status"
)
