package emit

// Event names emitted by the chat pipeline.
const (
	MsgChatStart      = "chat_start"
	MsgChatRejected   = "chat_rejected"
	MsgProviderResult = "provider_result"
	MsgChatComplete   = "chat_complete"
	MsgChatError      = "chat_error"
	MsgLogin          = "login"
	MsgLoginFailed    = "login_failed"
)

// Event is one observability record.
type Event struct {
	// RequestID identifies the inbound request that produced the event.
	RequestID string

	// ConversationID is the client-supplied conversation identifier.
	// Empty for events outside a conversation, such as logins.
	ConversationID string

	// Msg names the event, e.g. MsgChatStart.
	Msg string

	// Meta holds event-specific data. Common keys:
	//   - "duration_ms": elapsed time in milliseconds
	//   - "error": error text
	//   - "provider", "model": the backend that answered
	//   - "outcome": success, degraded or failed
	//   - "tokens_in", "tokens_out", "cost_usd": usage accounting
	Meta map[string]interface{}
}
