package bus

// Chat kinds carried on inbound messages.
const (
	ChatKindDirect = "direct"
	ChatKindGroup  = "group"
)

// InboundMessage is the channel-agnostic record of one inbound chat event,
// constructed per event and discarded after dispatch completes.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	AccountID  string            `json:"account_id"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	ChatKind   string            `json:"chat_kind"`
	Content    string            `json:"content"`
	MessageID  string            `json:"message_id,omitempty"`
	MentionBot bool              `json:"mention_bot,omitempty"`
	SessionKey string            `json:"session_key"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is the reply produced for one inbound message.
type OutboundMessage struct {
	Channel    string            `json:"channel"`
	AccountID  string            `json:"account_id,omitempty"`
	ChatID     string            `json:"chat_id"`
	SessionKey string            `json:"session_key,omitempty"`
	Content    string            `json:"content"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
