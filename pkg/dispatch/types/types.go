package types

import (
	"strings"
	"sync"
)

// Fragment kinds delivered by a dispatcher. Only final fragments contribute
// to the assembled reply; partial/streaming updates are discarded because
// streaming delivery is disabled for chat channels.
const (
	FragmentPartial = "partial"
	FragmentFinal   = "final"
)

// Fragment is one tagged reply-generation output.
type Fragment struct {
	Kind string
	Text string
}

// Partial wraps text as an intermediate streaming update.
func Partial(text string) Fragment {
	return Fragment{Kind: FragmentPartial, Text: text}
}

// Final wraps text as a complete reply fragment.
func Final(text string) Fragment {
	return Fragment{Kind: FragmentFinal, Text: text}
}

// Context is the channel-agnostic inbound record handed to a dispatcher. The
// message text is carried in several aliased fields for host compatibility.
type Context struct {
	Body    string
	Content string
	Text    string

	Channel    string
	AccountID  string
	SessionKey string
	SenderID   string
	ChatID     string
	ChatKind   string
	MessageID  string

	// CommandAuthorized marks channel-originated messages as always allowed
	// to run commands; the channel's own access policy already gated them.
	CommandAuthorized bool
}

// NewContext builds a dispatch context with all text aliases populated.
func NewContext(channel, accountID, sessionKey, senderID, chatID, chatKind, messageID, text string) Context {
	return Context{
		Body:              text,
		Content:           text,
		Text:              text,
		Channel:           channel,
		AccountID:         accountID,
		SessionKey:        sessionKey,
		SenderID:          senderID,
		ChatID:            chatID,
		ChatKind:          chatKind,
		MessageID:         messageID,
		CommandAuthorized: true,
	}
}

// Collector accumulates final reply fragments delivered by a dispatcher.
// It is safe for concurrent delivery.
type Collector struct {
	mu     sync.Mutex
	finals []string
}

func NewCollector() *Collector {
	return &Collector{}
}

// Deliver records a fragment. Fragments not tagged final are dropped.
func (c *Collector) Deliver(fragment Fragment) {
	if fragment.Kind != FragmentFinal {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.finals = append(c.finals, fragment.Text)
}

// Join concatenates all collected final fragments with a blank-line
// separator and trims the result. An empty result means no reply is sent.
func (c *Collector) Join() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.TrimSpace(strings.Join(c.finals, "\n\n"))
}

// Count returns the number of collected final fragments.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.finals)
}
