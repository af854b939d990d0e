package channel

import (
	"context"

	"larkclaw/pkg/bus"
)

// Handler processes one inbound channel message and returns an outbound reply.
// An empty reply content means nothing is sent back to the chat.
type Handler func(context.Context, bus.InboundMessage) (bus.OutboundMessage, error)

// Adapter bridges one external transport (for example Lark) into LarkClaw.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
