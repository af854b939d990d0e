package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"larkclaw/pkg/config"
	dispatchopenai "larkclaw/pkg/dispatch/openai"
	dispatchtypes "larkclaw/pkg/dispatch/types"
)

// Dispatcher is the reply-generation boundary this module depends on but does
// not implement. Implementations deliver zero or more tagged fragments to the
// collector; only final fragments end up in the reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, dctx dispatchtypes.Context, collector *dispatchtypes.Collector) error
}

// IdleWaiter is optionally implemented by dispatchers that schedule
// asynchronous tail work. The bridge waits on it before folding the reply.
type IdleWaiter interface {
	WaitIdle(ctx context.Context) error
}

// New resolves the configured dispatcher implementation.
func New(cfg *config.Config) (Dispatcher, error) {
	providerID := cfg.Dispatch.Provider
	if providerID == "" {
		providerID = "openai"
	}

	slog.Default().With("component", "dispatch.factory").Debug("Resolving dispatcher", "provider", providerID)

	switch providerID {
	case "openai":
		return dispatchopenai.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported dispatch provider: %s", providerID)
	}
}
