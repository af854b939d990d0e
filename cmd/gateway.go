package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"larkclaw/pkg/bus"
	"larkclaw/pkg/channel"
	larkchannel "larkclaw/pkg/channel/lark"
	"larkclaw/pkg/config"
	"larkclaw/pkg/gateway"
	"larkclaw/pkg/logger"

	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the channel gateway",
	Long:  "Runs LarkClaw as a channel gateway with health and readiness endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.gateway")

		adapters, err := enabledAdapters(cfg, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(cfg, adapters, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		events, unsubscribe := svc.Events().SubscribeEvents(runCtx, 0)
		defer unsubscribe()
		go func() {
			for event := range events {
				logEvent(log, event)
			}
		}()

		log.Info("Gateway started", "channels", enabledChannelNames(adapters), "dispatcher", cfg.Dispatch.Provider)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

// enabledAdapters builds one lark adapter per configured account, all sharing
// one registry.
func enabledAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 1)

	if cfg.Channels.Lark.Enabled {
		registry := larkchannel.NewRegistry()
		for _, accountID := range cfg.Channels.Lark.AccountIDs() {
			settings := config.ResolveAccount(cfg.Channels.Lark, accountID)
			adapter, err := larkchannel.NewAdapter(settings, registry, log)
			if err != nil {
				return nil, fmt.Errorf("configure lark account %q: %w", accountID, err)
			}
			adapters = append(adapters, adapter)
		}
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}

func logEvent(log *slog.Logger, event bus.Event) {
	attrs := []any{
		"account_id", event.AccountID,
		"chat_id", event.ChatID,
		"session_key", event.SessionKey,
	}

	switch event.Type {
	case bus.EventDispatchFailed:
		log.Error("Dispatch failed", append(attrs, "error", event.Error)...)
	case bus.EventReplySent:
		log.Info("Reply sent", attrs...)
	default:
		log.Info("Message received", attrs...)
	}
}
