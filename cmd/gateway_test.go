package cmd

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"larkclaw/pkg/bus"
	channelpkg "larkclaw/pkg/channel"
	"larkclaw/pkg/config"
)

type testAdapter struct{ name string }

func (a testAdapter) Name() string { return a.name }

func (a testAdapter) Run(_ context.Context, _ channelpkg.Handler) error { return nil }

func TestEnabledAdaptersRequiresAtLeastOneChannel(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if _, err := enabledAdapters(cfg, nil); err == nil {
		t.Fatal("expected error when no channels are enabled")
	}
}

func TestEnabledAdaptersRejectsMissingCredentials(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Channels.Lark.Enabled = true
	if _, err := enabledAdapters(cfg, slog.Default()); err == nil {
		t.Fatal("expected error for enabled account without credentials")
	}
}

func TestEnabledAdaptersBuildsOnePerAccount(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Channels.Lark.Enabled = true
	cfg.Channels.Lark.Accounts = map[string]config.LarkAccount{
		"alpha": {AppID: "cli_a", AppSecret: "secret_a"},
		"beta":  {AppID: "cli_b", AppSecret: "secret_b"},
	}

	adapters, err := enabledAdapters(cfg, slog.Default())
	if err != nil {
		t.Fatalf("enabledAdapters error: %v", err)
	}
	if len(adapters) != 2 {
		t.Fatalf("adapter count = %d, want 2", len(adapters))
	}
}

func TestEnabledChannelNames(t *testing.T) {
	t.Parallel()

	adapters := []channelpkg.Adapter{testAdapter{name: "lark"}, testAdapter{name: "lark"}}
	if got := enabledChannelNames(adapters); got != "lark,lark" {
		t.Fatalf("enabledChannelNames = %q, want %q", got, "lark,lark")
	}
}

func TestLogEventLevels(t *testing.T) {
	recorder := &recordingLogHandler{}
	log := slog.New(recorder)

	logEvent(log, bus.Event{Type: bus.EventMessageReceived, ChatID: "oc_1"})
	if got := recorder.LastLevel(); got != slog.LevelInfo {
		t.Fatalf("received event level = %v, want %v", got, slog.LevelInfo)
	}

	logEvent(log, bus.Event{Type: bus.EventReplySent, ChatID: "oc_1"})
	if got := recorder.LastLevel(); got != slog.LevelInfo {
		t.Fatalf("reply event level = %v, want %v", got, slog.LevelInfo)
	}

	logEvent(log, bus.Event{Type: bus.EventDispatchFailed, ChatID: "oc_1", Error: "boom"})
	if got := recorder.LastLevel(); got != slog.LevelError {
		t.Fatalf("failed event level = %v, want %v", got, slog.LevelError)
	}
}

type recordingLogHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingLogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingLogHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingLogHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *recordingLogHandler) WithGroup(_ string) slog.Handler { return h }

func (h *recordingLogHandler) LastLevel() slog.Level {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == 0 {
		return 0
	}
	return h.records[len(h.records)-1].Level
}
