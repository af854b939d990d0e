package openai

import (
	"testing"

	"larkclaw/pkg/config"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CUSTOM_KEY_ENV", "")

	cfg := &config.Config{}
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error when no API key is resolvable")
	}
}

func TestNewAppliesModelDefault(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := &config.Config{}
	dispatcher, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if dispatcher.model != defaultModel {
		t.Fatalf("model = %q, want %q", dispatcher.model, defaultModel)
	}
}

func TestResolveAPIKeyPrefersConfiguredEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("CUSTOM_KEY_ENV", "sk-custom")

	key := resolveAPIKey(config.OpenAIDispatchConfig{APIKeyEnv: "CUSTOM_KEY_ENV"})
	if key != "sk-custom" {
		t.Fatalf("key = %q, want sk-custom", key)
	}

	key = resolveAPIKey(config.OpenAIDispatchConfig{APIKeyEnv: "UNSET_KEY_ENV"})
	if key != "sk-fallback" {
		t.Fatalf("key = %q, want sk-fallback", key)
	}
}
