package config

import (
	"encoding/json"
	"testing"
)

func TestResolveAccountDefaults(t *testing.T) {
	settings := ResolveAccount(LarkConfig{}, "")

	if settings.AccountID != DefaultAccountID {
		t.Fatalf("AccountID = %q, want %q", settings.AccountID, DefaultAccountID)
	}
	if settings.Domain != "feishu" {
		t.Fatalf("Domain = %q, want feishu", settings.Domain)
	}
	if settings.ConnectionMode != ModeWebhook {
		t.Fatalf("ConnectionMode = %q, want %q", settings.ConnectionMode, ModeWebhook)
	}
	if settings.WebhookPort != 9876 {
		t.Fatalf("WebhookPort = %d, want 9876", settings.WebhookPort)
	}
	if settings.WebhookPath != "/webhook/lark" {
		t.Fatalf("WebhookPath = %q, want /webhook/lark", settings.WebhookPath)
	}
	if !settings.HandleGroups || !settings.HandleDMs || !settings.TriggerOnMention {
		t.Fatal("group/DM handling and mention trigger should default to true")
	}
	if settings.DMPolicy != PolicyOpen {
		t.Fatalf("DMPolicy = %q, want open", settings.DMPolicy)
	}
	if len(settings.AllowFrom) != 1 || settings.AllowFrom[0] != "*" {
		t.Fatalf("AllowFrom = %v, want [*]", settings.AllowFrom)
	}
	if len(settings.BlockFrom) != 0 {
		t.Fatalf("BlockFrom = %v, want empty", settings.BlockFrom)
	}
}

func TestResolveAccountExplicitValues(t *testing.T) {
	falseValue := false
	port := 8080
	cfg := LarkConfig{
		LarkAccount: LarkAccount{
			AppID:            " cli_abc ",
			AppSecret:        " secret ",
			Domain:           "lark",
			ConnectionMode:   ModeWebSocket,
			WebhookPort:      &port,
			TriggerOnMention: &falseValue,
			DMPolicy:         PolicyAllowlist,
			AllowFrom:        []string{" U1 ", "", "U2"},
			BlockFrom:        []string{"U3"},
		},
	}

	settings := ResolveAccount(cfg, "")
	if settings.AppID != "cli_abc" || settings.AppSecret != "secret" {
		t.Fatalf("credentials not trimmed: %q %q", settings.AppID, settings.AppSecret)
	}
	if settings.Domain != "lark" {
		t.Fatalf("Domain = %q, want lark", settings.Domain)
	}
	if settings.ConnectionMode != ModeWebSocket {
		t.Fatalf("ConnectionMode = %q, want websocket", settings.ConnectionMode)
	}
	if settings.WebhookPort != 8080 {
		t.Fatalf("WebhookPort = %d, want 8080", settings.WebhookPort)
	}
	if settings.TriggerOnMention {
		t.Fatal("TriggerOnMention should honor explicit false")
	}
	if len(settings.AllowFrom) != 2 || settings.AllowFrom[0] != "U1" || settings.AllowFrom[1] != "U2" {
		t.Fatalf("AllowFrom = %v, want [U1 U2]", settings.AllowFrom)
	}
	if len(settings.BlockFrom) != 1 || settings.BlockFrom[0] != "U3" {
		t.Fatalf("BlockFrom = %v, want [U3]", settings.BlockFrom)
	}
}

func TestResolveAccountMap(t *testing.T) {
	cfg := LarkConfig{
		LarkAccount: LarkAccount{AppID: "flat"},
		Accounts: map[string]LarkAccount{
			"beta":  {AppID: "cli_beta"},
			"alpha": {AppID: "cli_alpha"},
		},
	}

	settings := ResolveAccount(cfg, "")
	if settings.AccountID != "alpha" || settings.AppID != "cli_alpha" {
		t.Fatalf("unnamed selection = %q/%q, want alpha/cli_alpha", settings.AccountID, settings.AppID)
	}

	settings = ResolveAccount(cfg, "beta")
	if settings.AccountID != "beta" || settings.AppID != "cli_beta" {
		t.Fatalf("named selection = %q/%q, want beta/cli_beta", settings.AccountID, settings.AppID)
	}

	// Unknown names still resolve, with credentials left empty for the
	// connection manager to reject.
	settings = ResolveAccount(cfg, "missing")
	if settings.AccountID != "missing" || settings.AppID != "" {
		t.Fatalf("missing selection = %q/%q, want missing/empty", settings.AccountID, settings.AppID)
	}
}

func TestAccountIDs(t *testing.T) {
	flat := LarkConfig{}
	ids := flat.AccountIDs()
	if len(ids) != 1 || ids[0] != DefaultAccountID {
		t.Fatalf("flat AccountIDs = %v, want [default]", ids)
	}

	multi := LarkConfig{Accounts: map[string]LarkAccount{"b": {}, "a": {}}}
	ids = multi.AccountIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("multi AccountIDs = %v, want [a b]", ids)
	}
}

func TestLarkConfigFlatShapeJSON(t *testing.T) {
	raw := `{
		"enabled": true,
		"appId": "cli_x",
		"appSecret": "s",
		"handleGroups": false,
		"allowFrom": ["U1"]
	}`

	var cfg LarkConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal flat shape: %v", err)
	}

	settings := ResolveAccount(cfg, "")
	if settings.AppID != "cli_x" {
		t.Fatalf("AppID = %q, want cli_x", settings.AppID)
	}
	if settings.HandleGroups {
		t.Fatal("HandleGroups should honor explicit false")
	}
	if !settings.HandleDMs {
		t.Fatal("HandleDMs should default true when absent")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(envLarkAppID, "cli_env")
	t.Setenv(envLarkAppSecret, "env_secret")

	cfg := &Config{}
	applyEnvOverrides(cfg)

	if cfg.Channels.Lark.AppID != "cli_env" {
		t.Fatalf("AppID = %q, want cli_env", cfg.Channels.Lark.AppID)
	}
	if cfg.Channels.Lark.AppSecret != "env_secret" {
		t.Fatalf("AppSecret = %q, want env_secret", cfg.Channels.Lark.AppSecret)
	}
}
