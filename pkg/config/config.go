package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

const (
	envLarkAppID     = "LARK_APP_ID"
	envLarkAppSecret = "LARK_APP_SECRET"
)

// Defaults applied by ResolveAccount when the raw account omits a field.
const (
	DefaultDomain         = "feishu"
	DefaultConnectionMode = ModeWebhook
	DefaultWebhookPort    = 9876
	DefaultWebhookPath    = "/webhook/lark"
	DefaultDMPolicy       = PolicyOpen
	DefaultAccountID      = "default"
)

// Connection modes for one Lark account.
const (
	ModeWebSocket = "websocket"
	ModeWebhook   = "webhook"
)

// Direct-message access policies.
const (
	PolicyOpen      = "open"
	PolicyAllowlist = "allowlist"
	PolicyBlocklist = "blocklist"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels ChannelsConfig `json:"channels"`
	Dispatch DispatchConfig `json:"dispatch"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Lark LarkConfig `json:"lark"`
}

// LarkConfig configures the Lark/Feishu channel. It supports two shapes: a
// single flat account declared directly under the channel key, or a map of
// named accounts under "accounts". The flat shape is ignored when the map is
// non-empty.
type LarkConfig struct {
	Enabled bool `json:"enabled"`

	LarkAccount

	Accounts map[string]LarkAccount `json:"accounts,omitempty"`
}

// LarkAccount is the raw, partially specified configuration of one bot
// identity. Field names follow the channel's public configuration surface.
// Optional booleans are pointers so "absent" and "false" stay distinct until
// ResolveAccount applies defaults.
type LarkAccount struct {
	AppID             string   `json:"appId"`
	AppSecret         string   `json:"appSecret"`
	Domain            string   `json:"domain,omitempty"`
	ConnectionMode    string   `json:"connectionMode,omitempty"`
	WebhookPort       *int     `json:"webhookPort,omitempty"`
	WebhookPath       string   `json:"webhookPath,omitempty"`
	EncryptKey        string   `json:"encryptKey,omitempty"`
	VerificationToken string   `json:"verificationToken,omitempty"`
	HandleGroups      *bool    `json:"handleGroups,omitempty"`
	HandleDMs         *bool    `json:"handleDMs,omitempty"`
	TriggerOnMention  *bool    `json:"triggerOnMention,omitempty"`
	DMPolicy          string   `json:"dmPolicy,omitempty"`
	AllowFrom         []string `json:"allowFrom,omitempty"`
	BlockFrom         []string `json:"blockFrom,omitempty"`
}

// AccountSettings is one fully defaulted bot identity, derived fresh from the
// raw configuration at account start and immutable afterwards.
type AccountSettings struct {
	AccountID         string
	AppID             string
	AppSecret         string
	Domain            string
	ConnectionMode    string
	WebhookPort       int
	WebhookPath       string
	EncryptKey        string
	VerificationToken string
	HandleGroups      bool
	HandleDMs         bool
	TriggerOnMention  bool
	DMPolicy          string
	AllowFrom         []string
	BlockFrom         []string
}

// DispatchConfig selects and configures the reply dispatcher.
type DispatchConfig struct {
	Provider string               `json:"provider"`
	OpenAI   OpenAIDispatchConfig `json:"openai"`
}

// OpenAIDispatchConfig configures the built-in OpenAI dispatcher.
type OpenAIDispatchConfig struct {
	BaseURL               string `json:"base_url"`
	APIKeyEnv             string `json:"api_key_env"`
	Model                 string `json:"model"`
	Instructions          string `json:"instructions"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// GatewayConfig configures HTTP status endpoint bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ResolveAccount derives the complete settings record for one account. It
// never fails: absent fields take defaults, and absent credentials are left
// empty for the connection manager to reject at start time.
//
// When the accounts map is non-empty the flat account shape is ignored; an
// empty accountID then selects the first account in sorted-name order, the
// deterministic stand-in for declaration order, which JSON decoding does not
// preserve.
func ResolveAccount(cfg LarkConfig, accountID string) AccountSettings {
	accountID = strings.TrimSpace(accountID)

	raw := cfg.LarkAccount
	resolvedID := DefaultAccountID

	if len(cfg.Accounts) > 0 {
		names := make([]string, 0, len(cfg.Accounts))
		for name := range cfg.Accounts {
			names = append(names, name)
		}
		sort.Strings(names)

		resolvedID = names[0]
		if accountID != "" {
			resolvedID = accountID
		}
		raw = cfg.Accounts[resolvedID]
	} else if accountID != "" {
		resolvedID = accountID
	}

	settings := AccountSettings{
		AccountID:         resolvedID,
		AppID:             strings.TrimSpace(raw.AppID),
		AppSecret:         strings.TrimSpace(raw.AppSecret),
		Domain:            defaultString(raw.Domain, DefaultDomain),
		ConnectionMode:    defaultString(raw.ConnectionMode, DefaultConnectionMode),
		WebhookPort:       DefaultWebhookPort,
		WebhookPath:       defaultString(raw.WebhookPath, DefaultWebhookPath),
		EncryptKey:        strings.TrimSpace(raw.EncryptKey),
		VerificationToken: strings.TrimSpace(raw.VerificationToken),
		HandleGroups:      defaultBool(raw.HandleGroups, true),
		HandleDMs:         defaultBool(raw.HandleDMs, true),
		TriggerOnMention:  defaultBool(raw.TriggerOnMention, true),
		DMPolicy:          defaultString(raw.DMPolicy, DefaultDMPolicy),
		AllowFrom:         []string{"*"},
		BlockFrom:         []string{},
	}

	if raw.WebhookPort != nil && *raw.WebhookPort > 0 {
		settings.WebhookPort = *raw.WebhookPort
	}
	if raw.AllowFrom != nil {
		settings.AllowFrom = cleanList(raw.AllowFrom)
	}
	if raw.BlockFrom != nil {
		settings.BlockFrom = cleanList(raw.BlockFrom)
	}

	return settings
}

// AccountIDs lists the configured account names in sorted order, or the
// default id when only the flat shape is in use.
func (c LarkConfig) AccountIDs() []string {
	if len(c.Accounts) == 0 {
		return []string{DefaultAccountID}
	}

	names := make([]string, 0, len(c.Accounts))
	for name := range c.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadConfig resolves config.json, unmarshals it, and applies environment
// overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file
// config. Credential overrides target the flat account shape.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if appID := strings.TrimSpace(os.Getenv(envLarkAppID)); appID != "" {
		cfg.Channels.Lark.AppID = appID
	}

	if secret := strings.TrimSpace(os.Getenv(envLarkAppSecret)); secret != "" {
		cfg.Channels.Lark.AppSecret = secret
	}
}

func defaultString(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func defaultBool(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

// cleanList returns a trimmed compact copy of a configured ID list.
func cleanList(values []string) []string {
	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is LARKCLAW_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("LARKCLAW_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("LARKCLAW_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
