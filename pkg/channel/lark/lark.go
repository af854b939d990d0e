package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"larkclaw/pkg/channel"
	"larkclaw/pkg/config"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/core/httpserverext"
	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
)

const channelName = "lark"
const messagePreviewLimit = 240
const botInfoPath = "/open-apis/bot/v3/info"

// Adapter bridges one Lark bot account into LarkClaw. Events arrive over a
// persistent WebSocket connection or an HTTP webhook callback depending on
// the account's connection mode.
type Adapter struct {
	settings  config.AccountSettings
	registry  *Registry
	log       *slog.Logger
	handler   channel.Handler
	client    *lark.Client
	messenger Messenger
	selfID    string
}

// NewAdapter validates account credentials and constructs an adapter
// instance. Missing credentials abort account startup here.
func NewAdapter(settings config.AccountSettings, registry *Registry, log *slog.Logger) (*Adapter, error) {
	if settings.AppID == "" || settings.AppSecret == "" {
		return nil, errors.New("channels.lark appId and appSecret are required")
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		settings: settings,
		registry: registry,
		log:      log.With("component", "channel.lark", "account_id", settings.AccountID),
	}, nil
}

// Name returns the channel identifier used in bus metadata and logs.
func (a *Adapter) Name() string {
	return channelName
}

// AccountID returns the resolved account identifier this adapter serves.
func (a *Adapter) AccountID() string {
	return a.settings.AccountID
}

// Registry exposes the account registry backing this adapter's send path.
func (a *Adapter) Registry() *Registry {
	return a.registry
}

// SetMessenger replaces the default SDK messenger. This is the primary
// injection point for testing.
func (a *Adapter) SetMessenger(m Messenger) {
	a.messenger = m
}

// Run starts the account: builds and registers the provider client, resolves
// the bot's own identity, registers the message-received handler, and blocks
// on the configured transport until ctx is cancelled or the transport fails.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	a.handler = handler

	baseURL := resolveBaseURL(a.settings.Domain)
	a.client = lark.NewClient(a.settings.AppID, a.settings.AppSecret, lark.WithOpenBaseUrl(baseURL))
	if a.messenger == nil {
		a.messenger = newSDKMessenger(a.client)
	}
	a.registry.putMessenger(a.settings.AccountID, a.messenger)
	defer a.registry.remove(a.settings.AccountID)

	a.resolveSelfID(ctx)

	eventDispatcher := dispatcher.NewEventDispatcher(a.settings.VerificationToken, a.settings.EncryptKey)
	eventDispatcher.OnP2MessageReceiveV1(a.handleMessage)

	switch a.settings.ConnectionMode {
	case config.ModeWebSocket:
		return a.runWebSocket(ctx, eventDispatcher, baseURL)
	case config.ModeWebhook:
		return a.runWebhook(ctx, eventDispatcher)
	default:
		return fmt.Errorf("unsupported connection mode %q", a.settings.ConnectionMode)
	}
}

// runWebSocket opens the persistent connection and blocks for its lifetime.
// Reconnection on drops is the SDK client's own policy.
func (a *Adapter) runWebSocket(ctx context.Context, d *dispatcher.EventDispatcher, baseURL string) error {
	wsClient := larkws.NewClient(a.settings.AppID, a.settings.AppSecret,
		larkws.WithEventHandler(d),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
		larkws.WithDomain(baseURL),
	)
	a.registry.putConn(a.settings.AccountID, wsClient)

	a.log.Info("Lark channel connecting", "mode", config.ModeWebSocket, "app_id", a.settings.AppID)

	err := wsClient.Start(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// runWebhook binds the local callback listener, mounts the SDK's event
// adapter (signature and challenge verification included) at the configured
// path, and serves until ctx is cancelled. Binding failure is fatal.
func (a *Adapter) runWebhook(ctx context.Context, d *dispatcher.EventDispatcher) error {
	addr := fmt.Sprintf(":%d", a.settings.WebhookPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind webhook listener on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(a.settings.WebhookPath, httpserverext.NewEventHandlerFunc(d, larkevent.WithLogLevel(larkcore.LogLevelInfo)))

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.registry.putListener(a.settings.AccountID, server)

	serverErrors := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	a.log.Info("Lark webhook listener started", "address", listener.Addr().String(), "path", a.settings.WebhookPath)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-serverErrors:
		return fmt.Errorf("serve webhook listener: %w", err)
	}
}

// resolveSelfID looks up the bot's own open id so self-sent messages can be
// filtered. Failure is non-fatal: the run continues with self-message
// filtering degraded to a no-op.
func (a *Adapter) resolveSelfID(ctx context.Context) {
	resp, err := a.client.Do(ctx, &larkcore.ApiReq{
		HttpMethod:                http.MethodGet,
		ApiPath:                   botInfoPath,
		SupportedAccessTokenTypes: []larkcore.AccessTokenType{larkcore.AccessTokenTypeTenant},
	})
	if err != nil {
		a.log.Warn("Bot identity lookup failed; self-message filtering disabled", "error", err)
		return
	}

	var parsed struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID string `json:"open_id"`
		} `json:"bot"`
	}
	if err := json.Unmarshal(resp.RawBody, &parsed); err != nil {
		a.log.Warn("Bot identity lookup returned unparseable body; self-message filtering disabled", "error", err)
		return
	}
	if parsed.Code != 0 {
		a.log.Warn("Bot identity lookup rejected; self-message filtering disabled", "code", parsed.Code, "msg", parsed.Msg)
		return
	}

	a.selfID = parsed.Bot.OpenID
	a.log.Debug("Resolved bot identity", "self_id", a.selfID)
}

// handleMessage is the single message-received event handler. Each event is
// processed end to end inside this invocation; failures drop the event and
// never crash the handler loop.
func (a *Adapter) handleMessage(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
	inbound, dropReason := a.normalize(event)
	if dropReason != "" {
		a.log.Debug("Dropping message", "reason", dropReason)
		return nil
	}

	a.log.Info("Received message",
		"chat_id", inbound.ChatID,
		"chat_kind", inbound.ChatKind,
		"sender_id", inbound.SenderID,
		"session_key", inbound.SessionKey,
		"content", previewText(inbound.Content),
	)

	outbound, err := a.handler(ctx, inbound)
	if err != nil {
		a.log.Error("Failed to process inbound message", "message_id", inbound.MessageID, "error", err)
		return nil
	}

	replyText := strings.TrimSpace(outbound.Content)
	if replyText == "" {
		return nil
	}

	a.log.Info("Sending reply", "chat_id", inbound.ChatID, "session_key", inbound.SessionKey, "content", previewText(replyText))

	if result := a.registry.SendText(ctx, a.settings.AccountID, inbound.ChatID, replyText); !result.OK {
		a.log.Error("Failed to send lark message", "chat_id", inbound.ChatID, "error", result.Error)
	}

	return nil
}

// resolveBaseURL maps the configured region onto the provider base URL.
func resolveBaseURL(domain string) string {
	if domain == "lark" {
		return lark.LarkBaseUrl
	}
	return lark.FeishuBaseUrl
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
