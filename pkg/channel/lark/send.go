package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"larkclaw/pkg/config"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// SendResult is the structured outcome of one outbound send. Failures are
// carried in Error instead of a Go error so callers decide whether to log or
// retry; this package itself never retries a send.
type SendResult struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func sendFailure(format string, args ...any) SendResult {
	return SendResult{Error: fmt.Sprintf(format, args...)}
}

// Messenger is the outbound surface of one account's provider client. The
// SDK implementation is replaced in tests.
type Messenger interface {
	SendText(ctx context.Context, chatID, text string) SendResult
}

type sdkMessenger struct {
	client *lark.Client
}

func newSDKMessenger(client *lark.Client) *sdkMessenger {
	return &sdkMessenger{client: client}
}

// SendText posts a text message to a chat through the message-create API
// with chat-id targeting.
func (m *sdkMessenger) SendText(ctx context.Context, chatID, text string) SendResult {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return sendFailure("encode text content: %v", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeText).
			Content(string(content)).
			Build()).
		Build()

	resp, err := m.client.Im.Message.Create(ctx, req)
	if err != nil {
		return sendFailure("lark send message: %v", err)
	}
	if !resp.Success() {
		return sendFailure("lark api error: %d %s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil {
		messageID = larkcore.StringValue(resp.Data.MessageId)
	}

	return SendResult{OK: true, MessageID: messageID}
}

// SendText sends text to a chat on behalf of an account. This primitive
// serves both the automatic reply path and direct programmatic sends.
func (r *Registry) SendText(ctx context.Context, accountID, chatID, text string) SendResult {
	m, ok := r.messengerFor(accountID)
	if !ok {
		return sendFailure("client not initialized for account %q", accountID)
	}

	return m.SendText(ctx, chatID, text)
}

// DirectSend sends one message without a running adapter. It builds a
// short-lived provider client from the account settings; used by the CLI
// send command.
func DirectSend(ctx context.Context, settings config.AccountSettings, chatID, text string) SendResult {
	if settings.AppID == "" || settings.AppSecret == "" {
		return sendFailure("channels.lark appId and appSecret are required")
	}

	client := lark.NewClient(settings.AppID, settings.AppSecret, lark.WithOpenBaseUrl(resolveBaseURL(settings.Domain)))
	return newSDKMessenger(client).SendText(ctx, chatID, text)
}
