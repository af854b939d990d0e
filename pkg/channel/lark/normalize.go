package lark

import (
	"encoding/json"
	"regexp"
	"strings"

	"larkclaw/pkg/bus"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// Mention placeholders embedded in text content, e.g. "@_user_1".
var mentionTokenPattern = regexp.MustCompile(`\s*@_user_\d+\s*`)

const (
	chatTypeP2P   = "p2p"
	senderTypeApp = "app"
	msgTypeText   = "text"
)

// chatKind maps the provider chat type onto the channel-agnostic kinds:
// "p2p" is a direct conversation, everything else is a group.
func chatKind(chatType string) string {
	if chatType == chatTypeP2P {
		return bus.ChatKindDirect
	}
	return bus.ChatKindGroup
}

// extractContent produces the message body. Only text messages are parsed
// for their JSON envelope; every other type yields a bracketed placeholder
// naming the type.
func extractContent(msgType, raw string) string {
	if msgType != msgTypeText {
		return "[" + msgType + "]"
	}

	var envelope struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return ""
	}

	return stripMentionTokens(envelope.Text)
}

// stripMentionTokens removes mention placeholders and collapses the
// whitespace around each removed token.
func stripMentionTokens(text string) string {
	return strings.TrimSpace(mentionTokenPattern.ReplaceAllString(text, " "))
}

// hasBotMention reports whether the event's mention list carries at least one
// entry with both an identifier and a display name.
func hasBotMention(mentions []*larkim.MentionEvent) bool {
	for _, mention := range mentions {
		if mention == nil {
			continue
		}
		if larkcore.StringValue(mention.Key) != "" && larkcore.StringValue(mention.Name) != "" {
			return true
		}
	}
	return false
}

// normalize converts one provider event into the channel-agnostic inbound
// record, applying the access and routing filters in order. A non-empty drop
// reason means the message is discarded with no further processing and no
// reply.
func (a *Adapter) normalize(event *larkim.P2MessageReceiveV1) (bus.InboundMessage, string) {
	if event == nil || event.Event == nil || event.Event.Message == nil || event.Event.Sender == nil {
		return bus.InboundMessage{}, "malformed event"
	}

	msg := event.Event.Message
	sender := event.Event.Sender

	if larkcore.StringValue(sender.SenderType) == senderTypeApp {
		return bus.InboundMessage{}, "app sender"
	}

	senderID := ""
	if sender.SenderId != nil {
		senderID = larkcore.StringValue(sender.SenderId.OpenId)
	}
	if a.selfID != "" && senderID == a.selfID {
		return bus.InboundMessage{}, "self message"
	}

	kind := chatKind(larkcore.StringValue(msg.ChatType))
	if kind == bus.ChatKindDirect && !a.settings.HandleDMs {
		return bus.InboundMessage{}, "dm handling disabled"
	}
	if kind == bus.ChatKindGroup && !a.settings.HandleGroups {
		return bus.InboundMessage{}, "group handling disabled"
	}
	if kind == bus.ChatKindDirect && !isAllowed(a.settings, senderID) {
		return bus.InboundMessage{}, "sender rejected by dm policy"
	}

	mentioned := hasBotMention(msg.Mentions)
	if kind == bus.ChatKindGroup && a.settings.TriggerOnMention && !mentioned {
		return bus.InboundMessage{}, "group message without bot mention"
	}

	content := extractContent(
		strings.ToLower(strings.TrimSpace(larkcore.StringValue(msg.MessageType))),
		larkcore.StringValue(msg.Content),
	)
	if content == "" {
		return bus.InboundMessage{}, "empty text"
	}

	chatID := larkcore.StringValue(msg.ChatId)

	return bus.InboundMessage{
		Channel:    channelName,
		AccountID:  a.settings.AccountID,
		SenderID:   senderID,
		ChatID:     chatID,
		ChatKind:   kind,
		Content:    content,
		MessageID:  larkcore.StringValue(msg.MessageId),
		MentionBot: mentioned,
		SessionKey: SessionKey(a.settings.AccountID, kind, chatID),
	}, ""
}
