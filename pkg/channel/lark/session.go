package lark

import (
	"fmt"
	"strings"
)

// SessionKey derives the deterministic conversation correlator for one chat.
// The key is lowercased; Lark issues its oc_/ou_ identifiers in lowercase, so
// distinct chats never collide in practice.
func SessionKey(accountID, chatKind, chatID string) string {
	return strings.ToLower(fmt.Sprintf("%s:%s:%s:%s", channelName, accountID, chatKind, chatID))
}
