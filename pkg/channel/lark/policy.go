package lark

import "larkclaw/pkg/config"

// isAllowed evaluates the account's direct-message access policy for one
// sender: open accepts everyone, allowlist accepts the wildcard "*" or listed
// ids, blocklist accepts everyone not listed.
func isAllowed(settings config.AccountSettings, senderID string) bool {
	switch settings.DMPolicy {
	case config.PolicyAllowlist:
		for _, id := range settings.AllowFrom {
			if id == "*" || id == senderID {
				return true
			}
		}
		return false
	case config.PolicyBlocklist:
		for _, id := range settings.BlockFrom {
			if id == senderID {
				return false
			}
		}
		return true
	default:
		return true
	}
}
