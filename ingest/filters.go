package ingest

import "strings"

// Filter runs spec.md §4.7's filtering chain, in order, short-circuiting
// on the first rejection. isDuplicate is injected so the store lookup
// stays outside this pure function.
func Filter(msg *WebhookMessage, isDuplicate bool) (reject bool, reason string) {
	if msg.IsGroup {
		return true, "is_group"
	}
	if strings.HasSuffix(msg.JID, "@g.us") {
		return true, "group_suffix"
	}
	if strings.HasSuffix(msg.JID, "@broadcast") {
		return true, "broadcast_suffix"
	}
	if strings.HasPrefix(msg.JID, "status@") {
		return true, "status_broadcast"
	}
	if msg.IsFromMe {
		return true, "from_me"
	}
	if isDuplicate {
		return true, "duplicate_message_id"
	}

	phone := ExtractPhone(msg.JID)
	if !isSanePhone(phone) {
		return true, "invalid_phone"
	}

	return false, ""
}

// ExtractPhone strips the JID suffix to produce the WhatsApp
// channel_identifier.
func ExtractPhone(jid string) string {
	if idx := strings.IndexByte(jid, '@'); idx >= 0 {
		return jid[:idx]
	}
	return jid
}

func isSanePhone(phone string) bool {
	if phone == "" || len(phone) > 16 {
		return false
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
