package forwarder

import "strings"

// bulletMarkers are the emoji/characters the AI orchestrator uses to open
// a list item; when two appear back to back without a newline between
// them, the reply renders as one run-on line on WhatsApp.
var bulletMarkers = []string{"•", "✅", "❌", "📌", "🔹", "▪️", "➡️", "📋"}

// NormalizeReplyText implements spec.md §4.8's reply-path normalization:
// unescape literal "\n" sequences the AI sends as text, then insert a
// blank line before any bullet marker that isn't already on its own line.
func NormalizeReplyText(text string) string {
	text = strings.ReplaceAll(text, `\n`, "\n")

	for _, marker := range bulletMarkers {
		text = insertBlankLineBeforeMarker(text, marker)
	}
	return text
}

func insertBlankLineBeforeMarker(text, marker string) string {
	var b strings.Builder
	for {
		idx := strings.Index(text, marker)
		if idx < 0 {
			b.WriteString(text)
			break
		}
		prefix := text[:idx]
		b.WriteString(prefix)
		if idx > 0 && !strings.HasSuffix(prefix, "\n") {
			b.WriteString("\n\n")
		}
		b.WriteString(marker)
		text = text[idx+len(marker):]
	}
	return b.String()
}
