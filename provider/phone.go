package provider

import (
	"strings"
)

// NormalizePhone implements spec.md §4.2's send-path normalization:
// strip the WhatsApp JID suffix and non-digits, then apply the
// Indonesian country-code rules.
func NormalizePhone(raw string) string {
	s := strings.TrimSuffix(raw, "@s.whatsapp.net")
	s = strings.TrimSuffix(s, "@c.us")

	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	s = digits.String()

	switch {
	case strings.HasPrefix(s, "0"):
		s = "62" + s[1:]
	case !strings.HasPrefix(s, "62"):
		s = "62" + s
	}

	return s
}

// BuildVCard implements spec.md §4.2's vCard construction: the first
// whitespace token becomes FN/N, the remainder is dropped, and a
// TEL;type=CELL;type=pref line is always appended.
func BuildVCard(name, phone string) string {
	first := name
	if idx := strings.IndexByte(name, ' '); idx >= 0 {
		first = name[:idx]
	}
	if first == "" {
		first = phone
	}

	normalized := NormalizePhone(phone)

	var b strings.Builder
	b.WriteString("BEGIN:VCARD\n")
	b.WriteString("VERSION:3.0\n")
	b.WriteString("FN:" + first + "\n")
	b.WriteString("N:" + first + ";;;;\n")
	b.WriteString("TEL;type=CELL;type=pref:" + normalized + "\n")
	b.WriteString("END:VCARD")
	return b.String()
}
