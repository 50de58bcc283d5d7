package util

import "strings"

// NormalizeIdentifier canonicalizes a raw WhatsApp chat/contact identifier:
// the domain part is lowercased and a device suffix in the user part
// ("123:12@s.whatsapp.net") is stripped, so every device of a contact maps
// to the same alias.
func NormalizeIdentifier(raw string) string {
	s := strings.TrimSpace(raw)
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return s
	}

	user := s[:at]
	domain := strings.ToLower(s[at+1:])

	if colon := strings.IndexByte(user, ':'); colon >= 0 {
		user = user[:colon]
	}

	return user + "@" + domain
}
