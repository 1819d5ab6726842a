package email

import (
	"net/mail"
	"strings"
)

// validAddress reports whether s is a bare addr-spec such as
// "user@example.com". Display-name forms are rejected.
func validAddress(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}
