package sms

import "strings"

// NormalizePhone converts a user-entered number to E.164 form.
// Numbers without a leading '+' are treated as international, except a
// leading '8' which is the Russian trunk prefix and becomes "+7".
func NormalizePhone(phone string) string {
	phone = stripPhone(phone)
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	if strings.HasPrefix(phone, "8") {
		return "+7" + phone[1:]
	}
	return "+" + phone
}

// stripPhone removes everything except digits and '+'.
func stripPhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '+' {
			return r
		}
		return -1
	}, phone)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// truncate shortens s to at most max runes, marking the cut with "...".
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
