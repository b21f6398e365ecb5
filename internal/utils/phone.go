package utils

import (
	"regexp"
	"strings"
)

var (
	phoneRegex     = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	phoneJunkRegex = regexp.MustCompile(`[^\d+]`)
)

// NormalizePhone strips formatting and ensures a leading +.
func NormalizePhone(phone string) string {
	normalized := phoneJunkRegex.ReplaceAllString(phone, "")
	if normalized == "" {
		return ""
	}
	if !strings.HasPrefix(normalized, "+") {
		normalized = "+" + normalized
	}
	return normalized
}

// IsValidPhone reports whether phone is E.164 after normalization.
func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(NormalizePhone(phone))
}

func MaskPhone(phone string) string {
	if len(phone) < 4 {
		return phone
	}

	// Show last 4 digits
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
