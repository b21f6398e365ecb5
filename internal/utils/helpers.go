package utils

import "unicode/utf8"

// TruncateString cuts s to maxLength runes, appending an ellipsis when cut.
func TruncateString(s string, maxLength int) string {
	if maxLength <= 0 || utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	return string([]rune(s)[:maxLength]) + "…"
}

func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
