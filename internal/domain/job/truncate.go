package job

import "unicode/utf8"

// DefaultErrorMessageMax bounds error_message length in characters.
const DefaultErrorMessageMax = 500

// TruncateMessage shortens msg to at most limit characters without splitting a rune.
func TruncateMessage(msg string, limit int) string {
	if limit <= 0 {
		limit = DefaultErrorMessageMax
	}
	if utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	n := 0
	for i := range msg {
		if n == limit {
			return msg[:i]
		}
		n++
	}
	return msg
}
