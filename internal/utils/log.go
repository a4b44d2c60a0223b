package utils

import (
	"fmt"
	"strings"
)

// TruncateForLog prepares model prompts, replies and error bodies for a log
// line: whitespace runs become single spaces and at most limit runes are
// kept. A non-positive limit drops the text.
func TruncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return fmt.Sprintf("%s... (%d more)", string(runes[:limit]), len(runes)-limit)
}
