package message

import (
	"regexp"
	"strings"
)

// Reasoning markup emitted by thinking models ahead of the actual answer.
const (
	ReasoningStart = "<think>"
	ReasoningEnd   = "</think>"
)

var reasoningPattern = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(ReasoningStart) + `.*?` + regexp.QuoteMeta(ReasoningEnd))

// StripReasoning removes every reasoning span and trims the remainder.
// An unterminated start delimiter is left in place.
func StripReasoning(content string) string {
	return strings.TrimSpace(reasoningPattern.ReplaceAllString(content, ""))
}
