package service

import (
	"strings"

	"github.com/timmy/tubechat/internal/prompts"
)

// Augment prefixes query with the retrieved transcript excerpts.
func Augment(chunks []string, query string) string {
	return strings.Join(chunks, "\n") + prompts.ContextSeparator + prompts.QuestionHeader + query
}
