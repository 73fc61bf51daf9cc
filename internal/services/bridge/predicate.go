package bridge

import (
	"regexp"
	"strings"
)

// ToolPredicate decides whether a user message should trigger the
// workflow tool before the completion call.
type ToolPredicate func(text string) bool

// DefaultToolKeywords is the vocabulary of DefaultToolPredicate.
var DefaultToolKeywords = []string{
	"workflow", "node", "trigger", "credential", "configuration", "config",
	"execution", "webhook", "setting", "parameter", "automation",
}

// KeywordPredicate matches text containing any keyword as a word prefix,
// case-insensitively, so "nodes" and "triggers" match too.
func KeywordPredicate(keywords ...string) ToolPredicate {
	if len(keywords) == 0 {
		return func(string) bool { return false }
	}
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(k)))
	}
	re := regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)`)
	return re.MatchString
}

// DefaultToolPredicate matches DefaultToolKeywords.
var DefaultToolPredicate = KeywordPredicate(DefaultToolKeywords...)
