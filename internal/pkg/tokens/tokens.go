// Package tokens provides token estimation and credit pricing for chat turns.
package tokens

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// CharsPerToken is the average number of characters per token assumed by Estimate.
	CharsPerToken = 4

	// OutputRatio is the assumed output-to-input token ratio for pre-flight estimates.
	OutputRatio = 1.5

	// CreditsPerUSD converts dollar cost into billing credits.
	CreditsPerUSD = 100

	// MinCredits is the floor applied to every costed action.
	MinCredits = 1
)

// Estimate returns the approximate token count of text.
// Empty or whitespace-only text counts as zero tokens.
func Estimate(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	runes := utf8.RuneCountInString(text)
	return (runes + CharsPerToken - 1) / CharsPerToken
}

// EstimateOutput returns the assumed output token count for an input of inputTokens.
func EstimateOutput(inputTokens int) int {
	return int(math.Ceil(float64(inputTokens) * OutputRatio))
}
