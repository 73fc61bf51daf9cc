package tokens

import (
	"math"
	"strings"
)

// Pricing is the cost of a model in USD per million tokens.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// USD returns the dollar cost of the given token counts.
func (p Pricing) USD(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*p.InputPerMillion/1_000_000 +
		float64(outputTokens)*p.OutputPerMillion/1_000_000
}

// DefaultModel is used when a chat message names no model.
const DefaultModel = "openai/gpt-4o-mini"

// ModelPricing is the per-model cost table.
var ModelPricing = map[string]Pricing{
	"openai/gpt-4o-mini":                {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"openai/gpt-4o":                     {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"openai/gpt-4-turbo":                {InputPerMillion: 10.00, OutputPerMillion: 30.00},
	"anthropic/claude-3.5-sonnet":       {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"anthropic/claude-3-haiku":          {InputPerMillion: 0.25, OutputPerMillion: 1.25},
	"google/gemini-flash-1.5":           {InputPerMillion: 0.075, OutputPerMillion: 0.30},
	"google/gemini-pro-1.5":             {InputPerMillion: 1.25, OutputPerMillion: 5.00},
	"meta-llama/llama-3.1-70b-instruct": {InputPerMillion: 0.52, OutputPerMillion: 0.75},
	"mistralai/mistral-7b-instruct":     {InputPerMillion: 0.055, OutputPerMillion: 0.055},
}

// cheapest is resolved once from ModelPricing.
var cheapest = func() Pricing {
	var best Pricing
	bestTotal := math.MaxFloat64
	for _, p := range ModelPricing {
		if total := p.InputPerMillion + p.OutputPerMillion; total < bestTotal {
			best, bestTotal = p, total
		}
	}
	return best
}()

// PricingFor returns the pricing of model, or the cheapest known pricing
// when the model is not in the table.
func PricingFor(model string) Pricing {
	if p, ok := ModelPricing[strings.ToLower(strings.TrimSpace(model))]; ok {
		return p
	}
	return cheapest
}

// Credits converts token counts for model into billing credits.
// The result is rounded up and never below MinCredits.
func Credits(model string, inputTokens, outputTokens int) int {
	usd := PricingFor(model).USD(inputTokens, outputTokens)
	credits := int(math.Ceil(usd * CreditsPerUSD))
	if credits < MinCredits {
		return MinCredits
	}
	return credits
}

// EstimateCredits returns the pre-flight credit estimate for sending text to model.
func EstimateCredits(model, text string) int {
	input := Estimate(text)
	return Credits(model, input, EstimateOutput(input))
}
