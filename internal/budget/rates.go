package budget

// Rate is the USD price per 1M tokens for one (provider, model) pair.
type Rate struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// RateTable maps provider -> model -> pricing. The monitor only consumes the
// table; pricing itself is deployment configuration.
type RateTable map[string]map[string]Rate

// Cost derives the USD cost of a call. Unknown (provider, model) pairs cost
// zero, matching providers that bill such calls outside the tracked plan.
func (t RateTable) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	models, ok := t[provider]
	if !ok {
		return 0
	}
	rate, ok := models[model]
	if !ok {
		return 0
	}
	in := float64(inputTokens) / 1_000_000 * rate.Input
	out := float64(outputTokens) / 1_000_000 * rate.Output
	return in + out
}
