package llm

// Pricing is the pure cost model: price per 1K tokens, input and output
// priced separately.
type Pricing struct {
	InputPerK  float64
	OutputPerK float64
}

// DefaultPricing matches the deepseek-chat list price (CNY per 1K tokens).
func DefaultPricing() Pricing {
	return Pricing{InputPerK: 0.00014, OutputPerK: 0.00056}
}

// Cost returns the estimated monetary cost of one call.
func (p Pricing) Cost(u Usage) float64 {
	return float64(u.InputTokens)/1000.0*p.InputPerK + float64(u.OutputTokens)/1000.0*p.OutputPerK
}
