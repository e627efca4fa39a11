package extraction

// MaxAmount returns the largest monetary token in the text. Every token is
// read as cents: separators are dropped and the point goes back in before
// the last two digits.
type MaxAmount struct{}

func (p *MaxAmount) Name() string { return MaxPolicyName }

func (p *MaxAmount) Extract(text string) Result {
	result := NotFound
	for _, token := range tokenRegex.FindAllString(text, -1) {
		value, err := centsAmount(digitsOnly(token))
		if err != nil {
			continue
		}
		if !result.Found || value.GreaterThanOrEqual(result.Amount) {
			result = Found(value)
		}
	}
	return result
}
