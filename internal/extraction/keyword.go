package extraction

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// lineAmountRegex is looser than tokenRegex: the thousands separator is
// optional, so "1234" is a single token on a total line.
var lineAmountRegex = regexp.MustCompile(`\b\d{1,3}(?:[.,]?\d{3})*(?:[.,]\d{2})?\b`)

var subtotalWords = []string{"sous-total", "sub-total", "subtotal"}

// KeywordLastWins scans lines for "total" and takes the amount on that line,
// or on the next one when the line has none. The last hit in the text wins.
//
// Matching is by substring, so "sous-total" lines count as total lines unless
// SkipSubtotalLines is set.
type KeywordLastWins struct {
	SkipSubtotalLines bool
}

func (p *KeywordLastWins) Name() string { return KeywordPolicyName }

func (p *KeywordLastWins) Extract(text string) Result {
	lines := strings.Split(strings.ToLower(text), "\n")

	result := NotFound
	for i, line := range lines {
		if !p.isTotalLine(line) {
			continue
		}

		if token := lineAmountRegex.FindString(line); token != "" {
			if amount, ok := parseCommaDecimal(token); ok {
				result = Found(amount)
			}
			continue
		}

		if i+1 < len(lines) {
			if token := lineAmountRegex.FindString(lines[i+1]); token != "" {
				if amount, ok := parseCommaDecimal(token); ok {
					result = Found(amount)
				}
			}
		}
	}
	return result
}

func (p *KeywordLastWins) isTotalLine(line string) bool {
	// "sous-total" contains "total", so subtotal lines qualify unless removed first
	if p.SkipSubtotalLines {
		for _, word := range subtotalWords {
			line = strings.ReplaceAll(line, word, "")
		}
	}
	return strings.Contains(line, "total")
}

// parseCommaDecimal turns ',' into '.' and nothing else. Tokens that still
// carry grouping separators ("1,234.56" -> "1.234.56") do not parse.
func parseCommaDecimal(token string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(strings.ReplaceAll(token, ",", "."))
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}
