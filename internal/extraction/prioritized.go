package extraction

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	unsupportedChars = regexp.MustCompile(`[^0-9A-Za-z.,\s]`)

	totalKeywordRegex    = regexp.MustCompile(`(?is)\b(?:total|à payer|amount due|montant|amount)\b.*?(` + tokenPattern + `)`)
	subtotalKeywordRegex = regexp.MustCompile(`(?is)\b(?:sous-total|sub-total|subtotal)\b.*?(` + tokenPattern + `)`)
)

// fallbackCeiling bounds the amounts considered when no keyword matched.
var fallbackCeiling = decimal.NewFromInt(10000)

// KeywordPrioritized looks for an amount after a total keyword, ignoring
// amounts that already followed a subtotal keyword earlier in the text. The
// last surviving match wins. Without one, it returns the largest amount in
// (0, 10000).
//
// Characters outside [0-9A-Za-z.,\s] are removed before matching, which
// also removes the accent of "à payer" and the hyphen of "sous-total".
type KeywordPrioritized struct{}

func (p *KeywordPrioritized) Name() string { return PrioritizedPolicyName }

func (p *KeywordPrioritized) Extract(text string) Result {
	cleaned := unsupportedChars.ReplaceAllString(text, "")

	if amount, ok := lastKeywordAmount(cleaned); ok {
		return Found(amount)
	}
	return maxInRange(cleaned)
}

type keywordMatch struct {
	start  int
	number string
}

func keywordMatches(re *regexp.Regexp, text string) []keywordMatch {
	var matches []keywordMatch
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		matches = append(matches, keywordMatch{
			start:  loc[0],
			number: text[loc[2]:loc[3]],
		})
	}
	return matches
}

func lastKeywordAmount(text string) (decimal.Decimal, bool) {
	excluded := keywordMatches(subtotalKeywordRegex, text)

	var (
		amount decimal.Decimal
		found  bool
	)
	for _, m := range keywordMatches(totalKeywordRegex, text) {
		if isExcluded(m, excluded) {
			continue
		}
		normalized := strings.ReplaceAll(strings.ReplaceAll(m.number, " ", ""), ",", ".")
		value, err := decimal.NewFromString(normalized)
		if err != nil {
			continue
		}
		amount, found = value, true
	}
	return amount, found
}

func isExcluded(m keywordMatch, excluded []keywordMatch) bool {
	for _, ex := range excluded {
		if ex.start < m.start && ex.number == m.number {
			return true
		}
	}
	return false
}

func maxInRange(text string) Result {
	result := NotFound
	for _, token := range tokenRegex.FindAllString(text, -1) {
		value, err := lastSeparatorAmount(token)
		if err != nil {
			continue
		}
		if !value.IsPositive() || !value.LessThan(fallbackCeiling) {
			continue
		}
		if !result.Found || value.GreaterThanOrEqual(result.Amount) {
			result = Found(value)
		}
	}
	return result
}
