// Package extraction finds the total amount in the OCR text of a receipt.
//
// Several heuristics are available as Policy implementations. None of them
// fail: text without a usable amount yields NotFound.
package extraction

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// tokenPattern matches a monetary token: 1-3 digits, optional thousands
// groups separated by '.', ',' or a space, and an optional 2 digit fraction
// after '.' or ','.
const tokenPattern = `\b\d{1,3}(?:[., ]\d{3})*(?:[.,]\d{2})?\b`

var tokenRegex = regexp.MustCompile(tokenPattern)

// Result is the outcome of an extraction.
type Result struct {
	Amount decimal.Decimal
	Found  bool
}

// NotFound is the result when no total could be identified.
var NotFound = Result{}

// Found returns a result carrying amount.
func Found(amount decimal.Decimal) Result {
	return Result{Amount: amount, Found: true}
}

func (r Result) String() string {
	if !r.Found {
		return "Total amount not found"
	}
	return FormatAmount(r.Amount)
}

// FormatAmount renders amount with at least two decimals and never drops
// digits the receipt carried.
func FormatAmount(amount decimal.Decimal) string {
	if amount.Exponent() < -2 {
		return amount.String()
	}
	return amount.StringFixed(2)
}

// Policy selects the total amount from receipt text.
type Policy interface {
	// Name identifies the policy in configuration
	Name() string
	// Extract returns the total found in text, or NotFound
	Extract(text string) Result
}

// Options tune the policies that support it.
type Options struct {
	// SkipSubtotalLines stops the keyword policy from treating
	// "sous-total", "sub-total" and "subtotal" lines as total lines.
	SkipSubtotalLines bool
}

const (
	KeywordPolicyName     = "keyword"
	PrioritizedPolicyName = "prioritized"
	MaxPolicyName         = "max"
)

// Names lists the policy names accepted by New.
func Names() []string {
	return []string{KeywordPolicyName, PrioritizedPolicyName, MaxPolicyName}
}

// New returns the policy registered under name.
func New(name string, opts Options) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case KeywordPolicyName:
		return &KeywordLastWins{SkipSubtotalLines: opts.SkipSubtotalLines}, nil
	case PrioritizedPolicyName:
		return &KeywordPrioritized{}, nil
	case MaxPolicyName:
		return &MaxAmount{}, nil
	default:
		return nil, fmt.Errorf("unknown extraction policy %q (valid: %s)", name, strings.Join(Names(), ", "))
	}
}

// Policies returns every policy with default options.
func Policies() []Policy {
	return []Policy{&KeywordLastWins{}, &KeywordPrioritized{}, &MaxAmount{}}
}

// digitsOnly drops every rune that is not an ASCII digit.
func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// centsAmount reads a digit string as an amount whose last two digits are
// the fraction. Shorter strings keep whatever digits remain after the point,
// so "5" is 0.5.
func centsAmount(digits string) (decimal.Decimal, error) {
	if digits == "" {
		return decimal.Zero, fmt.Errorf("no digits")
	}
	split := len(digits) - 2
	if split < 0 {
		split = 0
	}
	whole := digits[:split]
	if whole == "" {
		whole = "0"
	}
	return decimal.NewFromString(whole + "." + digits[split:])
}

// lastSeparatorAmount treats a trailing '.' or ',' followed by two digits as
// the decimal point and every other separator as grouping.
func lastSeparatorAmount(token string) (decimal.Decimal, error) {
	n := len(token)
	if n >= 3 && (token[n-3] == '.' || token[n-3] == ',') {
		whole := digitsOnly(token[:n-3])
		if whole == "" {
			whole = "0"
		}
		return decimal.NewFromString(whole + "." + token[n-2:])
	}
	digits := digitsOnly(token)
	if digits == "" {
		return decimal.Zero, fmt.Errorf("no digits in %q", token)
	}
	return decimal.NewFromString(digits)
}
