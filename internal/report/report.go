// Package report aggregates expenses into monthly spending summaries.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// monthLayout formats a month as "<FullMonthName> <Year>"
const monthLayout = "January 2006"

// Uncategorized labels expenses recorded without a category
const Uncategorized = "Uncategorized"

// Month identifies a calendar month
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month t falls in
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses "<FullMonthName> <Year>", e.g. "October 2026"
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, strings.Join(strings.Fields(s), " "))
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q, expected a month like %q", s, "October 2026")
	}
	return MonthOf(t), nil
}

func (m Month) String() string {
	return m.Start().Format(monthLayout)
}

// Start is midnight UTC on the first day of the month
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the start of the following month
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, 0)
}

// Contains reports whether the calendar date of t is in the month
func (m Month) Contains(t time.Time) bool {
	return t.Year() == m.Year && t.Month() == m.Month
}

// Item is one expense as seen by the report
type Item struct {
	Date     time.Time
	Amount   decimal.Decimal
	Category string
}

// CategoryTotal is the amount spent in one category
type CategoryTotal struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Summary is the spending report of a month
type Summary struct {
	Month      Month           `json:"-"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	Categories []CategoryTotal `json:"categories"`
}

// Build summarizes the items dated within month. Categories are ordered
// by amount, largest first, then by name.
func Build(month Month, items []Item) *Summary {
	summary := &Summary{
		Month:      month,
		Total:      decimal.Zero,
		Categories: []CategoryTotal{},
	}

	byCategory := make(map[string]decimal.Decimal)
	for _, e := range items {
		if !month.Contains(e.Date) {
			continue
		}
		category := strings.TrimSpace(e.Category)
		if category == "" {
			category = Uncategorized
		}
		byCategory[category] = byCategory[category].Add(e.Amount)
		summary.Total = summary.Total.Add(e.Amount)
		summary.Count++
	}

	for category, amount := range byCategory {
		summary.Categories = append(summary.Categories, CategoryTotal{Category: category, Amount: amount})
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		a, b := summary.Categories[i], summary.Categories[j]
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		return a.Category < b.Category
	})

	return summary
}

// Text is the one line description of the month's spending
func (s *Summary) Text() string {
	if s.Count == 0 {
		return fmt.Sprintf("No expenses recorded for %s.", s.Month)
	}
	return fmt.Sprintf("Total spent in %s: $%s", s.Month, s.Total.StringFixed(2))
}

// Months lists the distinct months of the items, newest first
func Months(items []Item) []Month {
	seen := make(map[Month]bool)
	months := make([]Month, 0)
	for _, e := range items {
		m := MonthOf(e.Date)
		if !seen[m] {
			seen[m] = true
			months = append(months, m)
		}
	}
	sort.Slice(months, func(i, j int) bool {
		return months[i].Start().After(months[j].Start())
	})
	return months
}
