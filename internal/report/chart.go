package report

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
)

const chartSize = 512

// PieChart renders the category totals of s as a PNG pie chart and returns
// it base64 encoded for a data URI. A month without spending has no chart
// and yields an empty string.
func PieChart(s *Summary) (string, error) {
	values := make([]chart.Value, 0, len(s.Categories))
	for _, c := range s.Categories {
		if !c.Amount.IsPositive() {
			continue
		}
		amount, _ := c.Amount.Float64()
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s ($%s)", c.Category, c.Amount.StringFixed(2)),
			Value: amount,
		})
	}
	if len(values) == 0 {
		return "", nil
	}

	pie := chart.PieChart{
		Title:  s.Month.String(),
		Width:  chartSize,
		Height: chartSize,
		Values: values,
	}

	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return "", fmt.Errorf("rendering pie chart: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
