package http

import (
	"html/template"
	"strconv"
	"strings"

	"courses/internal/core"
)

// sanitizeInput strips control characters (tabs and newlines excepted) and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// formatQty prints a quantity without trailing zeros: 2 -> "2", 1.5 -> "1.5".
func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// itemLine renders one history line, e.g. "pain — x2 @ 1.20 €".
func itemLine(it core.Item) string {
	return it.Name + " — x" + formatQty(it.Qty) + " @ " + it.Price.String()
}

// chartBar is one month column of the spending chart.
type chartBar struct {
	Month   string
	Total   core.Money
	Percent int
}

// buildChartBars scales monthly totals against the largest month. Months
// with a non-zero total always get at least a sliver.
func buildChartBars(months []core.MonthTotal) []chartBar {
	var maxCents int64
	for _, m := range months {
		if m.Total.Cents > maxCents {
			maxCents = m.Total.Cents
		}
	}
	bars := make([]chartBar, 0, len(months))
	for _, m := range months {
		pct := 0
		if maxCents > 0 && m.Total.Cents > 0 {
			pct = int(m.Total.Cents * 100 / maxCents)
			if pct == 0 {
				pct = 1
			}
		}
		bars = append(bars, chartBar{Month: m.Month, Total: m.Total, Percent: pct})
	}
	return bars
}

var templateFuncs = template.FuncMap{
	"qty":       formatQty,
	"itemLine":  itemLine,
	"chartBars": buildChartBars,
}
