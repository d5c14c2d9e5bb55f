package core

import (
	"sort"
	"strings"
)

// DefaultTopProducts is the ranking size used when none is requested.
const DefaultTopProducts = 5

// Totals is the amount spent and purchase count over a date range.
type Totals struct {
	Total Money `json:"total"`
	Count int   `json:"count"`
}

// ProductStat aggregates one product across purchases.
type ProductStat struct {
	Name  string  `json:"name"`
	Qty   float64 `json:"qty"`
	Spent Money   `json:"spent"`
}

// MonthTotal is the amount spent during one YYYY-MM month.
type MonthTotal struct {
	Month string `json:"month"`
	Total Money  `json:"total"`
}

// DateRange is an inclusive range; a zero bound leaves that side open.
type DateRange struct {
	From Date
	To   Date
}

func (r DateRange) Contains(d Date) bool {
	if !r.From.IsZero() && d.Before(r.From.Time) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To.Time) {
		return false
	}
	return true
}

// ComputeTotals sums purchase amounts inside the range.
func ComputeTotals(purchases []Purchase, r DateRange) Totals {
	var out Totals
	for _, p := range purchases {
		if !r.Contains(p.Date) {
			continue
		}
		out.Total.Cents += p.Amount().Cents
		out.Count++
	}
	return out
}

// ComputeTopProducts groups items by case-insensitive trimmed name and ranks
// them by total quantity, highest first. The first spelling seen is kept for
// display and ties keep first-seen order. n <= 0 means DefaultTopProducts.
func ComputeTopProducts(purchases []Purchase, n int) []ProductStat {
	if n <= 0 {
		n = DefaultTopProducts
	}
	index := make(map[string]int)
	stats := make([]ProductStat, 0)
	for _, p := range purchases {
		for _, it := range p.Items {
			name := strings.TrimSpace(it.Name)
			key := strings.ToLower(name)
			i, ok := index[key]
			if !ok {
				i = len(stats)
				index[key] = i
				stats = append(stats, ProductStat{Name: name})
			}
			stats[i].Qty += it.Qty
			stats[i].Spent.Cents += it.Subtotal().Cents
		}
	}
	sort.SliceStable(stats, func(a, b int) bool { return stats[a].Qty > stats[b].Qty })
	if len(stats) > n {
		stats = stats[:n]
	}
	return stats
}

// ComputeMonthly buckets purchase amounts by month, in ascending month order.
func ComputeMonthly(purchases []Purchase) []MonthTotal {
	byMonth := make(map[string]int64)
	for _, p := range purchases {
		if p.Date.IsZero() {
			continue
		}
		byMonth[p.Date.MonthKey()] += p.Amount().Cents
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	out := make([]MonthTotal, 0, len(months))
	for _, m := range months {
		out = append(out, MonthTotal{Month: m, Total: Money{Cents: byMonth[m]}})
	}
	return out
}
