package core

import (
	"sort"
	"strings"
)

type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// ParseSortOrder maps "asc" to SortAsc and anything else to SortDesc.
func ParseSortOrder(s string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(s), string(SortAsc)) {
		return SortAsc
	}
	return SortDesc
}

// Matches reports whether q appears in an item name or in the date string,
// case-insensitively. An empty query matches everything.
func (p Purchase) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	if strings.Contains(p.Date.String(), q) {
		return true
	}
	for _, it := range p.Items {
		if strings.Contains(strings.ToLower(it.Name), q) {
			return true
		}
	}
	return false
}

// FilterHistory returns the purchases matching q, sorted by date. The input
// slice is left untouched.
func FilterHistory(purchases []Purchase, q string, order SortOrder) []Purchase {
	out := make([]Purchase, 0, len(purchases))
	for _, p := range purchases {
		if p.Matches(q) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if order == SortAsc {
			return out[a].Date.Before(out[b].Date.Time)
		}
		return out[a].Date.After(out[b].Date.Time)
	})
	return out
}
