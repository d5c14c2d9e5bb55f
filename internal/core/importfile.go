package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type importItem struct {
	Name  string `json:"name"`
	Qty   any    `json:"qty"`
	Price any    `json:"price"`
}

type importPurchase struct {
	ID    any          `json:"id"`
	Date  any          `json:"date"`
	Items []importItem `json:"items"`
}

// DecodeImport parses an exported purchases file. The document must be a JSON
// array; entries without a valid date are skipped and items are normalised
// (numeric strings accepted, missing price is zero, blank names and
// non-positive quantities dropped). Stored totals are ignored and recomputed
// from the kept items.
func DecodeImport(data []byte) ([]Purchase, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, ErrInvalidImport
	}
	var raw []importPurchase
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	out := make([]Purchase, 0, len(raw))
	for _, rp := range raw {
		ds, ok := rp.Date.(string)
		if !ok {
			continue
		}
		date, err := ParseDate(ds)
		if err != nil {
			continue
		}
		p := Purchase{ID: idString(rp.ID), Date: date, Items: make([]Item, 0, len(rp.Items))}
		for _, ri := range rp.Items {
			qty, ok := toFloat(ri.Qty)
			if !ok {
				continue
			}
			price, _ := toFloat(ri.Price)
			it := Item{Name: strings.TrimSpace(ri.Name), Qty: qty, Price: MoneyFromFloat(price)}
			if it.Validate() != nil {
				continue
			}
			p.Items = append(p.Items, it)
		}
		out = append(out, p.WithTotal())
	}
	return out, nil
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
