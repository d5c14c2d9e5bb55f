package google

import (
	"strings"

	"courses/internal/core"
)

var header = []any{"ID", "Date", "Produit", "Quantité", "Prix unitaire", "Sous-total", "Total achat"}

// buildRows flattens purchases into one row per item. The purchase total is
// only written on its first row so the column sums to the overall spend. A
// purchase without items still gets a row.
func buildRows(purchases []core.Purchase) [][]any {
	rows := make([][]any, 0, len(purchases)+1)
	rows = append(rows, header)
	for _, p := range purchases {
		total := p.Amount().Euros()
		if len(p.Items) == 0 {
			rows = append(rows, []any{plainText(p.ID), p.Date.String(), "", "", "", "", total})
			continue
		}
		for i, it := range p.Items {
			row := []any{plainText(p.ID), p.Date.String(), plainText(it.Name), it.Qty, it.Price.Euros(), it.Subtotal().Euros(), ""}
			if i == 0 {
				row[6] = total
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// plainText keeps a user-typed value from being parsed as a formula when the
// sheet is written with USER_ENTERED. A leading apostrophe forces text and is
// not displayed.
func plainText(s string) string {
	if s != "" && strings.ContainsAny(s[:1], "=+-@") {
		return "'" + s
	}
	return s
}
