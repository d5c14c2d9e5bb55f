// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// the purchase form, history filters and date ranges.

package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"courses/internal/core"
)

// maxImportSize bounds the uploaded import file.
const maxImportSize = 5 << 20

// PurchaseForm is the decoded body of POST /purchases.
type PurchaseForm struct {
	Date  core.Date
	Items []core.Item
}

// ParsePurchaseForm reads the date and the repeated name/qty/price fields.
// Rows whose quantity or price cannot be parsed are skipped, like rows with
// an empty name; deciding whether anything valid is left is up to the
// service. An empty date stays zero and becomes today on save.
func ParsePurchaseForm(form url.Values) (PurchaseForm, error) {
	var out PurchaseForm

	if v := strings.TrimSpace(form.Get("date")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return PurchaseForm{}, fmt.Errorf("parse date %q: %w", v, err)
		}
		out.Date = d
	}

	names := form["name"]
	qtys := form["qty"]
	prices := form["price"]
	for i, raw := range names {
		name := strings.TrimSpace(sanitizeInput(raw))
		if name == "" {
			continue
		}
		qty, err := core.ParseQuantity(valueAt(qtys, i, "1"))
		if err != nil {
			continue
		}
		cents, err := core.ParseDecimalToCents(valueAt(prices, i, "0"))
		if err != nil {
			continue
		}
		out.Items = append(out.Items, core.Item{
			Name:  name,
			Qty:   qty,
			Price: core.Money{Cents: cents},
		})
	}
	return out, nil
}

// valueAt returns values[i], or def when the field is missing or blank.
func valueAt(values []string, i int, def string) string {
	if i >= len(values) || strings.TrimSpace(values[i]) == "" {
		return def
	}
	return values[i]
}

// HistoryParams holds the history filter from the query string.
type HistoryParams struct {
	Query string
	Order core.SortOrder
}

func ParseHistoryParams(query url.Values) HistoryParams {
	return HistoryParams{
		Query: strings.TrimSpace(sanitizeInput(query.Get("q"))),
		Order: core.ParseSortOrder(query.Get("order")),
	}
}

// ParseDateRange reads the optional from/to bounds. A bound that is present
// but not a date is an error.
func ParseDateRange(query url.Values) (core.DateRange, error) {
	var r core.DateRange
	if v := strings.TrimSpace(query.Get("from")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.DateRange{}, fmt.Errorf("parse from %q: %w", v, err)
		}
		r.From = d
	}
	if v := strings.TrimSpace(query.Get("to")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.DateRange{}, fmt.Errorf("parse to %q: %w", v, err)
		}
		r.To = d
	}
	return r, nil
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *Reply {
	if err := r.ParseForm(); err != nil {
		return Fail(http.StatusBadRequest, "Format de requête invalide")
	}
	return nil
}
