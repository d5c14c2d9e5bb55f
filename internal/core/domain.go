package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on the wire and in the UI.
const DateLayout = "2006-01-02"

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Item struct {
		Name  string  `json:"name"`
		Qty   float64 `json:"qty"`
		Price Money   `json:"price"`
	}

	Purchase struct {
		ID    string `json:"id"`
		Date  Date   `json:"date"`
		Items []Item `json:"items"`
		Total *Money `json:"total,omitempty"` // optional, recomputed when absent
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrEmptyName       = errors.New("empty product name")
	ErrNoItems         = errors.New("at least one valid item is required")
	ErrInvalidImport   = errors.New("invalid import file: expected a JSON array")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar date in UTC.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate parses a YYYY-MM-DD string. Longer timestamps (RFC 3339) are
// accepted and truncated to their calendar date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns the YYYY-MM bucket used by the monthly chart.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(data))
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Subtotal is qty × unit price, rounded to the cent.
func (i Item) Subtotal() Money {
	return Money{Cents: int64(math.Round(i.Qty * float64(i.Price.Cents)))}
}

// Validate enforces the only acceptance rules items have: a name and a
// positive quantity.
func (i Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return ErrEmptyName
	}
	if i.Qty <= 0 || math.IsNaN(i.Qty) || math.IsInf(i.Qty, 0) {
		return ErrInvalidQuantity
	}
	return nil
}

// ComputedTotal sums the item subtotals, ignoring any stored total.
func (p Purchase) ComputedTotal() Money {
	var cents int64
	for _, it := range p.Items {
		cents += it.Subtotal().Cents
	}
	return Money{Cents: cents}
}

// Amount returns the stored total, or the computed one when the stored total
// is absent or zero.
func (p Purchase) Amount() Money {
	if p.Total != nil && p.Total.Cents != 0 {
		return *p.Total
	}
	return p.ComputedTotal()
}

// UnmarshalJSON accepts numeric ids, which is what the remote API emits.
func (p *Purchase) UnmarshalJSON(data []byte) error {
	type alias Purchase
	aux := struct {
		ID any `json:"id"`
		*alias
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.ID = idString(aux.ID)
	return nil
}

// WithTotal returns a copy carrying its computed total.
func (p Purchase) WithTotal() Purchase {
	total := p.ComputedTotal()
	p.Total = &total
	return p
}

// NormalizeItems trims names and drops items without a name or with a
// non-positive quantity. It fails with ErrNoItems when nothing is left.
func NormalizeItems(items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		it.Name = strings.TrimSpace(it.Name)
		if it.Validate() != nil {
			continue
		}
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil, ErrNoItems
	}
	return out, nil
}
