package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func purchase(id string, d Date, items ...Item) Purchase {
	return Purchase{ID: id, Date: d, Items: items}
}

func item(name string, qty float64, cents int64) Item {
	return Item{Name: name, Qty: qty, Price: Money{Cents: cents}}
}

func samplePurchases() []Purchase {
	return []Purchase{
		purchase("1", NewDate(2025, 1, 10), item("Lait", 2, 120), item("Pain", 1, 250)),
		purchase("2", NewDate(2025, 1, 25), item("lait ", 3, 110)),
		purchase("3", NewDate(2025, 2, 3), item("Oeufs", 1, 300), item("pain", 2, 250)),
		purchase("4", NewDate(2025, 3, 15), item("Café", 1, 799)),
	}
}

func TestComputeTotals(t *testing.T) {
	ps := samplePurchases()

	all := ComputeTotals(ps, DateRange{})
	assert.Equal(t, 4, all.Count)
	assert.Equal(t, int64(490+330+800+799), all.Total.Cents)

	jan := ComputeTotals(ps, DateRange{From: NewDate(2025, 1, 1), To: NewDate(2025, 1, 31)})
	assert.Equal(t, 2, jan.Count)
	assert.Equal(t, int64(820), jan.Total.Cents)

	// bounds are inclusive
	edge := ComputeTotals(ps, DateRange{From: NewDate(2025, 2, 3), To: NewDate(2025, 2, 3)})
	assert.Equal(t, 1, edge.Count)

	openEnd := ComputeTotals(ps, DateRange{From: NewDate(2025, 2, 1)})
	assert.Equal(t, 2, openEnd.Count)

	none := ComputeTotals(nil, DateRange{})
	assert.Equal(t, Totals{}, none)
}

func TestComputeTotalsUsesStoredTotal(t *testing.T) {
	stored := Money{Cents: 5000}
	ps := []Purchase{{ID: "x", Date: NewDate(2025, 1, 1), Items: []Item{item("a", 1, 100)}, Total: &stored}}
	assert.Equal(t, int64(5000), ComputeTotals(ps, DateRange{}).Total.Cents)
}

func TestComputeTopProducts(t *testing.T) {
	top := ComputeTopProducts(samplePurchases(), 10)
	require.Len(t, top, 4)

	assert.Equal(t, "Lait", top[0].Name, "first spelling wins")
	assert.Equal(t, 5.0, top[0].Qty)
	assert.Equal(t, int64(570), top[0].Spent.Cents)

	assert.Equal(t, "Pain", top[1].Name)
	assert.Equal(t, 3.0, top[1].Qty)
	assert.Equal(t, int64(750), top[1].Spent.Cents)

	// ties keep first-seen order
	assert.Equal(t, "Oeufs", top[2].Name)
	assert.Equal(t, "Café", top[3].Name)
}

func TestComputeTopProductsLimit(t *testing.T) {
	assert.Len(t, ComputeTopProducts(samplePurchases(), 2), 2)
	assert.Len(t, ComputeTopProducts(samplePurchases(), 0), 4, "default limit is larger than the sample")
	assert.Empty(t, ComputeTopProducts(nil, 5))
}

func TestComputeMonthly(t *testing.T) {
	months := ComputeMonthly(samplePurchases())
	require.Len(t, months, 3)
	assert.Equal(t, MonthTotal{Month: "2025-01", Total: Money{Cents: 820}}, months[0])
	assert.Equal(t, MonthTotal{Month: "2025-02", Total: Money{Cents: 800}}, months[1])
	assert.Equal(t, MonthTotal{Month: "2025-03", Total: Money{Cents: 799}}, months[2])
}

func TestFilterHistory(t *testing.T) {
	ps := samplePurchases()

	desc := FilterHistory(ps, "", SortDesc)
	require.Len(t, desc, 4)
	assert.Equal(t, "4", desc[0].ID)
	assert.Equal(t, "1", desc[3].ID)

	asc := FilterHistory(ps, "", ParseSortOrder("ASC"))
	assert.Equal(t, "1", asc[0].ID)

	byName := FilterHistory(ps, "PAIN", SortAsc)
	require.Len(t, byName, 2)
	assert.Equal(t, "1", byName[0].ID)
	assert.Equal(t, "3", byName[1].ID)

	byDate := FilterHistory(ps, "2025-01", SortDesc)
	require.Len(t, byDate, 2)
	assert.Equal(t, "2", byDate[0].ID)

	assert.Empty(t, FilterHistory(ps, "chocolat", SortDesc))
	assert.Equal(t, "1", ps[0].ID, "input must not be reordered")
}

func TestParseSortOrder(t *testing.T) {
	assert.Equal(t, SortAsc, ParseSortOrder("asc"))
	assert.Equal(t, SortDesc, ParseSortOrder("desc"))
	assert.Equal(t, SortDesc, ParseSortOrder(""))
	assert.Equal(t, SortDesc, ParseSortOrder("sideways"))
}
