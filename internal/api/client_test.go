package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courses/internal/core"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second)
}

func TestDisabledClient(t *testing.T) {
	c := NewClient("", time.Second)
	assert.False(t, c.Enabled())
	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = c.ListPurchases(context.Background(), "", core.SortDesc)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestListPurchases(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/purchases", r.URL.Path)
		assert.Equal(t, "lait", r.URL.Query().Get("q"))
		assert.Equal(t, "asc", r.URL.Query().Get("order"))
		_, _ = io.WriteString(w, `[{"id": 12, "date": "2025-01-02", "total": 3.5, "items": [{"name": "Lait", "qty": 2, "price": 1.75}]}]`)
	})

	got, err := c.ListPurchases(context.Background(), " lait ", core.SortAsc)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "12", got[0].ID)
	assert.Equal(t, "2025-01-02", got[0].Date.String())
	assert.Equal(t, int64(350), got[0].Amount().Cents)
	assert.Equal(t, int64(175), got[0].Items[0].Price.Cents)
}

func TestCreatePurchase(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2025-04-05", body["date"])
		items := body["items"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, 2.5, items[0].(map[string]any)["price"])
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"ok": true, "id": 42}`)
	})

	id, err := c.CreatePurchase(context.Background(), core.NewDate(2025, 4, 5), []core.Item{{Name: "Pain", Qty: 1, Price: core.Money{Cents: 250}}})
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestDeletePurchaseNotFound(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/purchases/9", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"not found"}`)
	})

	err := c.DeletePurchase(context.Background(), "9")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Body, "not found")
}

func TestStats(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/stats/total":
			assert.Equal(t, "2025-01-01", r.URL.Query().Get("from"))
			assert.Equal(t, "", r.URL.Query().Get("to"))
			_, _ = io.WriteString(w, `{"total": 12.34, "count": 3}`)
		case "/api/stats/top-products":
			assert.Equal(t, "3", r.URL.Query().Get("limit"))
			_, _ = io.WriteString(w, `[{"name": "lait", "qty": 5, "spent": 6}]`)
		default:
			http.NotFound(w, r)
		}
	})

	totals, err := c.Totals(context.Background(), core.DateRange{From: core.NewDate(2025, 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, core.Totals{Total: core.Money{Cents: 1234}, Count: 3}, totals)

	top, err := c.TopProducts(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []core.ProductStat{{Name: "lait", Qty: 5, Spent: core.Money{Cents: 600}}}, top)
}

func TestImportSendsEmptyArray(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "[]", string(b))
		_, _ = io.WriteString(w, `{"ok": true}`)
	})
	require.NoError(t, c.Import(context.Background(), nil))
}

func TestServerErrorIsStatusError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.Export(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.False(t, IsNotFound(err))
}
