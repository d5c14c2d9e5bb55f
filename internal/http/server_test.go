package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courses/internal/api"
	"courses/internal/core"
	applog "courses/internal/log"
	"courses/internal/local/memory"
	"courses/internal/middleware/ratelimit"
	"courses/internal/services"
)

type fakeExporter struct {
	exported []core.Purchase
	err      error
}

func (f *fakeExporter) ExportPurchases(_ context.Context, purchases []core.Purchase) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.exported = purchases
	return "Achats!A1:G" + fmt.Sprint(len(purchases)+1), nil
}

// newTestServer runs in local-only mode over an in-memory store.
func newTestServer(t *testing.T, opts Options) (*Server, *services.PurchaseService) {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := 0
	svc := services.NewPurchaseService(api.NewClient("", time.Second), memory.New(),
		services.WithLogger(quiet),
		services.WithClock(func() core.Date { return core.NewDate(2025, 6, 15) }),
		services.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("local-%d", n)
		}),
	)
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Output: io.Discard})
	}
	srv := NewServer(":0", svc, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, svc
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func uploadRequest(t *testing.T, field, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "import.json")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func seedPurchase(t *testing.T, svc *services.PurchaseService, date core.Date, items ...core.Item) core.Purchase {
	t.Helper()
	p, err := svc.Save(context.Background(), date, items)
	require.NoError(t, err)
	return p
}

func TestIndexAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Nouvel achat")
	assert.Contains(t, body, "Aucun achat")
	assert.Contains(t, body, "Aucun produit")
	assert.Contains(t, body, "0.00 €")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var ready map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ready))
	assert.Equal(t, "ready", ready["status"])
	assert.Equal(t, applog.ModeLocal, ready["mode"])
}

type closedStore struct{ *memory.Store }

func (closedStore) Ping(context.Context) error { return errors.New("redis: client is closed") }

func TestReadyzReportsLocalStore(t *testing.T) {
	svc := services.NewPurchaseService(api.NewClient("", time.Second), closedStore{memory.New()},
		services.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	srv := NewServer(":0", svc, Options{Logger: applog.New(applog.Config{Output: io.Discard})})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var ready map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ready))
	assert.Equal(t, "not_ready", ready["status"])
	assert.Contains(t, rr.Body.String(), "redis: client is closed")
}

func TestUnknownPathIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStaticAssets(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), ".purchase")
}

func TestCreatePurchase(t *testing.T) {
	srv, svc := newTestServer(t, Options{})

	form := url.Values{
		"date":  {"2025-06-01"},
		"name":  {"pain", "", "lait"},
		"qty":   {"2", "1", "0"},
		"price": {"1.20", "3", "0.99"},
	}
	rr := serve(srv, postForm("/purchases", form))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	trigger := rr.Header().Get("HX-Trigger")
	assert.Contains(t, trigger, EventPurchasesChanged)
	assert.Contains(t, trigger, "form:reset")

	purchases, err := svc.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, "2025-06-01", purchases[0].Date.String())
	require.Len(t, purchases[0].Items, 1)
	assert.Equal(t, int64(240), purchases[0].Amount().Cents)

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/ui/history", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pain — x2 @ 1.20 €")
	assert.Contains(t, rr.Body.String(), "2.40 €")
	assert.Contains(t, rr.Body.String(), "Supprimer")
}

func TestCreatePurchase_DefaultsDateToToday(t *testing.T) {
	srv, svc := newTestServer(t, Options{})

	rr := serve(srv, postForm("/purchases", url.Values{"name": {"pommes"}, "qty": {"1,5"}, "price": {"2"}}))
	require.Equal(t, http.StatusCreated, rr.Code)

	purchases, err := svc.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, "2025-06-15", purchases[0].Date.String())
	assert.Equal(t, 1.5, purchases[0].Items[0].Qty)
}

func TestCreatePurchase_Rejected(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	tests := []struct {
		name     string
		form     url.Values
		wantBody string
	}{
		{
			name:     "no valid items",
			form:     url.Values{"date": {"2025-06-01"}, "name": {" "}, "qty": {"1"}, "price": {"1"}},
			wantBody: "Ajoutez au moins un produit valide",
		},
		{
			name:     "no items at all",
			form:     url.Values{"date": {"2025-06-01"}},
			wantBody: "Ajoutez au moins un produit valide",
		},
		{
			name:     "bad date",
			form:     url.Values{"date": {"01/06/2025"}, "name": {"pain"}, "qty": {"1"}, "price": {"1"}},
			wantBody: "Date invalide",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(srv, postForm("/purchases", tt.form))
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantBody)
			assert.Empty(t, rr.Header().Get("HX-Trigger"))
		})
	}
}

func TestDeletePurchase(t *testing.T) {
	for _, tc := range []struct {
		name string
		req  func(id string) *http.Request
	}{
		{"DELETE", func(id string) *http.Request {
			return httptest.NewRequest(http.MethodDelete, "/purchases/"+id, nil)
		}},
		{"POST fallback", func(id string) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/purchases/"+id+"/delete", nil)
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv, svc := newTestServer(t, Options{})
			p := seedPurchase(t, svc, core.NewDate(2025, 5, 2), core.Item{Name: "riz", Qty: 1, Price: core.Money{Cents: 250}})

			rr := serve(srv, tc.req(p.ID))
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Contains(t, rr.Header().Get("HX-Trigger"), EventPurchasesChanged)

			rr = serve(srv, httptest.NewRequest(http.MethodGet, "/ui/history", nil))
			assert.Contains(t, rr.Body.String(), "Aucun achat")
		})
	}
}

func TestHistoryFilterAndOrder(t *testing.T) {
	srv, svc := newTestServer(t, Options{})
	seedPurchase(t, svc, core.NewDate(2025, 1, 10), core.Item{Name: "Café", Qty: 1, Price: core.Money{Cents: 450}})
	seedPurchase(t, svc, core.NewDate(2025, 3, 5), core.Item{Name: "thé", Qty: 2, Price: core.Money{Cents: 300}})
	seedPurchase(t, svc, core.NewDate(2025, 2, 1), core.Item{Name: "café moulu", Qty: 1, Price: core.Money{Cents: 600}})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/ui/history?q=caf&order=asc", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.NotContains(t, body, "thé")
	first := strings.Index(body, "2025-01-10")
	second := strings.Index(body, "2025-02-01")
	require.True(t, first >= 0 && second >= 0, body)
	assert.Less(t, first, second)

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/ui/history", nil))
	body = rr.Body.String()
	assert.Less(t, strings.Index(body, "2025-03-05"), strings.Index(body, "2025-01-10"))
}

func TestTotalsPartial(t *testing.T) {
	srv, svc := newTestServer(t, Options{})
	seedPurchase(t, svc, core.NewDate(2025, 1, 10), core.Item{Name: "pain", Qty: 1, Price: core.Money{Cents: 100}})
	seedPurchase(t, svc, core.NewDate(2025, 2, 10), core.Item{Name: "pain", Qty: 2, Price: core.Money{Cents: 100}})
	seedPurchase(t, svc, core.NewDate(2025, 3, 10), core.Item{Name: "pain", Qty: 4, Price: core.Money{Cents: 100}})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/ui/totals", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "7.00 €")
	assert.Contains(t, rr.Body.String(), "3 achats")

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/ui/totals?from=2025-02-01&to=2025-02-28", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "2.00 €")
	assert.Contains(t, rr.Body.String(), "1 achat")

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/ui/totals?from=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatsCacheInvalidatedOnMutation(t *testing.T) {
	srv, _ := newTestServer(t, Options{StatsCacheTTL: time.Hour})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/ui/totals", nil))
	assert.Contains(t, rr.Body.String(), "0.00 €")
	assert.Equal(t, 1, srv.totalsCache.Size())

	rr = serve(srv, postForm("/purchases", url.Values{"name": {"œufs"}, "qty": {"1"}, "price": {"3.10"}}))
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Zero(t, srv.totalsCache.Size())

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/ui/totals", nil))
	assert.Contains(t, rr.Body.String(), "3.10 €")
}

func TestTopProductsPartial(t *testing.T) {
	srv, svc := newTestServer(t, Options{TopProductsLimit: 2})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/ui/top-products", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Aucun produit")

	srv.invalidateStats()
	seedPurchase(t, svc, core.NewDate(2025, 1, 1),
		core.Item{Name: "Lait", Qty: 3, Price: core.Money{Cents: 100}},
		core.Item{Name: "pain", Qty: 1, Price: core.Money{Cents: 100}},
		core.Item{Name: "beurre", Qty: 2, Price: core.Money{Cents: 100}},
	)
	seedPurchase(t, svc, core.NewDate(2025, 1, 2), core.Item{Name: "lait ", Qty: 1, Price: core.Money{Cents: 100}})

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/ui/top-products", nil))
	body := rr.Body.String()
	assert.Contains(t, body, "Lait")
	assert.Contains(t, body, ">4<")
	assert.Contains(t, body, "beurre")
	assert.NotContains(t, body, "pain")
}

func TestChartPartial(t *testing.T) {
	srv, svc := newTestServer(t, Options{})
	seedPurchase(t, svc, core.NewDate(2025, 1, 10), core.Item{Name: "a", Qty: 1, Price: core.Money{Cents: 1000}})
	seedPurchase(t, svc, core.NewDate(2025, 2, 10), core.Item{Name: "b", Qty: 1, Price: core.Money{Cents: 500}})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/ui/chart", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "2025-01")
	assert.Contains(t, body, "2025-02")
	assert.Contains(t, body, "height: 100%")
	assert.Contains(t, body, "height: 50%")
}

func TestExport(t *testing.T) {
	srv, svc := newTestServer(t, Options{})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/export", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", rr.Body.String())

	seedPurchase(t, svc, core.NewDate(2025, 4, 1), core.Item{Name: "pâtes", Qty: 2, Price: core.Money{Cents: 95}})

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/export", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), `filename="courses-export.json"`)
	assert.True(t, strings.HasPrefix(rr.Body.String(), "[\n  {\n    \"id\": \"local-1\""), rr.Body.String())

	var decoded []core.Purchase
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, int64(190), decoded[0].Amount().Cents)
}

func TestExportSheets(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rr := serve(srv, httptest.NewRequest(http.MethodPost, "/export/sheets", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	exporter := &fakeExporter{}
	srv, svc := newTestServer(t, Options{Exporter: exporter})
	seedPurchase(t, svc, core.NewDate(2025, 4, 1), core.Item{Name: "sel", Qty: 1, Price: core.Money{Cents: 80}})

	rr = serve(srv, httptest.NewRequest(http.MethodPost, "/export/sheets", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, exporter.exported, 1)
	assert.Contains(t, rr.Header().Get("HX-Trigger"), "show-notification")

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rr.Body.String(), "Exporter vers Google Sheets")
}

func TestImport(t *testing.T) {
	srv, svc := newTestServer(t, Options{})
	seedPurchase(t, svc, core.NewDate(2025, 1, 1), core.Item{Name: "old", Qty: 1, Price: core.Money{Cents: 100}})

	payload := `[
		{"id": "a", "date": "2025-02-03", "items": [{"name": "kiwi", "qty": 3, "price": 0.5}]},
		{"date": "not a date", "items": []}
	]`
	rr := serve(srv, uploadRequest(t, "file", payload))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Header().Get("HX-Trigger"), EventPurchasesChanged)

	purchases, err := svc.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, "a", purchases[0].ID)
	assert.Equal(t, int64(150), purchases[0].Amount().Cents)
}

func TestImport_Errors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := serve(srv, uploadRequest(t, "file", `{"not": "an array"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Fichier invalide")

	rr = serve(srv, uploadRequest(t, "file", `not json`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Fichier invalide")

	rr = serve(srv, uploadRequest(t, "other", `[]`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Erreur de lecture du fichier")
}

func TestClear(t *testing.T) {
	srv, svc := newTestServer(t, Options{})
	seedPurchase(t, svc, core.NewDate(2025, 1, 1), core.Item{Name: "x", Qty: 1, Price: core.Money{Cents: 100}})

	rr := serve(srv, httptest.NewRequest(http.MethodPost, "/clear", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("HX-Trigger"), EventPurchasesChanged)

	purchases, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, purchases)
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/.env", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "suspicious_requests_total 1")
}

func TestRateLimitOnMutations(t *testing.T) {
	srv, _ := newTestServer(t, Options{RateLimit: ratelimit.Config{RequestsPerMinute: 1}})

	rr := serve(srv, httptest.NewRequest(http.MethodPost, "/clear", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(srv, httptest.NewRequest(http.MethodPost, "/clear", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// reads are never limited
	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/ui/totals", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
