package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courses/internal/api"
	"courses/internal/core"
	"courses/internal/local/memory"
	"courses/internal/services"
	"courses/internal/sheets"
)

type fakeExporter struct {
	got []core.Purchase
	err error
}

func (f *fakeExporter) ExportPurchases(_ context.Context, purchases []core.Purchase) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.got = purchases
	return "Achats!A1:G3", nil
}

// setup installs a local-only service and resets every flag variable.
func setup(t *testing.T) {
	t.Helper()
	n := 0
	svc = services.NewPurchaseService(api.NewClient("", time.Second), memory.New(),
		services.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		services.WithClock(func() core.Date { return core.NewDate(2025, 6, 15) }),
		services.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("local-%d", n)
		}),
	)
	asJSON = false
	listQuery, listOrder = "", "desc"
	addDate, addItems = "", nil
	totalsFrom, totalsTo = "", ""
	topN = core.DefaultTopProducts
	exportOut, exportToGS = "", false
	clearYes = false

	t.Cleanup(func() { svc = nil })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseItemArg(t *testing.T) {
	tests := []struct {
		raw     string
		want    core.Item
		wantErr bool
	}{
		{raw: "pain:2:1.20", want: core.Item{Name: "pain", Qty: 2, Price: core.Money{Cents: 120}}},
		{raw: "lait demi-écrémé:1:0,99", want: core.Item{Name: "lait demi-écrémé", Qty: 1, Price: core.Money{Cents: 99}}},
		{raw: "thé: earl grey:1.5:4", want: core.Item{Name: "thé: earl grey", Qty: 1.5, Price: core.Money{Cents: 400}}},
		{raw: "pain", wantErr: true},
		{raw: "pain:2", wantErr: true},
		{raw: "pain:zero:1", wantErr: true},
		{raw: "pain:1:-3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseItemArg(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddListAndStats(t *testing.T) {
	setup(t)

	out, err := execute(t, "add", "--date", "2025-05-02", "--item", "pain:2:1.20", "--item", "lait:1:0.99")
	require.NoError(t, err)
	assert.Contains(t, out, "local-1")
	assert.Contains(t, out, "3.39 €")

	addDate, addItems = "", nil
	_, err = execute(t, "add", "--item", "Pain:1:1.20")
	require.NoError(t, err)

	out, err = execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "pain — x2 @ 1.20 €")
	assert.Less(t, bytes.Index([]byte(out), []byte("2025-06-15")), bytes.Index([]byte(out), []byte("2025-05-02")))

	out, err = execute(t, "totals", "--from", "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, "Total: 1.20 € (1 achats)\n", out)

	out, err = execute(t, "top", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "pain")
	assert.Contains(t, out, "3")
	assert.NotContains(t, out, "lait")

	out, err = execute(t, "monthly", "--json")
	require.NoError(t, err)
	var months []core.MonthTotal
	require.NoError(t, json.Unmarshal([]byte(out), &months))
	require.Len(t, months, 2)
	assert.Equal(t, "2025-05", months[0].Month)
	assert.Equal(t, int64(339), months[0].Total.Cents)
}

func TestAddRejectsEmptyPurchase(t *testing.T) {
	setup(t)
	_, err := execute(t, "add", "--item", " :1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ajoutez au moins un produit valide")
}

func TestRemove(t *testing.T) {
	setup(t)
	_, err := svc.Save(context.Background(), core.NewDate(2025, 1, 1), []core.Item{{Name: "riz", Qty: 1, Price: core.Money{Cents: 200}}})
	require.NoError(t, err)

	_, err = execute(t, "rm", "local-1")
	require.NoError(t, err)

	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "Aucun achat\n", out)
}

func TestExportImportFile(t *testing.T) {
	setup(t)
	_, err := svc.Save(context.Background(), core.NewDate(2025, 2, 3), []core.Item{{Name: "kiwi", Qty: 3, Price: core.Money{Cents: 50}}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "export.json")
	_, err = execute(t, "export", "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"id\": \"local-1\"")

	clearYes = false
	_, err = execute(t, "clear", "--yes")
	require.NoError(t, err)

	out, err := execute(t, "import", path)
	require.NoError(t, err)
	assert.Equal(t, "Import OK (1 achats)\n", out)

	purchases, err := svc.Export(context.Background())
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, int64(150), purchases[0].Amount().Cents)
}

func TestImportInvalidFile(t *testing.T) {
	setup(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id": 1}`), 0o644))

	_, err := execute(t, "import", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidImport))
}

func TestClearRequiresYes(t *testing.T) {
	setup(t)
	_, err := svc.Save(context.Background(), core.NewDate(2025, 1, 1), []core.Item{{Name: "x", Qty: 1, Price: core.Money{Cents: 1}}})
	require.NoError(t, err)

	_, err = execute(t, "clear")
	require.Error(t, err)

	purchases, err := svc.Export(context.Background())
	require.NoError(t, err)
	assert.Len(t, purchases, 1)
}

func TestExportToSheets(t *testing.T) {
	setup(t)
	_, err := svc.Save(context.Background(), core.NewDate(2025, 1, 1), []core.Item{{Name: "x", Qty: 1, Price: core.Money{Cents: 1}}})
	require.NoError(t, err)

	fake := &fakeExporter{}
	orig := newExporter
	newExporter = func(context.Context) (sheets.PurchaseExporter, error) { return fake, nil }
	t.Cleanup(func() { newExporter = orig })

	out, err := execute(t, "export", "--sheets")
	require.NoError(t, err)
	assert.Contains(t, out, "Achats!A1:G3")
	assert.Len(t, fake.got, 1)

	newExporter = func(context.Context) (sheets.PurchaseExporter, error) { return nil, nil }
	exportToGS = false
	_, err = execute(t, "export", "--sheets")
	assert.Error(t, err)
}

type closeRecorder struct {
	purchaseService
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return c.purchaseService.Close()
}

func TestRunClosesStoreOnFailure(t *testing.T) {
	setup(t)
	rec := &closeRecorder{purchaseService: svc}
	svc = rec

	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"rm"})
	require.Error(t, run(context.Background()))
	assert.Equal(t, 1, rec.closed)
}
