package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"courses/internal/core"
)

var (
	listQuery  string
	listOrder  string
	addDate    string
	addItems   []string
	totalsFrom string
	totalsTo   string
	topN       int
	exportOut  string
	exportToGS bool
	clearYes   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List purchases, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a purchase",
	Long: `Record a purchase made of one or more items.

Each --item is name:qty:price, for example:
  coursesctl add --date 2025-06-01 --item pain:2:1.20 --item "lait demi-écrémé:1:0,99"`,
	Args: cobra.NoArgs,
	RunE: runAdd,
}

var rmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a purchase",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var totalsCmd = &cobra.Command{
	Use:   "totals",
	Short: "Amount spent over an optional date range",
	Args:  cobra.NoArgs,
	RunE:  runTotals,
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Most purchased products by quantity",
	Args:  cobra.NoArgs,
	RunE:  runTop,
}

var monthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Amount spent per month",
	Args:  cobra.NoArgs,
	RunE:  runMonthly,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every purchase as JSON, or to Google Sheets",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace all purchases with the content of an export file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every purchase, remote and local",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	listCmd.Flags().StringVarP(&listQuery, "q", "q", "", "Filter on product name or date")
	listCmd.Flags().StringVar(&listOrder, "order", "desc", "Sort by date: asc or desc")

	addCmd.Flags().StringVar(&addDate, "date", "", "Purchase date YYYY-MM-DD (default: today)")
	addCmd.Flags().StringArrayVarP(&addItems, "item", "i", nil, "Item as name:qty:price (repeatable)")
	_ = addCmd.MarkFlagRequired("item")

	totalsCmd.Flags().StringVar(&totalsFrom, "from", "", "First day included, YYYY-MM-DD")
	totalsCmd.Flags().StringVar(&totalsTo, "to", "", "Last day included, YYYY-MM-DD")

	topCmd.Flags().IntVarP(&topN, "n", "n", core.DefaultTopProducts, "Number of products")

	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Write to file instead of stdout")
	exportCmd.Flags().BoolVar(&exportToGS, "sheets", false, "Push to the configured Google Sheet")

	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "Confirm deletion of all data")
}

func runList(cmd *cobra.Command, args []string) error {
	purchases, err := svc.History(cmd.Context(), listQuery, core.ParseSortOrder(listOrder))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, purchases)
	}
	if len(purchases) == 0 {
		fmt.Fprintln(out, "Aucun achat")
		return nil
	}
	for _, p := range purchases {
		fmt.Fprintf(out, "%s  %s  %s\n", p.Date, p.Amount(), p.ID)
		for _, it := range p.Items {
			fmt.Fprintf(out, "    %s — x%s @ %s\n", it.Name, formatQty(it.Qty), it.Price)
		}
	}
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	var date core.Date
	if strings.TrimSpace(addDate) != "" {
		d, err := core.ParseDate(addDate)
		if err != nil {
			return err
		}
		date = d
	}

	items := make([]core.Item, 0, len(addItems))
	for _, raw := range addItems {
		it, err := parseItemArg(raw)
		if err != nil {
			return err
		}
		items = append(items, it)
	}

	p, err := svc.Save(cmd.Context(), date, items)
	if errors.Is(err, core.ErrNoItems) {
		return errors.New("ajoutez au moins un produit valide")
	}
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Achat %s du %s enregistré: %s\n", p.ID, p.Date, p.Amount())
	return nil
}

// parseItemArg splits name:qty:price from the right so names may contain
// colons.
func parseItemArg(raw string) (core.Item, error) {
	priceSep := strings.LastIndex(raw, ":")
	if priceSep < 0 {
		return core.Item{}, fmt.Errorf("item %q: expected name:qty:price", raw)
	}
	qtySep := strings.LastIndex(raw[:priceSep], ":")
	if qtySep < 0 {
		return core.Item{}, fmt.Errorf("item %q: expected name:qty:price", raw)
	}
	qty, err := core.ParseQuantity(raw[qtySep+1 : priceSep])
	if err != nil {
		return core.Item{}, fmt.Errorf("item %q: %w", raw, err)
	}
	cents, err := core.ParseDecimalToCents(raw[priceSep+1:])
	if err != nil {
		return core.Item{}, fmt.Errorf("item %q: %w", raw, err)
	}
	return core.Item{
		Name:  strings.TrimSpace(raw[:qtySep]),
		Qty:   qty,
		Price: core.Money{Cents: cents},
	}, nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	if err := svc.Remove(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Achat %s supprimé\n", args[0])
	return nil
}

func runTotals(cmd *cobra.Command, args []string) error {
	var rng core.DateRange
	if totalsFrom != "" {
		d, err := core.ParseDate(totalsFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		rng.From = d
	}
	if totalsTo != "" {
		d, err := core.ParseDate(totalsTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		rng.To = d
	}

	totals, err := svc.Totals(cmd.Context(), rng)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), totals)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Total: %s (%d achats)\n", totals.Total, totals.Count)
	return nil
}

func runTop(cmd *cobra.Command, args []string) error {
	top, err := svc.TopProducts(cmd.Context(), topN)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, top)
	}
	if len(top) == 0 {
		fmt.Fprintln(out, "Aucun produit")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUIT\tQTÉ\tDÉPENSÉ")
	for _, s := range top {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, formatQty(s.Qty), s.Spent)
	}
	return tw.Flush()
}

func runMonthly(cmd *cobra.Command, args []string) error {
	months, err := svc.Monthly(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, months)
	}
	if len(months) == 0 {
		fmt.Fprintln(out, "Aucun achat")
		return nil
	}
	for _, m := range months {
		fmt.Fprintf(out, "%s  %s\n", m.Month, m.Total)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	purchases, err := svc.Export(ctx)
	if err != nil {
		return err
	}

	if exportToGS {
		exporter, err := newExporter(ctx)
		if err != nil {
			return fmt.Errorf("open google sheets: %w", err)
		}
		if exporter == nil {
			return errors.New("google sheets export is not configured (GOOGLE_SPREADSHEET_ID)")
		}
		ref, err := exporter.ExportPurchases(ctx, purchases)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d achats exportés vers %s\n", len(purchases), ref)
		return nil
	}

	body, err := json.MarshalIndent(purchases, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	body = append(body, '\n')
	if exportOut == "" || exportOut == "-" {
		_, err = cmd.OutOrStdout().Write(body)
		return err
	}
	if err := os.WriteFile(exportOut, body, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d achats exportés vers %s\n", len(purchases), exportOut)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("erreur de lecture du fichier: %w", err)
	}
	n, err := svc.Import(cmd.Context(), data)
	if errors.Is(err, core.ErrInvalidImport) {
		return fmt.Errorf("fichier invalide: %w", err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Import OK (%d achats)\n", n)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		return errors.New("refusing to delete all data without --yes")
	}
	if err := svc.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Toutes les données ont été supprimées")
	return nil
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
