package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"courses/internal/api"
	"courses/internal/core"
	"courses/internal/local"
	applog "courses/internal/log"
)

// Remote is the subset of the purchases API the service relies on.
type Remote interface {
	Ping(ctx context.Context) error
	ListPurchases(ctx context.Context, q string, order core.SortOrder) ([]core.Purchase, error)
	CreatePurchase(ctx context.Context, date core.Date, items []core.Item) (string, error)
	DeletePurchase(ctx context.Context, id string) error
	Totals(ctx context.Context, r core.DateRange) (core.Totals, error)
	TopProducts(ctx context.Context, limit int) ([]core.ProductStat, error)
	Export(ctx context.Context) ([]core.Purchase, error)
	Import(ctx context.Context, purchases []core.Purchase) error
}

// SyncPublisher announces purchases saved locally so a worker can push them
// to the API later.
type SyncPublisher interface {
	PublishPurchaseSync(ctx context.Context, id string) error
}

// PurchaseService answers every operation from the remote API and silently
// falls back to the local store when the API fails.
type PurchaseService struct {
	remote    Remote
	store     local.Store
	publisher SyncPublisher
	logger    *slog.Logger
	newID     func() string
	today     func() core.Date
}

type Option func(*PurchaseService)

func WithPublisher(p SyncPublisher) Option {
	return func(s *PurchaseService) { s.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *PurchaseService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *PurchaseService) { s.newID = fn }
}

func WithClock(today func() core.Date) Option {
	return func(s *PurchaseService) { s.today = today }
}

func NewPurchaseService(remote Remote, store local.Store, opts ...Option) *PurchaseService {
	s := &PurchaseService{
		remote: remote,
		store:  store,
		logger: slog.Default(),
		newID:  uuid.NewString,
		today:  core.Today,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PurchaseService) fallback(ctx context.Context, op string, err error) {
	if errors.Is(err, api.ErrDisabled) {
		s.logger.DebugContext(ctx, "Remote API disabled, using local storage", applog.FieldOperation, op)
		return
	}
	s.logger.WarnContext(ctx, "API not available, falling back to local storage",
		applog.FieldOperation, op,
		applog.FieldError, err)
}

func (s *PurchaseService) load(ctx context.Context) ([]core.Purchase, string, error) {
	purchases, err := s.remote.ListPurchases(ctx, "", core.SortDesc)
	if err == nil {
		return purchases, applog.ModeRemote, nil
	}
	s.fallback(ctx, applog.OpLoad, err)
	purchases, err = s.store.Load(ctx)
	if err != nil {
		return nil, applog.ModeLocal, fmt.Errorf("load local purchases: %w", err)
	}
	return purchases, applog.ModeLocal, nil
}

// Load returns every purchase, newest first when served by the API.
func (s *PurchaseService) Load(ctx context.Context) ([]core.Purchase, error) {
	purchases, _, err := s.load(ctx)
	return purchases, err
}

// Save accepts a purchase from user input. Invalid items are dropped and an
// empty date means today; ErrNoItems is returned when nothing valid remains.
func (s *PurchaseService) Save(ctx context.Context, date core.Date, items []core.Item) (core.Purchase, error) {
	items, err := core.NormalizeItems(items)
	if err != nil {
		return core.Purchase{}, err
	}
	if date.IsZero() {
		date = s.today()
	}
	p := core.Purchase{Date: date, Items: items}.WithTotal()

	id, err := s.remote.CreatePurchase(ctx, date, items)
	if err == nil {
		p.ID = id
		s.logger.InfoContext(ctx, "Purchase saved",
			applog.NewFields().WithMode(applog.ModeRemote).WithPurchase(p.ID, p.Date.String(), len(p.Items), p.Total.Cents).ToSlice()...)
		return p, nil
	}
	s.fallback(ctx, applog.OpSave, err)

	p.ID = s.newID()
	if err := local.Append(ctx, s.store, p); err != nil {
		return core.Purchase{}, fmt.Errorf("save local purchase: %w", err)
	}
	s.logger.InfoContext(ctx, "Purchase saved",
		applog.NewFields().WithMode(applog.ModeLocal).WithPurchase(p.ID, p.Date.String(), len(p.Items), p.Total.Cents).ToSlice()...)

	if s.publisher != nil {
		if err := s.publisher.PublishPurchaseSync(ctx, p.ID); err != nil {
			// the periodic drain still picks it up
			s.logger.ErrorContext(ctx, "Failed to publish sync message", applog.FieldPurchaseID, p.ID, applog.FieldError, err)
		}
	}
	return p, nil
}

// Remove deletes a purchase. A purchase missing from the local store is not
// an error, and neither is a 404 from the API.
func (s *PurchaseService) Remove(ctx context.Context, id string) error {
	err := s.remote.DeletePurchase(ctx, id)
	switch {
	case err == nil:
		return nil
	case api.IsNotFound(err):
		// saved while offline and never pushed
		s.logger.DebugContext(ctx, "Purchase unknown to the API, removing locally", applog.FieldPurchaseID, id)
	default:
		s.fallback(ctx, applog.OpRemove, err)
	}

	if err := local.Remove(ctx, s.store, id); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			s.logger.DebugContext(ctx, "Purchase not present in local storage", applog.FieldPurchaseID, id)
			return nil
		}
		return fmt.Errorf("remove local purchase: %w", err)
	}
	return nil
}

// Totals sums purchases dated within r, bounds included.
func (s *PurchaseService) Totals(ctx context.Context, r core.DateRange) (core.Totals, error) {
	totals, err := s.remote.Totals(ctx, r)
	if err == nil {
		return totals, nil
	}
	s.fallback(ctx, applog.OpTotals, err)

	purchases, err := s.Load(ctx)
	if err != nil {
		return core.Totals{}, err
	}
	return core.ComputeTotals(purchases, r), nil
}

// TopProducts ranks products by quantity bought; n <= 0 uses the default.
func (s *PurchaseService) TopProducts(ctx context.Context, n int) ([]core.ProductStat, error) {
	if n <= 0 {
		n = core.DefaultTopProducts
	}
	top, err := s.remote.TopProducts(ctx, n)
	if err == nil {
		return top, nil
	}
	s.fallback(ctx, applog.OpTop, err)

	purchases, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return core.ComputeTopProducts(purchases, n), nil
}

// Monthly is always computed client-side from the loaded purchases.
func (s *PurchaseService) Monthly(ctx context.Context) ([]core.MonthTotal, error) {
	purchases, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return core.ComputeMonthly(purchases), nil
}

// History filters and sorts the loaded purchases.
func (s *PurchaseService) History(ctx context.Context, q string, order core.SortOrder) ([]core.Purchase, error) {
	purchases, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return core.FilterHistory(purchases, q, order), nil
}

// Export returns the full purchase list for download.
func (s *PurchaseService) Export(ctx context.Context) ([]core.Purchase, error) {
	purchases, err := s.remote.Export(ctx)
	if err == nil {
		if purchases == nil {
			purchases = []core.Purchase{}
		}
		return purchases, nil
	}
	s.fallback(ctx, applog.OpExport, err)

	purchases, err = s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load local purchases: %w", err)
	}
	return purchases, nil
}

// Import decodes an exported file and replaces every purchase with its
// content. It returns the number of purchases imported.
func (s *PurchaseService) Import(ctx context.Context, data []byte) (int, error) {
	purchases, err := core.DecodeImport(data)
	if err != nil {
		return 0, err
	}
	if err := s.ImportPurchases(ctx, purchases); err != nil {
		return 0, err
	}
	return len(purchases), nil
}

// ImportPurchases replaces every purchase. Purchases without an id get one
// before they reach either side.
func (s *PurchaseService) ImportPurchases(ctx context.Context, purchases []core.Purchase) error {
	out := make([]core.Purchase, len(purchases))
	for i, p := range purchases {
		if p.ID == "" {
			p.ID = s.newID()
		}
		out[i] = p
	}

	err := s.remote.Import(ctx, out)
	if err == nil {
		s.logger.InfoContext(ctx, "Purchases imported", applog.FieldMode, applog.ModeRemote, "count", len(out))
		return nil
	}
	s.fallback(ctx, applog.OpImport, err)

	if err := local.Replace(ctx, s.store, out); err != nil {
		return fmt.Errorf("replace local purchases: %w", err)
	}
	s.logger.InfoContext(ctx, "Purchases imported", applog.FieldMode, applog.ModeLocal, "count", len(out))
	return nil
}

// Clear empties the remote (best effort) and always drops the local key.
func (s *PurchaseService) Clear(ctx context.Context) error {
	if err := s.remote.Import(ctx, []core.Purchase{}); err != nil {
		s.fallback(ctx, applog.OpClear, err)
	}
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear local purchases: %w", err)
	}
	s.logger.InfoContext(ctx, "All purchases cleared")
	return nil
}

// Status describes where operations are currently served from. LocalError
// is set when the fallback store itself is unreachable.
type Status struct {
	Mode        string `json:"mode"`
	RemoteError string `json:"remote_error,omitempty"`
	LocalError  string `json:"local_error,omitempty"`
}

func (s *PurchaseService) Ping(ctx context.Context) Status {
	st := Status{Mode: applog.ModeRemote}
	if err := s.remote.Ping(ctx); err != nil {
		st.Mode, st.RemoteError = applog.ModeLocal, err.Error()
	}
	if err := local.Ping(ctx, s.store); err != nil {
		st.LocalError = err.Error()
	}
	return st
}

// SnapshotQuery selects what the dashboard shows.
type SnapshotQuery struct {
	Filter string
	Order  core.SortOrder
	Range  core.DateRange
	TopN   int
}

// Snapshot is everything the dashboard renders in one pass.
type Snapshot struct {
	Mode    string
	History []core.Purchase
	Totals  core.Totals
	Top     []core.ProductStat
	Monthly []core.MonthTotal
}

// Snapshot loads purchases, totals and top products concurrently. When the
// API fails, totals and top products are computed from the purchases loaded
// for the history, so the API is listed only once.
func (s *PurchaseService) Snapshot(ctx context.Context, q SnapshotQuery) (Snapshot, error) {
	if q.TopN <= 0 {
		q.TopN = core.DefaultTopProducts
	}
	var (
		out               Snapshot
		purchases         []core.Purchase
		totalsErr, topErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		purchases, out.Mode, err = s.load(gctx)
		return err
	})
	g.Go(func() error {
		out.Totals, totalsErr = s.remote.Totals(gctx, q.Range)
		return nil
	})
	g.Go(func() error {
		out.Top, topErr = s.remote.TopProducts(gctx, q.TopN)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if totalsErr != nil {
		s.fallback(ctx, applog.OpTotals, totalsErr)
		out.Totals = core.ComputeTotals(purchases, q.Range)
	}
	if topErr != nil {
		s.fallback(ctx, applog.OpTop, topErr)
		out.Top = core.ComputeTopProducts(purchases, q.TopN)
	}
	out.History = core.FilterHistory(purchases, q.Filter, q.Order)
	out.Monthly = core.ComputeMonthly(purchases)
	return out, nil
}

// Close releases the local store.
func (s *PurchaseService) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close local store: %w", err)
	}
	return nil
}
