package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"courses/internal/cache"
	"courses/internal/core"
	applog "courses/internal/log"
	"courses/internal/middleware/ratelimit"
	"courses/internal/middleware/security"
	"courses/internal/middleware/trace"
	"courses/internal/services"
	"courses/internal/sheets"
	appweb "courses/web"
)

// PurchaseService is what the web UI needs from the purchase layer.
type PurchaseService interface {
	Save(ctx context.Context, date core.Date, items []core.Item) (core.Purchase, error)
	Remove(ctx context.Context, id string) error
	Totals(ctx context.Context, r core.DateRange) (core.Totals, error)
	TopProducts(ctx context.Context, n int) ([]core.ProductStat, error)
	Monthly(ctx context.Context) ([]core.MonthTotal, error)
	History(ctx context.Context, q string, order core.SortOrder) ([]core.Purchase, error)
	Export(ctx context.Context) ([]core.Purchase, error)
	Import(ctx context.Context, data []byte) (int, error)
	Clear(ctx context.Context) error
	Ping(ctx context.Context) services.Status
	Snapshot(ctx context.Context, q services.SnapshotQuery) (services.Snapshot, error)
}

// Options configures the web server. Zero values pick defaults.
type Options struct {
	Logger           *applog.Logger
	StatsCacheTTL    time.Duration
	TopProductsLimit int
	RateLimit        ratelimit.Config

	// Exporter enables POST /export/sheets when set.
	Exporter sheets.PurchaseExporter
}

// Server wraps http.Server with the purchases UI.
type Server struct {
	http.Server

	svc       PurchaseService
	exporter  sheets.PurchaseExporter
	templates *template.Template
	logger    *applog.Logger
	topLimit  int

	cacheManager *cache.Manager
	totalsCache  *cache.LRUCache[core.Totals]
	topCache     *cache.LRUCache[[]core.ProductStat]

	rateLimiter *ratelimit.Limiter
	screen      *security.Screen
	tracer      *trace.Tracer

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime         time.Time
	purchasesSaved int64
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, svc PurchaseService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	topLimit := opts.TopProductsLimit
	if topLimit <= 0 {
		topLimit = 10
	}

	s := &Server{
		svc:          svc,
		exporter:     opts.Exporter,
		templates:    template.Must(template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")),
		logger:       logger,
		topLimit:     topLimit,
		cacheManager: cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger),
		totalsCache:  cache.NewLRUCache[core.Totals](64, opts.StatsCacheTTL),
		topCache:     cache.NewLRUCache[[]core.ProductStat](16, opts.StatsCacheTTL),
		rateLimiter:  ratelimit.NewLimiter(opts.RateLimit),
		screen:       security.NewScreen(),
		appMetrics:   &appMetrics{uptime: time.Now()},
	}
	s.tracer = trace.New(logger, s.screen.ClientIP)

	s.cacheManager.Register(s.totalsCache)
	s.cacheManager.Register(s.topCache)
	if opts.StatsCacheTTL > 0 {
		s.cacheManager.StartCleanup(opts.StatsCacheTTL)
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	static := http.FileServer(http.FS(appweb.StaticFS))
	mux.Handle("GET /static/", security.CacheStatic(time.Hour)(static))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /purchases", s.handleCreatePurchase)
	mux.HandleFunc("DELETE /purchases/{id}", s.handleDeletePurchase)
	mux.HandleFunc("POST /purchases/{id}/delete", s.handleDeletePurchase)

	mux.HandleFunc("GET /ui/history", s.handleHistory)
	mux.HandleFunc("GET /ui/totals", s.handleTotals)
	mux.HandleFunc("GET /ui/top-products", s.handleTopProducts)
	mux.HandleFunc("GET /ui/chart", s.handleChart)

	mux.HandleFunc("GET /export", s.handleExport)
	mux.HandleFunc("POST /export/sheets", s.handleExportSheets)
	mux.HandleFunc("POST /import", s.handleImport)
	mux.HandleFunc("POST /clear", s.handleClear)

	limited := s.rateLimiter.Middleware(s.screen.ClientIP, s.onRateLimited,
		http.MethodPost, http.MethodDelete)

	var h http.Handler = mux
	h = limited(h)
	h = s.screen.Middleware(h)
	h = applog.Middleware(s.logger, trace.FromRequest)(h)
	h = s.tracer.Handler(h)
	h = security.DefaultHeaderPolicy().Middleware(h)
	return h
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldClientIP, s.screen.ClientIP(r),
		applog.FieldPath, r.URL.Path)
	Fail(http.StatusTooManyRequests, "Trop de requêtes, réessayez dans une minute").Header("Retry-After", "60").Send(w)
}

// Shutdown stops background cleanup and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		s.cacheManager.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// render executes a template into a buffer so a failure never leaves a
// half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template render failed",
			applog.FieldOperation, applog.OpRender,
			"template", name,
			applog.FieldError, err)
		Fail(http.StatusInternalServerError, "Erreur d'affichage").Send(w)
		return
	}
	NewReply().HTML(buf.Bytes()).Send(w)
}

func (s *Server) invalidateStats() {
	s.cacheManager.InvalidateAll()
}

func totalsCacheKey(r core.DateRange) string {
	return fmt.Sprintf("%s|%s", r.From, r.To)
}
