package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"courses/internal/core"
	applog "courses/internal/log"
	"courses/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady reports whether requests are served from the remote API or
// the local store. Local mode is still ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	ping := s.svc.Ping(ctx)
	checks["storage"] = ping
	if ping.LocalError != "" {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	checks["cache"] = map[string]any{
		"totals_entries": s.totalsCache.Size(),
		"top_entries":    s.topCache.Size(),
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.Clients(),
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"mode":      ping.Mode,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceStats := s.tracer.Stats()
	totalsStats := s.totalsCache.Stats()
	topStats := s.topCache.Stats()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceStats.Requests)

	fmt.Fprintf(w, "# HELP http_client_errors_total Responses with a 4xx status\n")
	fmt.Fprintf(w, "# TYPE http_client_errors_total counter\n")
	fmt.Fprintf(w, "http_client_errors_total %d\n\n", traceStats.ClientErrors)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceStats.ServerErrors)

	fmt.Fprintf(w, "# HELP purchases_saved_total Purchases saved through the web UI\n")
	fmt.Fprintf(w, "# TYPE purchases_saved_total counter\n")
	fmt.Fprintf(w, "purchases_saved_total %d\n\n", atomic.LoadInt64(&s.appMetrics.purchasesSaved))

	fmt.Fprintf(w, "# HELP cache_hits_total Total stats cache hits\n")
	fmt.Fprintf(w, "# TYPE cache_hits_total counter\n")
	fmt.Fprintf(w, "cache_hits_total %d\n\n", totalsStats.Hits+topStats.Hits)

	fmt.Fprintf(w, "# HELP cache_misses_total Total stats cache misses\n")
	fmt.Fprintf(w, "# TYPE cache_misses_total counter\n")
	fmt.Fprintf(w, "cache_misses_total %d\n\n", totalsStats.Misses+topStats.Misses)

	fmt.Fprintf(w, "# HELP cache_entries Current cache entries\n")
	fmt.Fprintf(w, "# TYPE cache_entries gauge\n")
	fmt.Fprintf(w, "cache_entries{type=\"totals\"} %d\n", totalsStats.Size)
	fmt.Fprintf(w, "cache_entries{type=\"top\"} %d\n\n", topStats.Size)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", s.rateLimiter.Rejected())

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", s.screen.Blocked())

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.appMetrics.uptime).Seconds())
}

type indexData struct {
	services.Snapshot
	Filter        HistoryParams
	Today         string
	SheetsEnabled bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	filter := ParseHistoryParams(r.URL.Query())

	snap, err := s.svc.Snapshot(r.Context(), services.SnapshotQuery{
		Filter: filter.Query,
		Order:  filter.Order,
		TopN:   s.topLimit,
	})
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load dashboard",
			applog.FieldOperation, applog.OpLoad,
			applog.FieldError, err)
		Fail(http.StatusInternalServerError, "Impossible de charger les achats").Send(w)
		return
	}

	s.render(w, r, "index", indexData{
		Snapshot:      snap,
		Filter:        filter,
		Today:         core.Today().String(),
		SheetsEnabled: s.exporter != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
