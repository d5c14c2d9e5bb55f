package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"courses/internal/core"
	applog "courses/internal/log"
)

// UI partials, refreshed by htmx on purchases:changed.

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := ParseHistoryParams(r.URL.Query())

	purchases, err := s.svc.History(ctx, params.Query, params.Order)
	if err != nil {
		s.partialError(w, r, applog.OpLoad, err)
		return
	}
	s.render(w, r, "history", purchases)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rng, err := ParseDateRange(r.URL.Query())
	if err != nil {
		Fail(http.StatusBadRequest, "Date invalide").Send(w)
		return
	}

	totals, err := s.totals(ctx, rng)
	if err != nil {
		s.partialError(w, r, applog.OpTotals, err)
		return
	}
	s.render(w, r, "totals", totals)
}

func (s *Server) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n := s.topLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}

	top, err := s.topProducts(ctx, n)
	if err != nil {
		s.partialError(w, r, applog.OpTop, err)
		return
	}
	s.render(w, r, "top-products", top)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	months, err := s.svc.Monthly(r.Context())
	if err != nil {
		s.partialError(w, r, applog.OpLoad, err)
		return
	}
	s.render(w, r, "chart", months)
}

func (s *Server) partialError(w http.ResponseWriter, r *http.Request, op string, err error) {
	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to render partial",
		applog.FieldOperation, op,
		applog.FieldPath, r.URL.Path,
		applog.FieldError, err)
	Fail(http.StatusInternalServerError, "Impossible de charger les données").Send(w)
}

func (s *Server) totals(ctx context.Context, rng core.DateRange) (core.Totals, error) {
	key := totalsCacheKey(rng)
	if t, ok := s.totalsCache.Get(key); ok {
		return t, nil
	}
	t, err := s.svc.Totals(ctx, rng)
	if err != nil {
		return core.Totals{}, err
	}
	s.totalsCache.Set(key, t)
	return t, nil
}

func (s *Server) topProducts(ctx context.Context, n int) ([]core.ProductStat, error) {
	key := strconv.Itoa(n)
	if top, ok := s.topCache.Get(key); ok {
		return top, nil
	}
	top, err := s.svc.TopProducts(ctx, n)
	if err != nil {
		return nil, err
	}
	s.topCache.Set(key, top)
	return top, nil
}
