// Package trace assigns request ids, writes the access log and counts
// responses by status class.
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "courses/internal/log"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 64

type requestIDKey struct{}

// Stats are the counters exposed on /metrics.
type Stats struct {
	Requests     int64
	ClientErrors int64
	ServerErrors int64
	Slowest      time.Duration
}

type Tracer struct {
	logger   *applog.Logger
	clientIP func(*http.Request) string

	requests     atomic.Int64
	clientErrors atomic.Int64
	serverErrors atomic.Int64
	slowest      atomic.Int64
}

func New(logger *applog.Logger, clientIP func(*http.Request) string) *Tracer {
	return &Tracer{
		logger:   logger.WithComponent(applog.ComponentTrace),
		clientIP: clientIP,
	}
}

// Handler reuses a well-formed incoming X-Request-ID, or generates one.
func (t *Tracer) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(HeaderRequestID)
		if !validRequestID(id) {
			id = NewRequestID()
		}
		ctx := WithRequestID(r.Context(), id)
		r = r.WithContext(ctx)
		w.Header().Set(HeaderRequestID, id)

		clientIP := ""
		if t.clientIP != nil {
			clientIP = t.clientIP(r)
		}
		fields := applog.NewFields().
			WithRequestID(id).
			WithClientIP(clientIP).
			WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer())
		t.logger.Fields(ctx, slog.LevelDebug, "HTTP request started", fields)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		t.record(rec.status, elapsed)
		fields.WithHTTPResponse(rec.status, elapsed.Milliseconds(), rec.status < 400)
		t.logger.Fields(ctx, applog.StatusLevel(rec.status), "HTTP request completed", fields)
	})
}

func (t *Tracer) record(status int, elapsed time.Duration) {
	t.requests.Add(1)
	switch {
	case status >= 500:
		t.serverErrors.Add(1)
	case status >= 400:
		t.clientErrors.Add(1)
	}
	for {
		cur := t.slowest.Load()
		if int64(elapsed) <= cur || t.slowest.CompareAndSwap(cur, int64(elapsed)) {
			return
		}
	}
}

func (t *Tracer) Stats() Stats {
	return Stats{
		Requests:     t.requests.Load(),
		ClientErrors: t.clientErrors.Load(),
		ServerErrors: t.serverErrors.Load(),
		Slowest:      time.Duration(t.slowest.Load()),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func NewRequestID() string {
	return uuid.NewString()
}

// validRequestID accepts short ids made of letters, digits, '-' and '_' so a
// client cannot inject arbitrary text into logs.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromRequest reads the id Handler stored in the request context.
func FromRequest(r *http.Request) string {
	return RequestID(r.Context())
}
