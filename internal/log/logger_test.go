package log

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentWorker, Output: &buf})
	l.Info("hello", FieldPurchaseID, "p1")

	out := buf.String()
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "purchase_id=p1") {
		t.Fatalf("unexpected output: %s", out)
	}

	buf.Reset()
	l.WithComponent(ComponentHTTP).Warn("child")
	if !strings.Contains(buf.String(), "component=http") {
		t.Fatalf("expected child component, got %s", buf.String())
	}
}

func TestLogFieldsBuilder(t *testing.T) {
	f := NewFields().
		WithOperation(OpSave).
		WithMode(ModeLocal).
		WithPurchase("p1", "2025-01-02", 3, 1250).
		WithError(errors.New("boom")).
		WithError(nil)

	if f[FieldOperation] != OpSave || f[FieldMode] != ModeLocal || f[FieldItemCount] != 3 || f[FieldError] != "boom" {
		t.Fatalf("unexpected fields: %v", f)
	}
	if len(f.ToSlice()) != len(f)*2 {
		t.Fatalf("ToSlice should hold key/value pairs")
	}
}

func TestMiddlewareTagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Output: &buf})

	h := Middleware(l, func(*http.Request) string { return "3f1c" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
		}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=3f1c") {
		t.Fatalf("expected request id in log, got %s", buf.String())
	}
}

func TestMiddlewareWithoutRequestID(t *testing.T) {
	l := New(Config{Output: io.Discard})

	var got *Logger
	h := Middleware(l, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got != l {
		t.Fatal("expected the base logger in context")
	}
}

func TestFromContextDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("expected default logger")
	}
}

func TestStatusLevel(t *testing.T) {
	for code, want := range map[int]slog.Level{
		200: slog.LevelInfo,
		302: slog.LevelInfo,
		422: slog.LevelWarn,
		503: slog.LevelError,
	} {
		if got := StatusLevel(code); got != want {
			t.Errorf("StatusLevel(%d) = %v, want %v", code, got, want)
		}
	}
}
