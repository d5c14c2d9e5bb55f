package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HeaderPolicy is the set of headers added to every response. HSTS is only
// sent over TLS.
type HeaderPolicy struct {
	Always http.Header
	HSTS   string
}

// DefaultHeaderPolicy lets the page load htmx from unpkg and keeps inline
// styles for the chart bars.
func DefaultHeaderPolicy() HeaderPolicy {
	csp := []string{
		"default-src 'self'",
		"script-src 'self' https://unpkg.com",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data:",
		"connect-src 'self'",
		"object-src 'none'",
		"frame-ancestors 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}
	h := http.Header{}
	h.Set("Content-Security-Policy", strings.Join(csp, "; "))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	h.Set("Cross-Origin-Resource-Policy", "same-origin")

	return HeaderPolicy{
		Always: h,
		HSTS:   fmt.Sprintf("max-age=%d; includeSubDomains", int((365 * 24 * time.Hour).Seconds())),
	}
}

func (p HeaderPolicy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for name, values := range p.Always {
			h[name] = append([]string(nil), values...)
		}
		if r.TLS != nil && p.HSTS != "" {
			h.Set("Strict-Transport-Security", p.HSTS)
		}
		next.ServeHTTP(w, r)
	})
}

// CacheStatic marks embedded assets cacheable for maxAge.
func CacheStatic(maxAge time.Duration) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", value)
			next.ServeHTTP(w, r)
		})
	}
}
