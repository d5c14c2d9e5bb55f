package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync/atomic"

	applog "courses/internal/log"
)

var (
	probePaths = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", "etc/passwd", "cmd.exe",
	}
	injections = []string{"<script", "javascript:", "eval(", "union select"}
	scanners   = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan"}
)

type rule struct {
	reason string
	match  func(r *http.Request) bool
}

var rules = []rule{
	{"probe", func(r *http.Request) bool {
		return containsAny(strings.ToLower(r.URL.Path), probePaths)
	}},
	{"injection", func(r *http.Request) bool {
		q := r.URL.RawQuery
		if u, err := url.QueryUnescape(q); err == nil {
			q = u
		}
		q = strings.ToLower(q)
		return containsAny(q, injections) || containsAny(q, probePaths)
	}},
	{"scanner", func(r *http.Request) bool {
		return containsAny(strings.ToLower(r.UserAgent()), scanners)
	}},
	{"method", func(r *http.Request) bool {
		switch r.Method {
		case "TRACE", "TRACK", "DEBUG", "CONNECT":
			return true
		}
		return false
	}},
	{"oversized_url", func(r *http.Request) bool {
		return len(r.URL.String()) > 2048
	}},
	{"proxy_chain", func(r *http.Request) bool {
		return strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5
	}},
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Screen rejects scanner traffic and resolves the client address, trusting
// forwarding headers only from private networks.
type Screen struct {
	trusted []netip.Prefix
	blocked atomic.Int64
}

func NewScreen() *Screen {
	s := &Screen{}
	for _, cidr := range []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		s.trusted = append(s.trusted, netip.MustParsePrefix(cidr))
	}
	return s
}

// TrustProxy adds a network whose forwarding headers are honoured.
func (s *Screen) TrustProxy(cidr string) error {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("invalid proxy network %q: %w", cidr, err)
	}
	s.trusted = append(s.trusted, p)
	return nil
}

// Check returns the name of the first rule r breaks, or "".
func (s *Screen) Check(r *http.Request) string {
	for _, rl := range rules {
		if rl.match(r) {
			return rl.reason
		}
	}
	return ""
}

// Blocked counts rejected requests.
func (s *Screen) Blocked() int64 {
	return s.blocked.Load()
}

// ClientIP is the peer address, or the first X-Forwarded-For entry (then
// X-Real-IP) when the peer is a trusted proxy.
func (s *Screen) ClientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if ap, err := netip.ParseAddrPort(peer); err == nil {
		peer = ap.Addr().String()
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil || !s.isTrusted(addr.Unmap()) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if a, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return a.String()
		}
	}
	if a, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return a.String()
	}
	return peer
}

func (s *Screen) isTrusted(addr netip.Addr) bool {
	for _, p := range s.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Middleware answers 400 to requests that fail Check.
func (s *Screen) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason := s.Check(r)
		if reason == "" {
			next.ServeHTTP(w, r)
			return
		}
		s.blocked.Add(1)
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request blocked",
			applog.FieldComponent, applog.ComponentSecurity,
			applog.FieldClientIP, s.ClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			"reason", reason)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	})
}
