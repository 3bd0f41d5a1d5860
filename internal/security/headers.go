package security

import (
	"net/http"
	"strconv"
	"strings"
)

// Headers attaches hardening headers to every response. Quotes and previews
// are computed per request, so nothing is cacheable.
type Headers struct {
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	// TrustProxy honours X-Forwarded-Proto from the load balancer when
	// deciding whether the request arrived over TLS.
	TrustProxy bool
}

var staticHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
}

// Middleware implements chi middleware.
func (h Headers) Middleware(next http.Handler) http.Handler {
	hsts := h.hstsValue()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		for _, kv := range staticHeaders {
			headers.Set(kv[0], kv[1])
		}
		if hsts != "" && h.overTLS(r) {
			headers.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) hstsValue() string {
	if h.HSTSMaxAge <= 0 {
		return ""
	}
	value := "max-age=" + strconv.Itoa(h.HSTSMaxAge)
	if h.HSTSIncludeSubdomains {
		value += "; includeSubDomains"
	}
	return value
}

func (h Headers) overTLS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return h.TrustProxy && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
