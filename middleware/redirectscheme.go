package middleware

import (
	"net/http"
)

// RedirectSchemeConfig redirects http<->https, preserving path and query,
// per spec.md §4.11. Status must be 301 or 302.
type RedirectSchemeConfig struct {
	Name       string
	FromScheme string // "http" or "https"
	ToScheme   string
	Status     int
}

type redirectSchemeMiddleware struct {
	name   string
	from   string
	to     string
	status int
}

func NewRedirectScheme(cfg RedirectSchemeConfig) Middleware {
	status := cfg.Status
	if status != http.StatusMovedPermanently && status != http.StatusFound {
		status = http.StatusMovedPermanently
	}
	return &redirectSchemeMiddleware{name: cfg.Name, from: cfg.FromScheme, to: cfg.ToScheme, status: status}
}

func (m *redirectSchemeMiddleware) Name() string { return m.name }

func (m *redirectSchemeMiddleware) Handle(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool) {
	if requestScheme(r) != m.from {
		return w, r, true
	}

	u := *r.URL
	u.Scheme = m.to
	u.Host = r.Host

	w.Header().Set("Location", u.String())
	w.WriteHeader(m.status)
	return w, r, false
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}
