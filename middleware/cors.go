package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures full preflight handling plus response-header
// injection for actual requests, per spec.md §4.11. Grounded on
// filters/cors/cors.go's origin-list matching and
// original_source/src/middleware/builtin/cors.rs's preflight handling.
type CORSConfig struct {
	Name             string
	AllowOrigins     []string // "*" allows any origin
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int // seconds; 0 disables Access-Control-Max-Age
}

type corsMiddleware struct {
	name             string
	allowAllOrigins  bool
	allowOrigins     map[string]bool
	allowMethods     string
	allowHeaders     string
	exposeHeaders    string
	allowCredentials bool
	maxAge           string
}

func NewCORS(cfg CORSConfig) Middleware {
	m := &corsMiddleware{
		name:             cfg.Name,
		allowCredentials: cfg.AllowCredentials,
		allowOrigins:     make(map[string]bool, len(cfg.AllowOrigins)),
	}

	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			m.allowAllOrigins = true
		}
		m.allowOrigins[o] = true
	}

	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	m.allowMethods = strings.Join(methods, ", ")

	headers := cfg.AllowHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "Authorization"}
	}
	m.allowHeaders = strings.Join(headers, ", ")

	if len(cfg.ExposeHeaders) > 0 {
		m.exposeHeaders = strings.Join(cfg.ExposeHeaders, ", ")
	}
	if cfg.MaxAge > 0 {
		m.maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return m
}

func (m *corsMiddleware) Name() string { return m.name }

func (m *corsMiddleware) isOriginAllowed(origin string) bool {
	return m.allowAllOrigins || m.allowOrigins[origin]
}

func (m *corsMiddleware) isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}

func (m *corsMiddleware) Handle(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return w, r, true
	}

	if m.isPreflight(r) {
		if !m.isOriginAllowed(origin) {
			w.WriteHeader(http.StatusForbidden)
			return w, r, false
		}

		hdr := w.Header()
		m.setOriginHeaders(hdr, origin)
		hdr.Set("Access-Control-Allow-Methods", m.allowMethods)
		hdr.Set("Access-Control-Allow-Headers", m.allowHeaders)
		if m.maxAge != "" {
			hdr.Set("Access-Control-Max-Age", m.maxAge)
		}
		w.WriteHeader(http.StatusNoContent)
		return w, r, false
	}

	if !m.isOriginAllowed(origin) {
		return w, r, true
	}

	wrapped := &responseApplier{ResponseWriter: w}
	wrapped.apply = func() {
		hdr := wrapped.ResponseWriter.Header()
		m.setOriginHeaders(hdr, origin)
		if m.exposeHeaders != "" {
			hdr.Set("Access-Control-Expose-Headers", m.exposeHeaders)
		}
	}
	return wrapped, r, true
}

func (m *corsMiddleware) setOriginHeaders(hdr http.Header, origin string) {
	if m.allowAllOrigins && !m.allowCredentials {
		hdr.Set("Access-Control-Allow-Origin", "*")
	} else {
		hdr.Set("Access-Control-Allow-Origin", origin)
		hdr.Add("Vary", "Origin")
	}
	if m.allowCredentials {
		hdr.Set("Access-Control-Allow-Credentials", "true")
	}
}
