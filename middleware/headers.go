package middleware

import (
	"net/http"
	"strings"
)

// HeaderConfig describes one headers() middleware instance: literal
// header set/remove on the request and/or the response, per spec.md
// §4.11. Grounded on filters/headerfilter.go's requestHeader/
// responseHeader pair, folded into a single middleware since both sides
// share the same wrapping mechanics here.
type HeaderConfig struct {
	Name           string
	RequestSet     map[string]string
	RequestRemove  []string
	ResponseSet    map[string]string
	ResponseRemove []string
}

type headersMiddleware struct {
	name string
	cfg  HeaderConfig
}

func NewHeaders(cfg HeaderConfig) Middleware {
	return &headersMiddleware{name: cfg.Name, cfg: cfg}
}

func (h *headersMiddleware) Name() string { return h.name }

func (h *headersMiddleware) Handle(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool) {
	for k, v := range h.cfg.RequestSet {
		if strings.EqualFold(k, "host") {
			r.Host = v
		}
		r.Header.Set(k, v)
	}
	for _, k := range h.cfg.RequestRemove {
		r.Header.Del(k)
	}

	if len(h.cfg.ResponseSet) == 0 && len(h.cfg.ResponseRemove) == 0 {
		return w, r, true
	}

	wrapped := &responseApplier{ResponseWriter: w}
	wrapped.apply = func() {
		hdr := wrapped.ResponseWriter.Header()
		for _, k := range h.cfg.ResponseRemove {
			hdr.Del(k)
		}
		for k, v := range h.cfg.ResponseSet {
			hdr.Set(k, v)
		}
	}
	return wrapped, r, true
}
