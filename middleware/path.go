package middleware

import (
	"net/http"
	"regexp"
	"strings"
)

// PathMode selects how PathConfig rewrites the request path, per spec.md
// §4.11 ("path prefix strip/add/replace, literal and regex").
type PathMode int

const (
	// PathStripPrefix removes Prefix from the start of the path.
	PathStripPrefix PathMode = iota
	// PathAddPrefix prepends Prefix to the path.
	PathAddPrefix
	// PathReplaceRegex runs Expr.ReplaceAll(path, Replacement), matching
	// filters/modpath.go's ModPath filter.
	PathReplaceRegex
)

type PathConfig struct {
	Name        string
	Mode        PathMode
	Prefix      string
	Expr        string
	Replacement string
}

type pathMiddleware struct {
	name        string
	mode        PathMode
	prefix      string
	rx          *regexp.Regexp
	replacement []byte
}

func NewPath(cfg PathConfig) (Middleware, error) {
	m := &pathMiddleware{name: cfg.Name, mode: cfg.Mode, prefix: cfg.Prefix}
	if cfg.Mode == PathReplaceRegex {
		rx, err := regexp.Compile(cfg.Expr)
		if err != nil {
			return nil, err
		}
		m.rx = rx
		m.replacement = []byte(cfg.Replacement)
	}
	return m, nil
}

func (p *pathMiddleware) Name() string { return p.name }

func (p *pathMiddleware) Handle(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool) {
	switch p.mode {
	case PathStripPrefix:
		if rest, ok := strings.CutPrefix(r.URL.Path, p.prefix); ok {
			if rest == "" {
				rest = "/"
			}
			r.URL.Path = rest
			if r.URL.RawPath != "" {
				r.URL.RawPath = ""
			}
		}
	case PathAddPrefix:
		r.URL.Path = p.prefix + r.URL.Path
	case PathReplaceRegex:
		r.URL.Path = string(p.rx.ReplaceAll([]byte(r.URL.Path), p.replacement))
	}
	return w, r, true
}
