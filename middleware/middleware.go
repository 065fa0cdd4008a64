// Package middleware implements the route pipeline: a named, ordered set
// of request/response transforms that run between the router match and
// the backend forward (spec §4.11). Each middleware sees the request on
// the way in and, if it needs to see the backend response, wraps the
// http.ResponseWriter before handing it back so its own Write/WriteHeader
// runs on the way out.
package middleware

import (
	"net/http"
	"sync"
)

// Middleware is one pipeline stage. Handle runs ahead of the next stage
// (or, for the last named middleware, ahead of the terminal forwarder).
// It returns the writer and request the remainder of the chain should
// use, and proceed=false if it already wrote a complete response and the
// request must not continue.
type Middleware interface {
	Name() string
	Handle(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool)
}

// Registry holds every configured middleware instance by name and
// implements proxy.Pipeline so routes can reference middlewares by name
// without the forwarder knowing any concrete middleware type.
type Registry struct {
	mu          sync.RWMutex
	middlewares map[string]Middleware
}

func NewRegistry() *Registry {
	return &Registry{middlewares: make(map[string]Middleware)}
}

func (r *Registry) Register(m Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares[m.Name()] = m
}

func (r *Registry) Get(name string) (Middleware, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.middlewares[name]
	return m, ok
}

// Run executes the named middlewares in order. A name that does not
// resolve to a registered middleware is skipped; router.Compile does not
// check a route's middleware names against any registry, so a route that
// names an unknown middleware runs without it.
func (r *Registry) Run(names []string, w http.ResponseWriter, req *http.Request) (http.ResponseWriter, *http.Request, bool) {
	for _, name := range names {
		mw, ok := r.Get(name)
		if !ok {
			continue
		}

		var proceed bool
		w, req, proceed = mw.Handle(w, req)
		if !proceed {
			return w, req, false
		}
	}

	return w, req, true
}

// responseApplier is embedded by middlewares that need to transform the
// response exactly once, on the first write, regardless of whether the
// handler calls WriteHeader explicitly or writes the body straight away.
type responseApplier struct {
	http.ResponseWriter
	apply   func()
	applied bool
}

func (w *responseApplier) ensure() {
	if w.applied {
		return
	}
	w.applied = true
	w.apply()
}

func (w *responseApplier) WriteHeader(code int) {
	w.ensure()
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseApplier) Write(b []byte) (int, error) {
	w.ensure()
	return w.ResponseWriter.Write(b)
}
