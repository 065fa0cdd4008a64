package tcp

import (
	"net"
	"sort"
	"sync/atomic"
)

// Route binds a compiled Rule to a backend service and, for SNI-matched
// routes, whether the connection should be passed through untouched.
type Route struct {
	Name        string
	Entrypoints []string
	Rule        Rule
	Service     string
	Middlewares []string
	Passthrough bool
	Priority    int
}

// RouteSpec is the unparsed, config-shaped form of a Route.
type RouteSpec struct {
	Name        string
	Entrypoints []string
	Expr        string
	Service     string
	Middlewares []string
	Passthrough bool
	Priority    int
}

// Compile parses every RouteSpec's rule expression into a Route, sorted by
// descending priority so Router.Match tries the most specific routes first.
func Compile(specs []RouteSpec) []*Route {
	routes := make([]*Route, 0, len(specs))
	for _, s := range specs {
		routes = append(routes, &Route{
			Name:        s.Name,
			Entrypoints: s.Entrypoints,
			Rule:        ParseRule(s.Expr),
			Service:     s.Service,
			Middlewares: s.Middlewares,
			Passthrough: s.Passthrough,
			Priority:    s.Priority,
		})
	}
	sort.SliceStable(routes, func(i, j int) bool { return routes[i].Priority > routes[j].Priority })
	return routes
}

// Router holds a hot-swappable, priority-ordered snapshot of TCP routes.
type Router struct {
	snapshot atomic.Pointer[[]*Route]
}

func NewRouter() *Router {
	r := &Router{}
	empty := []*Route{}
	r.snapshot.Store(&empty)
	return r
}

// Swap atomically replaces the current route snapshot. Routes must already
// be sorted by descending priority (Compile does this).
func (r *Router) Swap(routes []*Route) {
	r.snapshot.Store(&routes)
}

func (r *Router) Snapshot() []*Route {
	return *r.snapshot.Load()
}

// Match finds the first route (in priority order) serving entrypoint whose
// rule matches sni/clientAddr. A rule with no SNI (plain TCP, or TLS
// ClientHello without an SNI extension) only matches catch-all or ClientIP
// rules — never a HostSNI rule.
func (r *Router) Match(entrypoint, sni string, clientAddr net.Addr) *Route {
	for _, route := range r.Snapshot() {
		if !route.servesEntrypoint(entrypoint) {
			continue
		}
		if route.Rule.Match(sni, clientAddr) {
			return route
		}
	}
	return nil
}

func (route *Route) servesEntrypoint(entrypoint string) bool {
	if len(route.Entrypoints) == 0 {
		return true
	}
	for _, ep := range route.Entrypoints {
		if ep == entrypoint {
			return true
		}
	}
	return false
}
