package router

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// Route binds a compiled Rule to a service and the middleware chain that
// runs ahead of it.
type Route struct {
	Name        string
	Entrypoints []string
	Rule        Rule
	Service     string
	Middlewares []string
	Priority    int
}

// RouteSpec is the unparsed, config-shaped form of a Route; the rule
// expression is compiled by Compile.
type RouteSpec struct {
	Name        string
	Entrypoints []string
	Expr        string
	Service     string
	Middlewares []string
	Priority    int
}

// Compile parses every RouteSpec into a Route, skipping (and reporting)
// specs whose rule expression fails to parse rather than aborting the
// whole snapshot.
func Compile(specs []RouteSpec) ([]*Route, []error) {
	routes := make([]*Route, 0, len(specs))
	var errs []error
	for _, s := range specs {
		rule, err := Parse(s.Expr)
		if err != nil {
			errs = append(errs, fmt.Errorf("route %q: %w", s.Name, err))
			continue
		}
		routes = append(routes, &Route{
			Name:        s.Name,
			Entrypoints: s.Entrypoints,
			Rule:        rule,
			Service:     s.Service,
			Middlewares: s.Middlewares,
			Priority:    s.Priority,
		})
	}

	sort.SliceStable(routes, func(i, j int) bool { return routes[i].Priority > routes[j].Priority })
	return routes, errs
}

// Router holds a hot-swappable, priority-ordered snapshot of routes. A
// single atomic.Pointer load backs every concurrent MatchRequest call, so
// a config reload never blocks or races against in-flight matching.
type Router struct {
	snapshot atomic.Pointer[[]*Route]
}

func New() *Router {
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

// MatchRequest finds the first route (in priority order) whose entrypoint
// list includes entrypoint (or is empty, meaning "all entrypoints") and
// whose rule matches in.
func (r *Router) MatchRequest(entrypoint string, in MatchInput) *Route {
	for _, route := range r.Snapshot() {
		if !route.servesEntrypoint(entrypoint) {
			continue
		}
		if route.Rule.Match(in) {
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
