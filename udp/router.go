package udp

import (
	"net"
	"net/netip"
	"sort"
	"strings"
	"sync/atomic"

	"go4.org/netipx"
)

// Rule is a compiled UDP routing predicate. UDP carries no SNI, so the
// only dimensions are catch-all and client IP.
type Rule interface {
	Match(clientAddr net.Addr) bool
}

type catchAllRule struct{}

func (catchAllRule) Match(net.Addr) bool { return true }

type clientIPRule struct{ set *netipx.IPSet }

func (r clientIPRule) Match(clientAddr net.Addr) bool {
	if clientAddr == nil {
		return false
	}
	udpAddr, ok := clientAddr.(*net.UDPAddr)
	if !ok {
		return false
	}
	addr, ok := netipx.FromStdIP(udpAddr.IP)
	if !ok {
		return false
	}
	return r.set.Contains(addr)
}

// ParseRule parses "*" or "ClientIP(`10.0.0.0/8`[, ...])"; anything
// unrecognized parses as a catch-all.
func ParseRule(rule string) Rule {
	rule = strings.TrimSpace(rule)
	if rule == "*" {
		return catchAllRule{}
	}

	lower := strings.ToLower(rule)
	if strings.HasPrefix(lower, "clientip(") {
		if cidrs := extractQuotedArgs(rule, len("clientip(")); len(cidrs) > 0 {
			var builder netipx.IPSetBuilder
			found := false
			for _, c := range cidrs {
				if p, err := parsePrefix(c); err == nil {
					builder.AddPrefix(p)
					found = true
				}
			}
			if found {
				if set, err := builder.IPSet(); err == nil {
					return clientIPRule{set: set}
				}
			}
		}
	}

	return catchAllRule{}
}

func extractQuotedArgs(rule string, prefixLen int) []string {
	if len(rule) < prefixLen+1 || rule[len(rule)-1] != ')' {
		return nil
	}
	inner := rule[prefixLen : len(rule)-1]
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, "`'\"")
		out = append(out, p)
	}
	return out
}

func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Route binds a compiled Rule to a target service.
type Route struct {
	Name        string
	Entrypoints []string
	Rule        Rule
	Service     string
	Middlewares []string
	Priority    int
}

// RouteSpec is the unparsed, config-shaped form of a Route.
type RouteSpec struct {
	Name        string
	Entrypoints []string
	Expr        string
	Service     string
	Middlewares []string
	Priority    int
}

func Compile(specs []RouteSpec) []*Route {
	routes := make([]*Route, 0, len(specs))
	for _, s := range specs {
		routes = append(routes, &Route{
			Name:        s.Name,
			Entrypoints: s.Entrypoints,
			Rule:        ParseRule(s.Expr),
			Service:     s.Service,
			Middlewares: s.Middlewares,
			Priority:    s.Priority,
		})
	}
	sort.SliceStable(routes, func(i, j int) bool { return routes[i].Priority > routes[j].Priority })
	return routes
}

// Router holds a hot-swappable, priority-ordered snapshot of UDP routes.
type Router struct {
	snapshot atomic.Pointer[[]*Route]
}

func NewRouter() *Router {
	r := &Router{}
	empty := []*Route{}
	r.snapshot.Store(&empty)
	return r
}

func (r *Router) Swap(routes []*Route) {
	r.snapshot.Store(&routes)
}

func (r *Router) Snapshot() []*Route {
	return *r.snapshot.Load()
}

// Match finds the first route (in priority order) serving entrypoint whose
// rule matches clientAddr.
func (r *Router) Match(entrypoint string, clientAddr net.Addr) *Route {
	for _, route := range r.Snapshot() {
		if !route.servesEntrypoint(entrypoint) {
			continue
		}
		if route.Rule.Match(clientAddr) {
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
