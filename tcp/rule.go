// Package tcp implements the L4 proxy: SNI-based and catch-all routing for
// raw TCP connections, with TLS passthrough (the proxy never terminates
// TLS — it only peeks the ClientHello to read SNI, then splices bytes).
package tcp

import (
	"net"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// Rule is a compiled TCP routing predicate, evaluated against the SNI
// hostname (when the connection looks like TLS) and/or the client address.
type Rule interface {
	Match(sni string, clientAddr net.Addr) bool
}

type catchAllRule struct{}

func (catchAllRule) Match(string, net.Addr) bool { return true }

type hostSNIRule struct{ hosts []string }

func (r hostSNIRule) Match(sni string, _ net.Addr) bool {
	if sni == "" {
		return false
	}
	for _, h := range r.hosts {
		if strings.HasPrefix(h, "*.") {
			suffix := h[1:]
			if strings.EqualFold(sni, h[2:]) || strings.HasSuffix(strings.ToLower(sni), strings.ToLower(suffix)) {
				return true
			}
			continue
		}
		if strings.EqualFold(h, sni) {
			return true
		}
	}
	return false
}

type clientIPRule struct{ set *netipx.IPSet }

func (r clientIPRule) Match(_ string, clientAddr net.Addr) bool {
	if clientAddr == nil {
		return false
	}
	tcpAddr, ok := clientAddr.(*net.TCPAddr)
	if !ok {
		return false
	}
	addr, ok := netipx.FromStdIP(tcpAddr.IP)
	if !ok {
		return false
	}
	return r.set.Contains(addr)
}

// ParseRule parses a Traefik-compatible TCP rule: "*", "HostSNI(`a.test`)",
// "HostSNI(`a.test`, `b.test`)", or "ClientIP(`10.0.0.0/8`)". An
// unrecognized or malformed rule parses as a catch-all, matching the
// reference router's fail-open behavior.
func ParseRule(rule string) Rule {
	rule = strings.TrimSpace(rule)
	lower := strings.ToLower(rule)

	if rule == "*" || lower == "hostsni(`*`)" {
		return catchAllRule{}
	}

	if strings.HasPrefix(lower, "hostsni(") {
		if hosts := extractQuotedArgs(rule, len("hostsni(")); len(hosts) > 0 {
			filtered := hosts[:0]
			for _, h := range hosts {
				if h != "" && h != "*" {
					filtered = append(filtered, h)
				}
			}
			if len(filtered) > 0 {
				return hostSNIRule{hosts: filtered}
			}
		}
		return catchAllRule{}
	}

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
		return catchAllRule{}
	}

	return catchAllRule{}
}

// parsePrefix parses a bare IP or a CIDR into a netip.Prefix, treating a
// bare address as a /32 or /128 host route.
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
