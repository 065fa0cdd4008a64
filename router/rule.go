package router

import (
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// MatchInput carries the parts of a request a Rule is evaluated against.
type MatchInput struct {
	Host     string
	Path     string
	RawQuery string
	Method   string
	Header   http.Header
}

// Rule is a compiled boolean predicate over MatchInput.
type Rule interface {
	Match(in MatchInput) bool
}

type hostRule struct{ host string }

func (r hostRule) Match(in MatchInput) bool {
	return strings.EqualFold(hostOnly(in.Host), r.host)
}

type hostRegexpRule struct{ re *regexp.Regexp }

func (r hostRegexpRule) Match(in MatchInput) bool { return r.re.MatchString(hostOnly(in.Host)) }

type pathRule struct{ path string }

func (r pathRule) Match(in MatchInput) bool { return in.Path == r.path }

type pathPrefixRule struct{ prefix string }

func (r pathPrefixRule) Match(in MatchInput) bool { return strings.HasPrefix(in.Path, r.prefix) }

type pathRegexpRule struct{ re *regexp.Regexp }

func (r pathRegexpRule) Match(in MatchInput) bool { return r.re.MatchString(in.Path) }

type headerRule struct{ name, value string }

func (r headerRule) Match(in MatchInput) bool {
	if in.Header == nil {
		return false
	}
	return in.Header.Get(r.name) == r.value
}

type headerRegexpRule struct {
	name string
	re   *regexp.Regexp
}

func (r headerRegexpRule) Match(in MatchInput) bool {
	if in.Header == nil {
		return false
	}
	return r.re.MatchString(in.Header.Get(r.name))
}

type queryRule struct{ key, value string }

func (r queryRule) Match(in MatchInput) bool {
	if in.RawQuery == "" {
		return false
	}
	for _, pair := range strings.Split(in.RawQuery, "&") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		if queryUnescape(k) == r.key && queryUnescape(v) == r.value {
			return true
		}
	}
	return false
}

func queryUnescape(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return s
}

type methodRule struct{ method string }

func (r methodRule) Match(in MatchInput) bool { return strings.EqualFold(in.Method, r.method) }

type andRule struct{ left, right Rule }

func (r andRule) Match(in MatchInput) bool { return r.left.Match(in) && r.right.Match(in) }

type orRule struct{ left, right Rule }

func (r orRule) Match(in MatchInput) bool { return r.left.Match(in) || r.right.Match(in) }

type notRule struct{ inner Rule }

func (r notRule) Match(in MatchInput) bool { return !r.inner.Match(in) }

// hostOnly strips a port suffix, mirroring net/http's Request.Host handling.
func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
