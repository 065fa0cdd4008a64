package tcp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCatchAll(t *testing.T) {
	assert.IsType(t, catchAllRule{}, ParseRule("*"))
	assert.IsType(t, catchAllRule{}, ParseRule("HostSNI(`*`)"))
}

func TestParseHostSNI(t *testing.T) {
	rule := ParseRule("HostSNI(`example.com`)")
	hs, ok := rule.(hostSNIRule)
	if assert.True(t, ok) {
		assert.Equal(t, []string{"example.com"}, hs.hosts)
	}
}

func TestParseHostSNIMultiple(t *testing.T) {
	rule := ParseRule("HostSNI(`example.com`, `other.com`)")
	hs, ok := rule.(hostSNIRule)
	if assert.True(t, ok) {
		assert.Equal(t, []string{"example.com", "other.com"}, hs.hosts)
	}
}

func TestHostSNIWildcardMatch(t *testing.T) {
	rule := ParseRule("HostSNI(`*.example.com`)")
	assert.True(t, rule.Match("sub.example.com", nil))
	assert.True(t, rule.Match("deep.sub.example.com", nil))
	assert.False(t, rule.Match("other.com", nil))
}

func TestClientIPMatch(t *testing.T) {
	rule := ParseRule("ClientIP(`192.168.1.0/24`)")

	addr := &net.TCPAddr{IP: net.ParseIP("192.168.1.100"), Port: 12345}
	assert.True(t, rule.Match("", addr))

	addr = &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 12345}
	assert.False(t, rule.Match("", addr))
}

func TestMalformedRuleFallsBackToCatchAll(t *testing.T) {
	assert.IsType(t, catchAllRule{}, ParseRule("NotARealRule(`x`)"))
	assert.IsType(t, catchAllRule{}, ParseRule("HostSNI(`*`, `*`)"))
}
