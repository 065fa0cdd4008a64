package udp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCatchAll(t *testing.T) {
	assert.IsType(t, catchAllRule{}, ParseRule("*"))
}

func TestClientIPMatch(t *testing.T) {
	rule := ParseRule("ClientIP(`10.0.0.0/8`)")

	addr := &net.UDPAddr{IP: net.ParseIP("10.1.2.3"), Port: 5000}
	assert.True(t, rule.Match(addr))

	addr = &net.UDPAddr{IP: net.ParseIP("192.168.1.1"), Port: 5000}
	assert.False(t, rule.Match(addr))
}

func TestClientIPMultiplePrefixes(t *testing.T) {
	rule := ParseRule("ClientIP(`10.0.0.0/8`, `192.168.0.0/16`)")

	assert.True(t, rule.Match(&net.UDPAddr{IP: net.ParseIP("10.1.1.1")}))
	assert.True(t, rule.Match(&net.UDPAddr{IP: net.ParseIP("192.168.5.5")}))
	assert.False(t, rule.Match(&net.UDPAddr{IP: net.ParseIP("172.16.0.1")}))
}

func TestClientIPSingleHost(t *testing.T) {
	rule := ParseRule("ClientIP(`203.0.113.7`)")

	assert.True(t, rule.Match(&net.UDPAddr{IP: net.ParseIP("203.0.113.7")}))
	assert.False(t, rule.Match(&net.UDPAddr{IP: net.ParseIP("203.0.113.8")}))
}

func TestMalformedRuleFallsBackToCatchAll(t *testing.T) {
	assert.IsType(t, catchAllRule{}, ParseRule("NotARealRule(`x`)"))
	assert.IsType(t, catchAllRule{}, ParseRule("ClientIP()"))
}

func TestCatchAllMatchesNilAddr(t *testing.T) {
	rule := ParseRule("*")
	assert.True(t, rule.Match(nil))
}
