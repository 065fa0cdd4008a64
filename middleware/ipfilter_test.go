package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIPFilterAllowListAllowsMatchingCIDR(t *testing.T) {
	mw, err := NewIPFilter(IPFilterConfig{Name: "f", Mode: IPFilterAllow, SourceRanges: []string{"10.0.0.0/8"}})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	w := httptest.NewRecorder()

	_, _, proceed := mw.Handle(w, r)
	require.True(t, proceed)
}

func TestIPFilterAllowListRejectsNonMatchingCIDR(t *testing.T) {
	mw, err := NewIPFilter(IPFilterConfig{Name: "f", Mode: IPFilterAllow, SourceRanges: []string{"10.0.0.0/8"}})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.1:5555"
	w := httptest.NewRecorder()

	_, _, proceed := mw.Handle(w, r)
	require.False(t, proceed)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestIPFilterDenyListRejectsMatchingCIDR(t *testing.T) {
	mw, err := NewIPFilter(IPFilterConfig{Name: "f", Mode: IPFilterDeny, SourceRanges: []string{"192.168.0.0/16"}})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.5.5:1111"
	w := httptest.NewRecorder()

	_, _, proceed := mw.Handle(w, r)
	require.False(t, proceed)
}

func TestIPFilterHonorsXFFDepth(t *testing.T) {
	mw, err := NewIPFilter(IPFilterConfig{Name: "f", Mode: IPFilterAllow, SourceRanges: []string{"203.0.113.0/24"}, XFFDepth: 1})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1111"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.2")
	w := httptest.NewRecorder()

	_, _, proceed := mw.Handle(w, r)
	require.True(t, proceed)
}

func TestIPFilterAllowListWithNoRulesAllowsEverything(t *testing.T) {
	mw, err := NewIPFilter(IPFilterConfig{Name: "f", Mode: IPFilterAllow})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "8.8.8.8:1111"
	w := httptest.NewRecorder()

	_, _, proceed := mw.Handle(w, r)
	require.True(t, proceed)
}
