package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathStripPrefix(t *testing.T) {
	mw, err := NewPath(PathConfig{Name: "p", Mode: PathStripPrefix, Prefix: "/api"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	w := httptest.NewRecorder()
	_, r, _ = mw.Handle(w, r)
	require.Equal(t, "/users", r.URL.Path)
}

func TestPathStripPrefixLeavesRootWhenFullyConsumed(t *testing.T) {
	mw, err := NewPath(PathConfig{Name: "p", Mode: PathStripPrefix, Prefix: "/api"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api", nil)
	w := httptest.NewRecorder()
	_, r, _ = mw.Handle(w, r)
	require.Equal(t, "/", r.URL.Path)
}

func TestPathAddPrefix(t *testing.T) {
	mw, err := NewPath(PathConfig{Name: "p", Mode: PathAddPrefix, Prefix: "/v2"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/users", nil)
	w := httptest.NewRecorder()
	_, r, _ = mw.Handle(w, r)
	require.Equal(t, "/v2/users", r.URL.Path)
}

func TestPathReplaceRegex(t *testing.T) {
	mw, err := NewPath(PathConfig{Name: "p", Mode: PathReplaceRegex, Expr: `^/old/(.*)`, Replacement: "/new/$1"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/old/thing", nil)
	w := httptest.NewRecorder()
	_, r, _ = mw.Handle(w, r)
	require.Equal(t, "/new/thing", r.URL.Path)
}

func TestPathReplaceRegexRejectsInvalidExpression(t *testing.T) {
	_, err := NewPath(PathConfig{Name: "p", Mode: PathReplaceRegex, Expr: "("})
	require.Error(t, err)
}
