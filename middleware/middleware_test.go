package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingMiddleware struct {
	name    string
	calls   *[]string
	proceed bool
}

func (m *recordingMiddleware) Name() string { return m.name }

func (m *recordingMiddleware) Handle(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool) {
	*m.calls = append(*m.calls, m.name)
	if !m.proceed {
		w.WriteHeader(http.StatusForbidden)
	}
	return w, r, m.proceed
}

func TestRegistryRunsMiddlewaresInOrder(t *testing.T) {
	var calls []string
	reg := NewRegistry()
	reg.Register(&recordingMiddleware{name: "a", calls: &calls, proceed: true})
	reg.Register(&recordingMiddleware{name: "b", calls: &calls, proceed: true})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	_, _, proceed := reg.Run([]string{"a", "b"}, w, r)
	require.True(t, proceed)
	require.Equal(t, []string{"a", "b"}, calls)
}

func TestRegistryShortCircuitsOnRejection(t *testing.T) {
	var calls []string
	reg := NewRegistry()
	reg.Register(&recordingMiddleware{name: "a", calls: &calls, proceed: false})
	reg.Register(&recordingMiddleware{name: "b", calls: &calls, proceed: true})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	_, _, proceed := reg.Run([]string{"a", "b"}, w, r)
	require.False(t, proceed)
	require.Equal(t, []string{"a"}, calls)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegistrySkipsUnresolvedMiddlewareNames(t *testing.T) {
	reg := NewRegistry()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	_, _, proceed := reg.Run([]string{"missing"}, w, r)
	require.True(t, proceed)
}
