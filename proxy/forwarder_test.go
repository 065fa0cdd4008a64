package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/edgeproxy/health"
	"github.com/northbound/edgeproxy/loadbalancer"
	"github.com/northbound/edgeproxy/router"
	"github.com/northbound/edgeproxy/service"
)

func newTestBackend(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
}

func buildTestHandler(t *testing.T, specs []router.RouteSpec, configs []service.Config) *Handler {
	t.Helper()
	routes, errs := router.Compile(specs)
	require.Empty(t, errs)
	rtr := router.New()
	rtr.Swap(routes)

	reg, err := service.Build(configs, nil)
	require.NoError(t, err)

	return NewHandler("web", false, rtr, reg, nil, nil)
}

// TestHostBasedRouting reproduces the spec's scenario 1: two host-matched
// routes of different priority pointing at distinct single-server services.
func TestHostBasedRouting(t *testing.T) {
	one := newTestBackend("one")
	defer one.Close()
	two := newTestBackend("two")
	defer two.Close()

	specs := []router.RouteSpec{
		{Name: "r1", Expr: "Host(`a.test`)", Service: "s1", Priority: 10},
		{Name: "r2", Expr: "Host(`b.test`)", Service: "s2", Priority: 5},
	}
	configs := []service.Config{
		{Name: "s1", Kind: service.LoadBalancedKind, Strategy: loadbalancer.RoundRobin,
			Servers: []service.ServerRef{{Address: one.URL, Weight: 1}}},
		{Name: "s2", Kind: service.LoadBalancedKind, Strategy: loadbalancer.RoundRobin,
			Servers: []service.ServerRef{{Address: two.URL, Weight: 1}}},
	}
	h := buildTestHandler(t, specs, configs)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "a.test"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "one", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "b.test"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "two", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "c.test"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestGRPCErrorTranslation reproduces scenario 6: a gRPC request targeting a
// service whose sole backend refuses connection gets an HTTP 200 with
// grpc-status 14 (Unavailable) and an empty body.
func TestGRPCErrorTranslation(t *testing.T) {
	specs := []router.RouteSpec{
		{Name: "r1", Expr: "PathPrefix(`/Svc`)", Service: "s1", Priority: 1},
	}
	configs := []service.Config{
		{Name: "s1", Kind: service.LoadBalancedKind, Strategy: loadbalancer.RoundRobin,
			Servers: []service.ServerRef{{Address: "http://127.0.0.1:1", Weight: 1}}},
	}
	h := buildTestHandler(t, specs, configs)

	req := httptest.NewRequest(http.MethodPost, "/Svc/M", nil)
	req.Header.Set("Content-Type", "application/grpc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "14", rec.Header().Get("grpc-status"))
	assert.Equal(t, "Bad%20Gateway", rec.Header().Get("grpc-message"))
	assert.Empty(t, rec.Body.String())
}

// TestHopByHopStripping checks that hop-by-hop headers named in §8 never
// reach the backend, and that a client-supplied X-Forwarded-For is appended
// to rather than replaced.
func TestHopByHopStripping(t *testing.T) {
	var seen http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	specs := []router.RouteSpec{
		{Name: "r1", Expr: "PathPrefix(`/`)", Service: "s1", Priority: 1},
	}
	configs := []service.Config{
		{Name: "s1", Kind: service.LoadBalancedKind, Strategy: loadbalancer.RoundRobin,
			Servers: []service.ServerRef{{Address: backend.URL, Weight: 1}}},
	}
	h := buildTestHandler(t, specs, configs)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:4321"
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, seen.Get("Connection"))
	assert.Empty(t, seen.Get("Keep-Alive"))
	assert.Equal(t, "1.2.3.4, 10.0.0.9", seen.Get("X-Forwarded-For"))
}

// TestAllUnhealthyServesAnywayRatherThanFail matches the balancer's
// documented fallback: marking a service's only server unhealthy still
// lets it serve traffic rather than fail every request outright.
func TestAllUnhealthyServesAnywayRatherThanFail(t *testing.T) {
	backend := newTestBackend("ok")
	defer backend.Close()

	specs := []router.RouteSpec{
		{Name: "r1", Expr: "PathPrefix(`/`)", Service: "s1", Priority: 1},
	}
	passiveCfg := health.DefaultPassiveConfig()
	passiveCfg.FailureThreshold = 1
	configs := []service.Config{
		{Name: "s1", Kind: service.LoadBalancedKind, Strategy: loadbalancer.RoundRobin,
			Servers: []service.ServerRef{{Address: backend.URL, Weight: 1}},
			Passive: &passiveCfg},
	}
	h := buildTestHandler(t, specs, configs)

	svc, ok := h.services.Get("s1")
	require.True(t, ok)
	lb := svc.(*service.LoadBalancedService)
	lb.RecordResult(0, backend.URL, http.StatusInternalServerError, 0)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

// TestServiceMissingReturnsUnavailable checks a route pointing at an
// unregistered service surfaces as 503 rather than a panic.
func TestServiceMissingReturnsUnavailable(t *testing.T) {
	specs := []router.RouteSpec{
		{Name: "r1", Expr: "PathPrefix(`/`)", Service: "missing", Priority: 1},
	}
	h := buildTestHandler(t, specs, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
