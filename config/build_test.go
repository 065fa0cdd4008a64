package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/northbound/edgeproxy/loadbalancer"
	"github.com/northbound/edgeproxy/router"
	"github.com/northbound/edgeproxy/service"
	"github.com/northbound/edgeproxy/tcp"
)

func TestBuildWiresMiddlewaresServicesAndRoutes(t *testing.T) {
	snap := Snapshot{
		Middlewares: []MiddlewareSpec{
			{
				Name: "add-header",
				Type: HeadersType,
				Headers: &HeaderSpec{
					RequestSet: map[string]string{"X-Test": "1"},
				},
			},
			{
				Name: "deny-list",
				Type: IPFilterType,
				IPFilter: &IPFilterSpec{
					Mode:         "deny",
					SourceRanges: []string{"10.0.0.0/8"},
				},
			},
		},
		Services: []service.Config{
			{
				Name: "backend",
				Kind: service.LoadBalancedKind,
				Servers: []service.ServerRef{
					{Address: "http://127.0.0.1:9000", Weight: 1},
				},
				Strategy: loadbalancer.RoundRobin,
			},
		},
		Routes: []router.RouteSpec{
			{
				Name:        "default",
				Expr:        "Path(`/`)",
				Service:     "backend",
				Middlewares: []string{"add-header", "deny-list"},
				Priority:    10,
			},
		},
	}

	rt, err := Build(snap, nil)
	require.NoError(t, err)
	require.NotNil(t, rt)

	_, ok := rt.Middlewares.Get("add-header")
	require.True(t, ok)
	_, ok = rt.Middlewares.Get("deny-list")
	require.True(t, ok)

	_, ok = rt.Services.Get("backend")
	require.True(t, ok)

	require.Len(t, rt.Router.Snapshot(), 1)
}

func TestBuildRejectsUnknownMiddlewareType(t *testing.T) {
	snap := Snapshot{
		Middlewares: []MiddlewareSpec{
			{Name: "mystery", Type: MiddlewareType("bogus")},
		},
	}

	_, err := Build(snap, nil)
	require.Error(t, err)
}

func TestBuildRejectsRetryAsPipelineMiddleware(t *testing.T) {
	snap := Snapshot{
		Middlewares: []MiddlewareSpec{
			{Name: "retry-me", Type: RetryType, Retry: &RetrySpec{MaxAttempts: 3}},
		},
	}

	_, err := Build(snap, nil)
	require.Error(t, err)
}

func TestBuildWiresTCPRoutesAndServices(t *testing.T) {
	snap := Snapshot{
		TCPServices: []tcp.ServiceConfig{
			{
				Name:     "raw-backend",
				Strategy: loadbalancer.RoundRobin,
				Servers:  []loadbalancer.Server{{Address: "127.0.0.1:5432", Weight: 1}},
			},
		},
		TCPRoutes: []tcp.RouteSpec{
			{Name: "sni-route", Expr: "*", Service: "raw-backend", Priority: 1},
		},
	}

	rt, err := Build(snap, nil)
	require.NoError(t, err)
	require.Len(t, rt.TCPRouter.Snapshot(), 1)

	_, ok := rt.TCPServices.Get("raw-backend")
	require.True(t, ok)
}

func TestParsePathMode(t *testing.T) {
	m, err := parsePathMode("stripPrefix")
	require.NoError(t, err)
	require.Equal(t, 0, int(m))

	_, err = parsePathMode("nonsense")
	require.Error(t, err)
}

func TestParseJWTAlgorithm(t *testing.T) {
	alg, err := parseJWTAlgorithm("hs256")
	require.NoError(t, err)
	require.Equal(t, "HS256", string(alg))

	_, err = parseJWTAlgorithm("rs256")
	require.Error(t, err)
}
