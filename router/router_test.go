package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSortsByPriorityDescending(t *testing.T) {
	specs := []RouteSpec{
		{Name: "low", Expr: "PathPrefix(`/`)", Priority: 1},
		{Name: "high", Expr: "PathPrefix(`/api`)", Priority: 10},
		{Name: "mid", Expr: "PathPrefix(`/app`)", Priority: 5},
	}
	routes, errs := Compile(specs)
	require.Empty(t, errs)
	require.Len(t, routes, 3)
	assert.Equal(t, "high", routes[0].Name)
	assert.Equal(t, "mid", routes[1].Name)
	assert.Equal(t, "low", routes[2].Name)
}

func TestCompileSkipsInvalidRulesAndReportsThem(t *testing.T) {
	specs := []RouteSpec{
		{Name: "good", Expr: "PathPrefix(`/api`)", Priority: 1},
		{Name: "bad", Expr: "Bogus(`x`)", Priority: 5},
	}
	routes, errs := Compile(specs)
	require.Len(t, routes, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, "good", routes[0].Name)
}

func TestRouterMatchRequestFirstPriorityWins(t *testing.T) {
	routes, errs := Compile([]RouteSpec{
		{Name: "catch-all", Expr: "PathPrefix(`/`)", Service: "default", Priority: 0},
		{Name: "api", Expr: "PathPrefix(`/api`)", Service: "api", Priority: 10},
	})
	require.Empty(t, errs)

	r := New()
	r.Swap(routes)

	route := r.MatchRequest("web", MatchInput{Path: "/api/users"})
	require.NotNil(t, route)
	assert.Equal(t, "api", route.Service)

	route = r.MatchRequest("web", MatchInput{Path: "/other"})
	require.NotNil(t, route)
	assert.Equal(t, "default", route.Service)
}

func TestRouterFiltersByEntrypoint(t *testing.T) {
	routes, errs := Compile([]RouteSpec{
		{Name: "internal-only", Expr: "PathPrefix(`/`)", Service: "internal", Entrypoints: []string{"internal"}, Priority: 10},
		{Name: "public", Expr: "PathPrefix(`/`)", Service: "public", Priority: 0},
	})
	require.Empty(t, errs)

	r := New()
	r.Swap(routes)

	route := r.MatchRequest("web", MatchInput{Path: "/x"})
	require.NotNil(t, route)
	assert.Equal(t, "public", route.Service)

	route = r.MatchRequest("internal", MatchInput{Path: "/x"})
	require.NotNil(t, route)
	assert.Equal(t, "internal", route.Service)
}

func TestRouterNoMatchReturnsNil(t *testing.T) {
	r := New()
	assert.Nil(t, r.MatchRequest("web", MatchInput{Path: "/anything"}))
}
