package udp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterMatchesHighestPriorityFirst(t *testing.T) {
	routes := Compile([]RouteSpec{
		{Name: "low", Expr: "*", Service: "svc-low", Priority: 0},
		{Name: "high", Expr: "ClientIP(`10.0.0.0/8`)", Service: "svc-high", Priority: 10},
	})
	router := NewRouter()
	router.Swap(routes)

	route := router.Match("udp-entry", &net.UDPAddr{IP: net.ParseIP("10.1.2.3")})
	require.NotNil(t, route)
	assert.Equal(t, "svc-high", route.Service)

	route = router.Match("udp-entry", &net.UDPAddr{IP: net.ParseIP("8.8.8.8")})
	require.NotNil(t, route)
	assert.Equal(t, "svc-low", route.Service)
}

func TestRouterRespectsEntrypointScoping(t *testing.T) {
	routes := Compile([]RouteSpec{
		{Name: "game", Entrypoints: []string{"game-udp"}, Expr: "*", Service: "svc-game", Priority: 0},
	})
	router := NewRouter()
	router.Swap(routes)

	assert.Nil(t, router.Match("other-entry", &net.UDPAddr{IP: net.ParseIP("1.2.3.4")}))

	route := router.Match("game-udp", &net.UDPAddr{IP: net.ParseIP("1.2.3.4")})
	require.NotNil(t, route)
	assert.Equal(t, "svc-game", route.Service)
}

func TestRouterHotSwap(t *testing.T) {
	router := NewRouter()
	assert.Nil(t, router.Match("udp-entry", &net.UDPAddr{IP: net.ParseIP("1.1.1.1")}))

	router.Swap(Compile([]RouteSpec{{Name: "r", Expr: "*", Service: "svc", Priority: 0}}))
	assert.NotNil(t, router.Match("udp-entry", &net.UDPAddr{IP: net.ParseIP("1.1.1.1")}))
}
