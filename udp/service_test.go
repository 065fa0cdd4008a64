package udp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceRejectsEmptyPool(t *testing.T) {
	_, err := newService("empty", nil)
	assert.Error(t, err)
}

func TestNextServerRoundRobins(t *testing.T) {
	svc, err := newService("rr", []BackendServer{
		{Address: "10.0.0.1:9000"},
		{Address: "10.0.0.2:9000"},
	})
	require.NoError(t, err)

	idx1, _, ok := svc.NextServer()
	require.True(t, ok)
	idx2, _, ok := svc.NextServer()
	require.True(t, ok)
	assert.NotEqual(t, idx1, idx2)
}

func TestNextServerSkipsUnhealthy(t *testing.T) {
	svc, err := newService("rr", []BackendServer{
		{Address: "10.0.0.1:9000"},
		{Address: "10.0.0.2:9000"},
	})
	require.NoError(t, err)

	svc.MarkUnhealthy(0)

	for i := 0; i < 4; i++ {
		idx, _, ok := svc.NextServer()
		require.True(t, ok)
		assert.Equal(t, 1, idx)
	}
}

func TestNextServerServesAnywayWhenAllUnhealthy(t *testing.T) {
	svc, err := newService("rr", []BackendServer{{Address: "10.0.0.1:9000"}})
	require.NoError(t, err)
	svc.MarkUnhealthy(0)

	_, backend, ok := svc.NextServer()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:9000", backend.Address)
}

func TestHealthyCount(t *testing.T) {
	svc, err := newService("rr", []BackendServer{
		{Address: "10.0.0.1:9000"},
		{Address: "10.0.0.2:9000"},
		{Address: "10.0.0.3:9000"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, svc.HealthyCount())

	svc.MarkUnhealthy(1)
	assert.Equal(t, 2, svc.HealthyCount())

	svc.MarkHealthy(1)
	assert.Equal(t, 3, svc.HealthyCount())
}

func TestServiceManagerBuildAndGet(t *testing.T) {
	mgr, err := BuildServiceManager([]ServiceConfig{
		{Name: "echo", Servers: []BackendServer{{Address: "127.0.0.1:9000"}}},
	})
	require.NoError(t, err)

	svc, ok := mgr.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", svc.Name())

	_, ok = mgr.Get("missing")
	assert.False(t, ok)
}
