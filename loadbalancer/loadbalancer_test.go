package loadbalancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func servers(n int) []Server {
	out := make([]Server, n)
	for i := range out {
		out[i] = Server{Address: string(rune('a' + i)), Weight: 1}
	}
	return out
}

func TestRoundRobinCyclesAndWraps(t *testing.T) {
	rr := newRoundRobin(servers(3))

	idx1, _ := rr.Next()
	idx2, _ := rr.Next()
	idx3, _ := rr.Next()
	idx4, _ := rr.Next()

	assert.Equal(t, 0, idx1)
	assert.Equal(t, 1, idx2)
	assert.Equal(t, 2, idx3)
	assert.Equal(t, 0, idx4)
}

func TestRoundRobinSkipsUnhealthy(t *testing.T) {
	rr := newRoundRobin(servers(3))
	rr.MarkUnhealthy(1)

	idx1, _ := rr.Next()
	idx2, _ := rr.Next()
	idx3, _ := rr.Next()
	idx4, _ := rr.Next()

	assert.Equal(t, 0, idx1)
	assert.Equal(t, 2, idx2)
	assert.Equal(t, 2, idx3)
	assert.Equal(t, 0, idx4)
}

func TestRoundRobinAllUnhealthyStillReturns(t *testing.T) {
	rr := newRoundRobin(servers(2))
	rr.MarkUnhealthy(0)
	rr.MarkUnhealthy(1)

	idx, server := rr.Next()
	assert.NotNil(t, server)
	assert.True(t, idx == 0 || idx == 1)
}

func TestSmoothWeightedFavorsHeavierServer(t *testing.T) {
	sw := newSmoothWeighted([]Server{
		{Address: "s0", Weight: 5},
		{Address: "s1", Weight: 3},
		{Address: "s2", Weight: 2},
	})

	counts := map[int]int{}
	for i := 0; i < 100; i++ {
		idx, _ := sw.Next()
		counts[idx]++
	}

	assert.Greater(t, counts[0], counts[1])
	assert.Greater(t, counts[1], counts[2])
}

func TestSmoothWeightedRecoversConfiguredWeightOnHealthy(t *testing.T) {
	sw := newSmoothWeighted([]Server{{Address: "s0", Weight: 4}})
	sw.MarkUnhealthy(0)
	sw.MarkHealthy(0)
	assert.Equal(t, int64(4), sw.servers[0].effectiveWeight.Load())
}

func TestLeastConnectionsPicksLeastLoaded(t *testing.T) {
	lc := newLeastConnections(servers(3))
	lc.Acquire(0)
	lc.Acquire(0)
	lc.Acquire(1)

	idx, _ := lc.Next()
	assert.Equal(t, 2, idx)
}

func TestLeastConnectionsReleaseFreesCapacity(t *testing.T) {
	lc := newLeastConnections(servers(2))
	lc.Acquire(0)
	lc.Acquire(0)
	lc.Release(0)
	lc.Acquire(1)

	idx, _ := lc.Next()
	assert.Equal(t, 0, idx)
}

func TestRandomAlwaysReturnsAHealthyServer(t *testing.T) {
	r := newRandom(servers(2))
	for i := 0; i < 50; i++ {
		idx, s := r.Next()
		require.NotNil(t, s)
		assert.True(t, idx == 0 || idx == 1)
	}
}

func TestRandomSkipsUnhealthy(t *testing.T) {
	r := newRandom(servers(2))
	r.MarkUnhealthy(0)
	for i := 0; i < 20; i++ {
		idx, _ := r.Next()
		assert.Equal(t, 1, idx)
	}
}

func TestNewDispatchesByStrategy(t *testing.T) {
	require.IsType(t, &roundRobin{}, New(RoundRobin, servers(1)))
	require.IsType(t, &smoothWeighted{}, New(SmoothWeighted, servers(1)))
	require.IsType(t, &leastConnections{}, New(LeastConnections, servers(1)))
	require.IsType(t, &random{}, New(Random, servers(1)))
}
