package loadbalancer

import "sync/atomic"

type roundRobin struct {
	servers []Server
	healthy []atomic.Bool
	counter atomic.Uint64
}

func newRoundRobin(servers []Server) *roundRobin {
	rr := &roundRobin{
		servers: servers,
		healthy: make([]atomic.Bool, len(servers)),
	}
	for i := range rr.healthy {
		rr.healthy[i].Store(true)
	}
	return rr
}

func (rr *roundRobin) Next() (int, *Server) {
	n := len(rr.servers)
	if n == 0 {
		return -1, nil
	}

	start := int(rr.counter.Add(1) - 1)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if rr.healthy[idx].Load() {
			return idx, &rr.servers[idx]
		}
	}

	// All unhealthy: return something anyway, the health checker will
	// eventually recover one of them.
	idx := start % n
	return idx, &rr.servers[idx]
}

func (rr *roundRobin) MarkHealthy(index int) {
	if index >= 0 && index < len(rr.healthy) {
		rr.healthy[index].Store(true)
	}
}

func (rr *roundRobin) MarkUnhealthy(index int) {
	if index >= 0 && index < len(rr.healthy) {
		rr.healthy[index].Store(false)
	}
}
