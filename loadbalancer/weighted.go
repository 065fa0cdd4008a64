package loadbalancer

import "sync/atomic"

// smoothWeighted implements Nginx-style smooth weighted round-robin: every
// selection adds each healthy server's effective weight to its running
// current weight, picks the maximum, then subtracts the total healthy
// weight from the winner. This spreads picks evenly across a selection
// window instead of bursting the heaviest server first.
type smoothWeighted struct {
	servers []weightedServer
}

type weightedServer struct {
	server           Server
	healthy          atomic.Bool
	currentWeight    atomic.Int64
	effectiveWeight  atomic.Int64
	configuredWeight int64
}

func newSmoothWeighted(servers []Server) *smoothWeighted {
	sw := &smoothWeighted{servers: make([]weightedServer, len(servers))}
	for i, s := range servers {
		sw.servers[i].server = s
		sw.servers[i].healthy.Store(true)
		sw.servers[i].configuredWeight = int64(s.Weight)
		sw.servers[i].effectiveWeight.Store(int64(s.Weight))
	}
	return sw
}

func (sw *smoothWeighted) totalWeight() int64 {
	var total int64
	for i := range sw.servers {
		if sw.servers[i].healthy.Load() {
			total += sw.servers[i].effectiveWeight.Load()
		}
	}
	return total
}

func (sw *smoothWeighted) Next() (int, *Server) {
	if len(sw.servers) == 0 {
		return -1, nil
	}

	total := sw.totalWeight()
	if total == 0 {
		return 0, &sw.servers[0].server
	}

	bestIdx := -1
	var bestWeight int64 = -1 << 63

	for i := range sw.servers {
		s := &sw.servers[i]
		if !s.healthy.Load() {
			continue
		}
		ew := s.effectiveWeight.Load()
		cw := s.currentWeight.Add(ew)
		if bestIdx == -1 || cw > bestWeight {
			bestWeight = cw
			bestIdx = i
		}
	}

	if bestIdx == -1 {
		return 0, &sw.servers[0].server
	}

	sw.servers[bestIdx].currentWeight.Add(-total)
	return bestIdx, &sw.servers[bestIdx].server
}

func (sw *smoothWeighted) MarkHealthy(index int) {
	if index < 0 || index >= len(sw.servers) {
		return
	}
	s := &sw.servers[index]
	s.healthy.Store(true)
	s.effectiveWeight.Store(s.configuredWeight)
}

func (sw *smoothWeighted) MarkUnhealthy(index int) {
	if index < 0 || index >= len(sw.servers) {
		return
	}
	sw.servers[index].healthy.Store(false)
}
