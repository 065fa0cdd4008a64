package loadbalancer

import "sync/atomic"

// leastConnections picks the healthy server with the fewest active
// connections, weighted: active*100/weight (or active*100 if weight is
// zero), so a heavier server tolerates proportionally more concurrent
// requests before it looks "as loaded" as a lighter one.
type leastConnections struct {
	servers []leastConnServer
}

type leastConnServer struct {
	server  Server
	healthy atomic.Bool
	active  atomic.Int64
}

func newLeastConnections(servers []Server) *leastConnections {
	lc := &leastConnections{servers: make([]leastConnServer, len(servers))}
	for i, s := range servers {
		lc.servers[i].server = s
		lc.servers[i].healthy.Store(true)
	}
	return lc
}

func (lc *leastConnections) Next() (int, *Server) {
	bestIdx := -1
	var bestScore int64 = 1<<63 - 1

	for i := range lc.servers {
		s := &lc.servers[i]
		if !s.healthy.Load() {
			continue
		}
		active := s.active.Load()
		var score int64
		if s.server.Weight > 0 {
			score = active * 100 / int64(s.server.Weight)
		} else {
			score = active * 100
		}
		if bestIdx == -1 || score < bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx == -1 {
		return -1, nil
	}
	return bestIdx, &lc.servers[bestIdx].server
}

// Acquire marks a new in-flight request against server index. Call it when
// a request is dispatched to that server, and Release when it completes.
func (lc *leastConnections) Acquire(index int) {
	if index >= 0 && index < len(lc.servers) {
		lc.servers[index].active.Add(1)
	}
}

func (lc *leastConnections) Release(index int) {
	if index >= 0 && index < len(lc.servers) {
		lc.servers[index].active.Add(-1)
	}
}

func (lc *leastConnections) MarkHealthy(index int) {
	if index >= 0 && index < len(lc.servers) {
		lc.servers[index].healthy.Store(true)
	}
}

func (lc *leastConnections) MarkUnhealthy(index int) {
	if index >= 0 && index < len(lc.servers) {
		lc.servers[index].healthy.Store(false)
	}
}
