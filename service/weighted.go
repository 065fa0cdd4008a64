package service

import "sync/atomic"

type weightedEntry struct {
	name          string
	weight        int64
	currentWeight atomic.Int64
}

// WeightedService splits traffic across other named services using smooth
// weighted round-robin, the same algorithm loadbalancer uses for servers
// but applied one level up, across services.
type WeightedService struct {
	name        string
	entries     []*weightedEntry
	totalWeight int64
	randState   atomic.Uint32
}

func newWeightedService(cfg Config) *WeightedService {
	entries := make([]*weightedEntry, len(cfg.WeightedServices))
	var total int64
	for i, ref := range cfg.WeightedServices {
		entries[i] = &weightedEntry{name: ref.Name, weight: int64(ref.Weight)}
		total += int64(ref.Weight)
	}
	s := &WeightedService{name: cfg.Name, entries: entries, totalWeight: total}
	s.randState.Store(0xDEADBEEF)
	return s
}

func (s *WeightedService) Name() string { return s.name }
func (s *WeightedService) Kind() Kind   { return WeightedKind }

// NextService selects the next member service using smooth weighted
// round-robin: each entry's weight is added to its running current weight,
// the largest current weight wins, and the total weight is subtracted from
// the winner so it sinks back proportionally to its share.
func (s *WeightedService) NextService() (string, bool) {
	if len(s.entries) == 0 {
		return "", false
	}
	if len(s.entries) == 1 {
		return s.entries[0].name, true
	}

	var maxWeight int64 = -1 << 63
	selected := 0
	for i, e := range s.entries {
		current := e.currentWeight.Add(e.weight)
		if current > maxWeight {
			maxWeight = current
			selected = i
		}
	}
	s.entries[selected].currentWeight.Add(-s.totalWeight)
	return s.entries[selected].name, true
}

func (s *WeightedService) nextRand(bound uint32) uint32 {
	if bound == 0 {
		return 0
	}
	for {
		old := s.randState.Load()
		x := old
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		if s.randState.CompareAndSwap(old, x) {
			return x % bound
		}
	}
}

// RandomService picks a member service with probability proportional to
// its weight, independent of round-robin ordering.
func (s *WeightedService) RandomService() (string, bool) {
	if len(s.entries) == 0 {
		return "", false
	}
	if len(s.entries) == 1 {
		return s.entries[0].name, true
	}
	if s.totalWeight == 0 {
		return s.entries[len(s.entries)-1].name, true
	}

	target := int64(s.nextRand(uint32(s.totalWeight)))
	var cumulative int64
	for _, e := range s.entries {
		cumulative += e.weight
		if target < cumulative {
			return e.name, true
		}
	}
	return s.entries[len(s.entries)-1].name, true
}

// ServiceNames returns every member service name, in configured order.
func (s *WeightedService) ServiceNames() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

func (s *WeightedService) TotalWeight() int64 { return s.totalWeight }
func (s *WeightedService) IsEmpty() bool      { return len(s.entries) == 0 }
