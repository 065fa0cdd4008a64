package service

import "sync/atomic"

type mirrorEntry struct {
	name    string
	percent uint32
}

// MirroringService shadows a percentage of traffic from a main service to
// one or more mirror services. The main service always receives the
// request; each mirror independently decides whether to receive a copy
// based on its own percentage, so a request can be mirrored to several
// targets at once, or none.
type MirroringService struct {
	name        string
	mainService string
	mirrors     []mirrorEntry
	maxBodySize int64
	randState   atomic.Uint32
}

func newMirroringService(cfg Config) *MirroringService {
	mirrors := make([]mirrorEntry, len(cfg.Mirrors))
	for i, m := range cfg.Mirrors {
		percent := m.Percent
		if percent > 100 {
			percent = 100
		}
		mirrors[i] = mirrorEntry{name: m.Name, percent: percent}
	}
	s := &MirroringService{
		name:        cfg.Name,
		mainService: cfg.MainService,
		mirrors:     mirrors,
		maxBodySize: cfg.MaxBodySize,
	}
	s.randState.Store(0xCAFEBABE)
	return s
}

func (s *MirroringService) Name() string { return s.name }
func (s *MirroringService) Kind() Kind   { return MirroringKind }

func (s *MirroringService) MainServiceName() string { return s.mainService }

func (s *MirroringService) nextRand() uint32 {
	for {
		old := s.randState.Load()
		x := old
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		if s.randState.CompareAndSwap(old, x) {
			return x
		}
	}
}

// MirrorsForRequest rolls each configured mirror's percentage independently
// and returns the names of every mirror that should receive a copy of this
// request.
func (s *MirroringService) MirrorsForRequest() []string {
	if len(s.mirrors) == 0 {
		return nil
	}

	var selected []string
	for _, m := range s.mirrors {
		roll := s.nextRand() % 100
		if roll < m.percent {
			selected = append(selected, m.name)
		}
	}
	return selected
}

// BodyWithinLimit reports whether size is small enough to buffer for
// mirroring; a non-positive MaxBodySize means no limit.
func (s *MirroringService) BodyWithinLimit(size int64) bool {
	if s.maxBodySize <= 0 {
		return true
	}
	return size <= s.maxBodySize
}

func (s *MirroringService) MaxBodySize() int64 { return s.maxBodySize }

func (s *MirroringService) AllMirrors() []string {
	names := make([]string, len(s.mirrors))
	for i, m := range s.mirrors {
		names[i] = m.name
	}
	return names
}

func (s *MirroringService) HasMirrors() bool { return len(s.mirrors) > 0 }
