package service

import "sync/atomic"

// FailoverService routes to a primary service unless it has been marked
// unhealthy, in which case it routes to the fallback. The primary's health
// is set only through MarkPrimaryHealthy and MarkPrimaryUnhealthy; this
// type does not subscribe to any health checker itself.
type FailoverService struct {
	name           string
	primary        string
	fallback       string
	primaryHealthy atomic.Bool
}

func newFailoverService(cfg Config) *FailoverService {
	s := &FailoverService{name: cfg.Name, primary: cfg.Primary, fallback: cfg.Fallback}
	s.primaryHealthy.Store(true)
	return s
}

func (s *FailoverService) Name() string { return s.name }
func (s *FailoverService) Kind() Kind   { return FailoverKind }

// ActiveService returns the primary service name if it's currently
// healthy, the fallback otherwise.
func (s *FailoverService) ActiveService() string {
	if s.primaryHealthy.Load() {
		return s.primary
	}
	return s.fallback
}

func (s *FailoverService) IsUsingPrimary() bool {
	return s.primaryHealthy.Load()
}

func (s *FailoverService) MarkPrimaryHealthy() {
	s.primaryHealthy.Store(true)
}

func (s *FailoverService) MarkPrimaryUnhealthy() {
	s.primaryHealthy.Store(false)
}

func (s *FailoverService) Primary() string  { return s.primary }
func (s *FailoverService) Fallback() string { return s.fallback }

func (s *FailoverService) ServiceNames() (primary, fallback string) {
	return s.primary, s.fallback
}
