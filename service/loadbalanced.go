package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/northbound/edgeproxy/health"
	"github.com/northbound/edgeproxy/loadbalancer"
)

// Pick is the outcome of selecting a backend server from a LoadBalancedService.
type Pick struct {
	Index   int
	Address string
	// Release must be called exactly once when the request against this
	// server completes, so least-connections bookkeeping stays accurate.
	// It is a no-op for strategies that don't track in-flight counts.
	Release func()
}

type acquirer interface {
	Acquire(index int)
	Release(index int)
}

// LoadBalancedService is the common case: a pool of backend servers behind
// one of the four balancer strategies, gated by active and/or passive
// health and an optional circuit breaker and sticky-session layer.
type LoadBalancedService struct {
	name     string
	servers  []ServerRef
	balancer loadbalancer.Balancer
	active   *health.ActiveChecker
	passive  *health.PassiveTracker
	breaker  *health.BreakerRegistry
	sticky   *StickySessions
}

func newLoadBalancedService(cfg Config, onTransition health.OnTransition) (*LoadBalancedService, error) {
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("load-balanced service requires at least one server")
	}

	lbServers := make([]loadbalancer.Server, len(cfg.Servers))
	for i, s := range cfg.Servers {
		lbServers[i] = loadbalancer.Server{Address: s.Address, Weight: s.Weight}
	}

	svc := &LoadBalancedService{
		name:     cfg.Name,
		servers:  cfg.Servers,
		balancer: loadbalancer.New(cfg.Strategy, lbServers),
	}

	if cfg.Passive != nil {
		svc.passive = health.NewPassiveTracker(*cfg.Passive)
	}
	if cfg.Breaker != nil {
		svc.breaker = health.NewBreakerRegistry(*cfg.Breaker)
	}
	if cfg.Sticky != nil {
		svc.sticky = NewStickySessions(*cfg.Sticky)
	}
	if cfg.Active != nil {
		svc.active = health.NewActiveChecker(*cfg.Active, func(addr string, healthy bool) {
			svc.onActiveTransition(addr, healthy)
			if onTransition != nil {
				onTransition(addr, healthy)
			}
		})
		for _, s := range cfg.Servers {
			svc.active.Watch(context.Background(), s.Address)
		}
	}

	return svc, nil
}

func (s *LoadBalancedService) onActiveTransition(address string, healthy bool) {
	for i, sv := range s.servers {
		if sv.Address != address {
			continue
		}
		if healthy {
			s.balancer.MarkHealthy(i)
		} else {
			s.balancer.MarkUnhealthy(i)
		}
		return
	}
}

func (s *LoadBalancedService) Name() string { return s.name }
func (s *LoadBalancedService) Kind() Kind   { return LoadBalancedKind }

// Select picks the next backend server for req, honoring sticky-session
// affinity when configured and falling back to the balancer's strategy
// otherwise. The returned Release must be deferred by the caller.
func (s *LoadBalancedService) Select(w http.ResponseWriter, r *http.Request) (Pick, bool) {
	if s.sticky != nil {
		if idx, ok := s.sticky.Lookup(r); ok && idx < len(s.servers) {
			pick := s.makePick(idx)
			s.sticky.Bind(w, r, idx)
			return pick, true
		}
	}

	idx, srv := s.balancer.Next()
	if srv == nil {
		return Pick{}, false
	}

	if s.sticky != nil {
		s.sticky.Bind(w, r, idx)
	}

	return s.makePick(idx), true
}

func (s *LoadBalancedService) makePick(idx int) Pick {
	release := func() {}
	if a, ok := s.balancer.(acquirer); ok {
		a.Acquire(idx)
		release = func() { a.Release(idx) }
	}
	return Pick{Index: idx, Address: s.servers[idx].Address, Release: release}
}

// Allow checks the circuit breaker (if configured) for address, returning a
// report callback to record the outcome.
func (s *LoadBalancedService) Allow(address string) (report func(success bool), ok bool) {
	if s.breaker == nil {
		return func(bool) {}, true
	}
	return s.breaker.Allow(address)
}

// RecordResult feeds a completed request's outcome into the passive health
// tracker, updating the balancer's health flag on a passive-tracker
// transition. The circuit breaker is not fed here; it gets its outcome
// through the report callback that Allow returns.
func (s *LoadBalancedService) RecordResult(index int, address string, statusCode int, duration time.Duration) {
	if s.passive != nil {
		switch s.passive.RecordResponse(address, statusCode, duration) {
		case health.BecameUnhealthy:
			s.balancer.MarkUnhealthy(index)
		case health.BecameHealthy:
			s.balancer.MarkHealthy(index)
		}
	}
}

// CanTry reports whether a request may be attempted against the server at
// index, consulting the passive tracker's recovery-interval gate.
func (s *LoadBalancedService) CanTry(index int) bool {
	if s.passive == nil {
		return true
	}
	return s.passive.CanTry(s.servers[index].Address)
}
