// Package service implements the four backend-routing strategies a Route
// can point at: a load-balanced pool of servers, a weighted split across
// other services, a mirroring (shadow-traffic) router, and an active/
// fallback failover pair. It also owns the optional sticky-session layer
// and the per-service active health-check wiring.
package service

import (
	"fmt"
	"sync"

	"github.com/northbound/edgeproxy/health"
	"github.com/northbound/edgeproxy/loadbalancer"
)

// Kind identifies which routing strategy a Config describes.
type Kind string

const (
	LoadBalancedKind Kind = "load_balanced"
	WeightedKind     Kind = "weighted"
	MirroringKind    Kind = "mirroring"
	FailoverKind     Kind = "failover"
)

// ServerRef names one backend endpoint within a load-balanced service.
type ServerRef struct {
	Address string
	Weight  int
}

// WeightedRef names one member service of a weighted split.
type WeightedRef struct {
	Name   string
	Weight uint32
}

// MirrorRef names one shadow-traffic target and the percentage of requests
// that should be copied to it.
type MirrorRef struct {
	Name    string
	Percent uint32
}

// Config is the union of the four service kinds a route can reference. Only
// the fields matching Kind are read.
type Config struct {
	Name string
	Kind Kind

	// LoadBalancedKind
	Servers  []ServerRef
	Strategy loadbalancer.Strategy
	Active   *health.ActiveConfig
	Passive  *health.PassiveConfig
	Breaker  *health.BreakerConfig
	Sticky   *StickyConfig

	// WeightedKind
	WeightedServices []WeightedRef

	// MirroringKind
	MainService string
	Mirrors     []MirrorRef
	MaxBodySize int64

	// FailoverKind
	Primary  string
	Fallback string
}

// Service is implemented by every concrete routing strategy so a Registry
// can hold them uniformly; callers type-switch to the concrete type to
// reach strategy-specific methods (Select, NextService, MirrorsForRequest,
// ActiveService, ...).
type Service interface {
	Name() string
	Kind() Kind
}

// Registry holds every configured service by name, built once from a
// config.Snapshot and swapped wholesale on reload.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

func (r *Registry) register(s Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[s.Name()] = s
}

// Get returns the named service, or false if no such service is registered.
func (r *Registry) Get(name string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[name]
	return s, ok
}

// Build constructs every service described by configs, wiring each
// load-balanced service's active health checker via onTransition, and
// registers them under their names.
func Build(configs []Config, onTransition health.OnTransition) (*Registry, error) {
	reg := NewRegistry()
	for _, cfg := range configs {
		svc, err := buildOne(cfg, onTransition)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", cfg.Name, err)
		}
		reg.register(svc)
	}
	return reg, nil
}

func buildOne(cfg Config, onTransition health.OnTransition) (Service, error) {
	switch cfg.Kind {
	case LoadBalancedKind:
		return newLoadBalancedService(cfg, onTransition)
	case WeightedKind:
		return newWeightedService(cfg), nil
	case MirroringKind:
		return newMirroringService(cfg), nil
	case FailoverKind:
		return newFailoverService(cfg), nil
	default:
		return nil, fmt.Errorf("unknown service kind %q", cfg.Kind)
	}
}
