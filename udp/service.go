// Package udp implements the session-tracked UDP proxy: client datagrams
// are routed to a backend once, then pinned to that backend for the life
// of the session so retries and multi-packet flows land on the same
// server.
package udp

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// BackendServer is one resolved UDP backend endpoint.
type BackendServer struct {
	Address string
	Weight  uint32
}

// Service is a named pool of UDP backend servers. Unlike the shared
// loadbalancer.Balancer strategies, a UDP service needs direct indexed
// access to the healthy-flag array so a client's consistent-hash index can
// be checked and, if unhealthy, fall back to round-robin — a shape the
// Balancer interface doesn't expose.
type Service struct {
	name      string
	servers   []BackendServer
	healthy   []atomic.Bool
	rrCounter atomic.Uint64
}

func newService(name string, servers []BackendServer) (*Service, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("udp service %q requires at least one server", name)
	}
	s := &Service{name: name, servers: servers, healthy: make([]atomic.Bool, len(servers))}
	for i := range s.healthy {
		s.healthy[i].Store(true)
	}
	return s, nil
}

func (s *Service) Name() string { return s.name }

// NextServer round-robins across healthy servers, falling back to the
// first server if every server is unhealthy.
func (s *Service) NextServer() (int, BackendServer, bool) {
	n := len(s.servers)
	if n == 0 {
		return 0, BackendServer{}, false
	}

	for i := 0; i < n; i++ {
		idx := int(s.rrCounter.Add(1)-1) % n
		if s.healthy[idx].Load() {
			return idx, s.servers[idx], true
		}
	}

	return 0, s.servers[0], true
}

// ServerByHash picks the server at hash % len(servers), falling back to
// NextServer's round-robin if that server is currently unhealthy. This is
// what gives two datagrams from the same client IP session affinity
// before a session entry even exists.
func (s *Service) ServerByHash(hash uint64) (int, BackendServer, bool) {
	n := len(s.servers)
	if n == 0 {
		return 0, BackendServer{}, false
	}

	idx := int(hash % uint64(n))
	if s.healthy[idx].Load() {
		return idx, s.servers[idx], true
	}
	return s.NextServer()
}

func (s *Service) MarkHealthy(index int) {
	if index >= 0 && index < len(s.healthy) {
		s.healthy[index].Store(true)
	}
}

func (s *Service) MarkUnhealthy(index int) {
	if index >= 0 && index < len(s.healthy) {
		s.healthy[index].Store(false)
	}
}

func (s *Service) HealthyCount() int {
	n := 0
	for i := range s.healthy {
		if s.healthy[i].Load() {
			n++
		}
	}
	return n
}

// ServiceConfig describes one UDP service's backend pool.
type ServiceConfig struct {
	Name    string
	Servers []BackendServer
}

// ServiceManager holds every configured UDP service by name.
type ServiceManager struct {
	mu       sync.RWMutex
	services map[string]*Service
}

func NewServiceManager() *ServiceManager {
	return &ServiceManager{services: make(map[string]*Service)}
}

func BuildServiceManager(configs []ServiceConfig) (*ServiceManager, error) {
	mgr := NewServiceManager()
	for _, cfg := range configs {
		svc, err := newService(cfg.Name, cfg.Servers)
		if err != nil {
			return nil, err
		}
		mgr.mu.Lock()
		mgr.services[svc.Name()] = svc
		mgr.mu.Unlock()
	}
	return mgr, nil
}

func (m *ServiceManager) Get(name string) (*Service, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[name]
	return s, ok
}
