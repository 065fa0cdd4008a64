package tcp

import (
	"fmt"
	"sync"

	"github.com/northbound/edgeproxy/loadbalancer"
)

// Service is a named pool of TCP backend servers load-balanced by one of
// the shared Balancer strategies (round-robin, by default, per spec.md
// §4.7; weighted/least-conn/random are equally valid since they share the
// same Balancer interface).
type Service struct {
	name     string
	balancer loadbalancer.Balancer
}

// Backend is one resolved backend connection target.
type Backend struct {
	Index   int
	Address string
}

func newService(name string, strategy loadbalancer.Strategy, servers []loadbalancer.Server) (*Service, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("tcp service %q requires at least one server", name)
	}
	return &Service{name: name, balancer: loadbalancer.New(strategy, servers)}, nil
}

func (s *Service) Name() string { return s.name }

// NextBackend picks the next backend server. When every server is
// unhealthy the balancer still returns one of them (round-robin returns
// the server at its current rotation position), so ok is false only when
// the balancer returns no server at all.
func (s *Service) NextBackend() (Backend, bool) {
	idx, srv := s.balancer.Next()
	if srv == nil {
		return Backend{}, false
	}
	return Backend{Index: idx, Address: srv.Address}, true
}

func (s *Service) MarkHealthy(index int)   { s.balancer.MarkHealthy(index) }
func (s *Service) MarkUnhealthy(index int) { s.balancer.MarkUnhealthy(index) }

// ServiceConfig describes one TCP service's backend pool.
type ServiceConfig struct {
	Name     string
	Strategy loadbalancer.Strategy
	Servers  []loadbalancer.Server
}

// ServiceManager holds every configured TCP service by name.
type ServiceManager struct {
	mu       sync.RWMutex
	services map[string]*Service
}

func NewServiceManager() *ServiceManager {
	return &ServiceManager{services: make(map[string]*Service)}
}

// BuildServiceManager constructs a ServiceManager from configs.
func BuildServiceManager(configs []ServiceConfig) (*ServiceManager, error) {
	mgr := NewServiceManager()
	for _, cfg := range configs {
		svc, err := newService(cfg.Name, cfg.Strategy, cfg.Servers)
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
