// Package server binds one entrypoint per bound address to its protocol
// handler (L7 HTTP/WebSocket/gRPC, L4 TCP, or L4 UDP), tracks in-flight
// connections for a graceful drain, and coordinates process shutdown.
package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/northbound/edgeproxy/certregistry"
	"github.com/northbound/edgeproxy/router"
	"github.com/northbound/edgeproxy/service"
)

// ConnectionTracker counts in-flight connections and gates new ones once
// draining has started. connection_start/connection_end translate
// directly to Add/Done-style bookkeeping; the drain flag uses
// acquire/release ordering so a drain that has "started" is visible to
// every subsequent start check without a lock.
type ConnectionTracker struct {
	active   atomic.Int64
	draining atomic.Bool
}

func NewConnectionTracker() *ConnectionTracker {
	return &ConnectionTracker{}
}

// ConnectionStart records a new connection unless draining has begun, in
// which case it returns false and the caller must refuse the connection.
func (t *ConnectionTracker) ConnectionStart() bool {
	if t.draining.Load() {
		return false
	}
	t.active.Add(1)
	return true
}

// ConnectionEnd must be called exactly once for every ConnectionStart that
// returned true.
func (t *ConnectionTracker) ConnectionEnd() {
	t.active.Add(-1)
}

func (t *ConnectionTracker) ActiveCount() int64 {
	return t.active.Load()
}

func (t *ConnectionTracker) StartDrain() {
	t.draining.Store(true)
}

func (t *ConnectionTracker) IsDraining() bool {
	return t.draining.Load()
}

// WaitForDrain polls the active count every 100ms until it reaches zero or
// the context is done, whichever comes first. It returns the residual
// count observed at the time it stopped waiting (zero means a clean
// drain).
func (t *ConnectionTracker) WaitForDrain(ctx context.Context, timeout time.Duration) int64 {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		count := t.ActiveCount()
		if count <= 0 {
			log.Info("all connections drained")
			return 0
		}

		if time.Now().After(deadline) {
			log.Warnf("drain timeout reached with %d active connections remaining", count)
			return count
		}

		select {
		case <-ctx.Done():
			return t.ActiveCount()
		case <-ticker.C:
		}
	}
}

// PendingChallenge is one outstanding ACME HTTP-01 authorization: the
// token named in the request path maps to the key-authorization string
// the challenge response body must equal.
type PendingChallenge struct {
	Token     string
	KeyAuth   string
	ExpiresAt time.Time
}

// SharedState is the hot-reloadable state every entrypoint listener reads
// on each request: the current router and service registry, the drain
// coordinator, the ACME pending-challenge table, and (if TLS with SNI
// resolution is configured) the certificate registry.
type SharedState struct {
	Router      *router.Router
	services    atomic.Pointer[service.Registry]
	Connections *ConnectionTracker

	challengesMu sync.RWMutex
	challenges   map[string]PendingChallenge

	CertRegistry *certregistry.CertRegistry
}

// NewSharedState builds state around an already-constructed router and
// service registry. Pass a nil certRegistry when no entrypoint terminates
// TLS via SNI resolution (static cert/key entrypoints don't need one).
func NewSharedState(rtr *router.Router, services *service.Registry, certRegistry *certregistry.CertRegistry) *SharedState {
	s := &SharedState{
		Router:       rtr,
		Connections:  NewConnectionTracker(),
		challenges:   make(map[string]PendingChallenge),
		CertRegistry: certRegistry,
	}
	s.services.Store(services)
	return s
}

func (s *SharedState) Services() *service.Registry {
	return s.services.Load()
}

// ReloadServices swaps in a wholly new service registry, built from a
// fresh configuration snapshot. The router's own route snapshot is
// swapped separately via s.Router.Swap, since router.Router already
// carries its own atomic pointer.
func (s *SharedState) ReloadServices(services *service.Registry) {
	s.services.Store(services)
	log.Info("service registry reloaded")
}

// PutChallenge registers a pending ACME HTTP-01 challenge.
func (s *SharedState) PutChallenge(token, keyAuth string, ttl time.Duration) {
	s.challengesMu.Lock()
	defer s.challengesMu.Unlock()
	s.challenges[token] = PendingChallenge{Token: token, KeyAuth: keyAuth, ExpiresAt: time.Now().Add(ttl)}
}

// RemoveChallenge clears a completed or abandoned challenge.
func (s *SharedState) RemoveChallenge(token string) {
	s.challengesMu.Lock()
	defer s.challengesMu.Unlock()
	delete(s.challenges, token)
}

// LookupChallenge returns the key-authorization for token, if a live
// (non-expired) challenge is pending under it.
func (s *SharedState) LookupChallenge(token string) (string, bool) {
	s.challengesMu.RLock()
	defer s.challengesMu.RUnlock()
	c, ok := s.challenges[token]
	if !ok || time.Now().After(c.ExpiresAt) {
		return "", false
	}
	return c.KeyAuth, true
}
