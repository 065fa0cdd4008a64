package udp

import (
	"context"
	"hash/fnv"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	maxDatagramSize       = 65535
	defaultSessionTimeout = 60 * time.Second
	sessionCleanupPeriod  = 30 * time.Second
)

// session pins a client to the backend it was first routed to, so every
// subsequent datagram from the same source address reaches the same
// server for the life of the session.
type session struct {
	clientAddr       *net.UDPAddr
	backendAddr      *net.UDPAddr
	backendConn      *net.UDPConn
	lastActivityNano atomic.Int64
}

func (s *session) touch() { s.lastActivityNano.Store(time.Now().UnixNano()) }

func (s *session) idleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActivityNano.Load()))
}

// Stats is a point-in-time snapshot of the proxy's counters.
type Stats struct {
	PacketsReceived uint64
	PacketsSent     uint64
	BytesReceived   uint64
	BytesSent       uint64
	ActiveSessions  int
}

// Proxy is the session-tracked UDP forwarder for one entrypoint.
type Proxy struct {
	router         *Router
	services       *ServiceManager
	sessionTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session

	packetsReceived atomic.Uint64
	packetsSent     atomic.Uint64
	bytesReceived   atomic.Uint64
	bytesSent       atomic.Uint64
}

// NewProxy builds a Proxy with the default 60s session timeout.
func NewProxy(router *Router, services *ServiceManager) *Proxy {
	return &Proxy{
		router:         router,
		services:       services,
		sessionTimeout: defaultSessionTimeout,
		sessions:       make(map[string]*session),
	}
}

// WithSessionTimeout overrides the default session idle timeout.
func (p *Proxy) WithSessionTimeout(timeout time.Duration) *Proxy {
	p.sessionTimeout = timeout
	return p
}

// Run reads datagrams from conn until ctx is cancelled, dispatching each to
// its own goroutine so a slow backend dial never stalls the receive loop.
// A janitor goroutine evicts idle sessions every 30s.
func (p *Proxy) Run(ctx context.Context, conn *net.UDPConn, entrypoint string) {
	log.Infof("udp: proxy started on %s (entrypoint: %s)", conn.LocalAddr(), entrypoint)

	janitorCtx, cancelJanitor := context.WithCancel(ctx)
	go p.runJanitor(janitorCtx)
	defer cancelJanitor()

	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			log.Infof("udp: proxy shutting down (entrypoint: %s)", entrypoint)
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, clientAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Errorf("udp: error receiving datagram: %v", err)
			continue
		}

		p.packetsReceived.Add(1)
		p.bytesReceived.Add(uint64(n))

		data := make([]byte, n)
		copy(data, buf[:n])
		addr := *clientAddr

		go p.handleDatagramRecovered(ctx, conn, &addr, data, entrypoint)
	}
}

// handleDatagramRecovered isolates a panic in per-datagram dispatch so one
// malformed client datagram can never take down the listener loop.
func (p *Proxy) handleDatagramRecovered(ctx context.Context, entrypointConn *net.UDPConn, clientAddr *net.UDPAddr, data []byte, entrypoint string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("udp: recovered panic handling datagram from %s: %v", clientAddr, r)
		}
	}()
	p.handleDatagram(ctx, entrypointConn, clientAddr, data, entrypoint)
}

func (p *Proxy) handleDatagram(ctx context.Context, entrypointConn *net.UDPConn, clientAddr *net.UDPAddr, data []byte, entrypoint string) {
	key := clientAddr.String()

	p.mu.Lock()
	sess, exists := p.sessions[key]
	p.mu.Unlock()

	if exists {
		sess.touch()
		p.forwardToBackend(clientAddr, sess.backendConn, sess.backendAddr, data)
		return
	}

	route := p.router.Match(entrypoint, clientAddr)
	if route == nil {
		log.Warnf("udp: no route for datagram from %s on entrypoint %q", clientAddr, entrypoint)
		return
	}

	svc, ok := p.services.Get(route.Service)
	if !ok {
		log.Errorf("udp: service %q not found", route.Service)
		return
	}

	hash := hashClientIP(clientAddr.IP)
	_, backend, ok := svc.ServerByHash(hash)
	if !ok {
		log.Errorf("udp: no healthy backend for service %q", route.Service)
		return
	}

	backendAddr, err := net.ResolveUDPAddr("udp", backend.Address)
	if err != nil {
		log.Errorf("udp: invalid backend address %q: %v", backend.Address, err)
		return
	}

	log.Debugf("udp: routing %s -> %s (route=%s service=%s)", clientAddr, backendAddr, route.Name, route.Service)

	backendConn, err := net.DialUDP("udp", nil, backendAddr)
	if err != nil {
		log.Errorf("udp: failed to dial backend %s: %v", backendAddr, err)
		return
	}

	sess = &session{clientAddr: clientAddr, backendAddr: backendAddr, backendConn: backendConn}
	sess.touch()

	p.mu.Lock()
	p.sessions[key] = sess
	p.mu.Unlock()

	p.forwardToBackend(clientAddr, backendConn, backendAddr, data)

	go p.pumpResponses(ctx, entrypointConn, sess)
}

func (p *Proxy) forwardToBackend(clientAddr *net.UDPAddr, backendConn *net.UDPConn, backendAddr *net.UDPAddr, data []byte) {
	if _, err := backendConn.Write(data); err != nil {
		log.Debugf("udp: failed to forward %d bytes from %s to %s: %v", len(data), clientAddr, backendAddr, err)
		return
	}
	p.packetsSent.Add(1)
	p.bytesSent.Add(uint64(len(data)))
}

// pumpResponses reads datagrams the backend sends back on this session's
// dedicated socket and relays them to the client through the entrypoint
// socket, until the backend goes quiet for sessionTimeout or the session
// is evicted by the janitor.
func (p *Proxy) pumpResponses(ctx context.Context, entrypointConn *net.UDPConn, sess *session) {
	defer func() {
		p.mu.Lock()
		delete(p.sessions, sess.clientAddr.String())
		p.mu.Unlock()
		sess.backendConn.Close()
		log.Debugf("udp: cleaned up session for %s", sess.clientAddr)
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		if ctx.Err() != nil {
			return
		}

		sess.backendConn.SetReadDeadline(time.Now().Add(p.sessionTimeout))
		n, err := sess.backendConn.Read(buf)
		if err != nil {
			log.Debugf("udp: response pump for %s ended: %v", sess.clientAddr, err)
			return
		}

		p.packetsReceived.Add(1)
		p.bytesReceived.Add(uint64(n))
		sess.touch()

		if _, err := entrypointConn.WriteToUDP(buf[:n], sess.clientAddr); err != nil {
			log.Debugf("udp: failed to send response to %s: %v", sess.clientAddr, err)
			return
		}
		p.packetsSent.Add(1)
		p.bytesSent.Add(uint64(n))
	}
}

func (p *Proxy) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(sessionCleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.evictExpiredSessions()
		}
	}
}

func (p *Proxy) evictExpiredSessions() {
	var expired []*session

	p.mu.Lock()
	for key, sess := range p.sessions {
		if sess.idleFor() > p.sessionTimeout {
			expired = append(expired, sess)
			delete(p.sessions, key)
		}
	}
	p.mu.Unlock()

	for _, sess := range expired {
		sess.backendConn.Close()
		log.Debugf("udp: expired session for %s", sess.clientAddr)
	}
}

// hashClientIP hashes just the client's IP (not port), so consistent
// hashing survives the client using a different ephemeral source port.
func hashClientIP(ip net.IP) uint64 {
	h := fnv.New64a()
	h.Write(ip)
	return h.Sum64()
}

func (p *Proxy) Stats() Stats {
	p.mu.Lock()
	active := len(p.sessions)
	p.mu.Unlock()

	return Stats{
		PacketsReceived: p.packetsReceived.Load(),
		PacketsSent:     p.packetsSent.Load(),
		BytesReceived:   p.bytesReceived.Load(),
		BytesSent:       p.bytesSent.Load(),
		ActiveSessions:  active,
	}
}
