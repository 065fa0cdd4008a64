package tcp

import (
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pires/go-proxyproto"
)

const (
	bufferSize     = 64 * 1024
	connectTimeout = 10 * time.Second
	sniPeekTimeout = 5 * time.Second
	sniPeekSize    = 16 * 1024
)

// Proxy handles accepted TCP connections for one entrypoint: it peeks the
// TLS SNI (if any), matches a route, selects a backend, dials it, and
// splices bytes bidirectionally without ever terminating TLS itself.
type Proxy struct {
	router         *Router
	services       *ServiceManager
	sendProxyProto bool
}

// NewProxy builds a Proxy. sendProxyProto, when true, prefixes the backend
// connection with a PROXY protocol v1 header carrying the real client
// address — useful when the backend itself needs it despite TLS
// passthrough hiding the proxy's own address from it otherwise.
func NewProxy(router *Router, services *ServiceManager, sendProxyProto bool) *Proxy {
	return &Proxy{router: router, services: services, sendProxyProto: sendProxyProto}
}

// HandleConnection drives one accepted connection to completion. It never
// returns an error; failures are logged and the connection is closed.
func (p *Proxy) HandleConnection(conn net.Conn, entrypoint string) {
	defer conn.Close()

	clientAddr := conn.RemoteAddr()
	sni := p.peekClientHelloSNI(conn)

	route := p.router.Match(entrypoint, sni, clientAddr)
	if route == nil {
		log.Debugf("tcp: no route for %s (entrypoint=%s sni=%q)", clientAddr, entrypoint, sni)
		return
	}

	svc, ok := p.services.Get(route.Service)
	if !ok {
		log.Errorf("tcp: service %q not found for route %q", route.Service, route.Name)
		return
	}

	backend, ok := svc.NextBackend()
	if !ok {
		log.Errorf("tcp: no backend available for service %q", route.Service)
		return
	}

	log.Debugf("tcp: routing %s -> %s (route=%s service=%s)", clientAddr, backend.Address, route.Name, route.Service)

	backendConn, err := net.DialTimeout("tcp", backend.Address, connectTimeout)
	if err != nil {
		log.Errorf("tcp: failed to connect to backend %s: %v", backend.Address, err)
		return
	}
	defer backendConn.Close()

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	if tc, ok := backendConn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}

	if p.sendProxyProto {
		if err := writeProxyProtoHeader(backendConn, clientAddr, conn.LocalAddr()); err != nil {
			log.Debugf("tcp: failed to write PROXY protocol header to %s: %v", backend.Address, err)
		}
	}

	spliceBidirectional(conn, backendConn)
	log.Debugf("tcp: connection closed for %s", clientAddr)
}

// peekClientHelloSNI peeks (via MSG_PEEK, not consuming) up to sniPeekSize
// bytes looking for a TLS ClientHello's SNI extension, so the bytes are
// still there for the backend once passthrough begins. It never blocks
// past sniPeekTimeout, so plain TCP clients that never speak TLS don't
// stall the connection.
func (p *Proxy) peekClientHelloSNI(conn net.Conn) string {
	buf, err := peekBytes(conn, sniPeekSize, sniPeekTimeout)
	if err != nil {
		return ""
	}
	sni, err := peekSNI(buf)
	if err != nil {
		return ""
	}
	return sni
}

func writeProxyProtoHeader(w io.Writer, remote, local net.Addr) error {
	header := proxyproto.HeaderProxyFromAddrs(1, remote, local)
	_, err := header.WriteTo(w)
	return err
}

// spliceBidirectional copies bytes between client and backend until either
// side closes, then shuts the other down. Matches spec.md §4.7's "either
// side close shuts down the other."
func spliceBidirectional(client, backend net.Conn) {
	done := make(chan struct{}, 2)

	go func() {
		buf := make([]byte, bufferSize)
		io.CopyBuffer(backend, client, buf)
		if cw, ok := backend.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
		done <- struct{}{}
	}()

	go func() {
		buf := make([]byte, bufferSize)
		io.CopyBuffer(client, backend, buf)
		if cw, ok := client.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
		done <- struct{}{}
	}()

	<-done
}
