package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const acmeChallengePrefix = "/.well-known/acme-challenge/"

// TLSConfig describes how one entrypoint terminates TLS: either a static
// certificate/key pair, or a reference to the shared SNI certificate
// registry (ACME-backed or otherwise dynamically populated).
type TLSConfig struct {
	CertFile    string
	KeyFile     string
	UseResolver bool
}

// EntrypointConfig is the construction-time, immutable description of one
// HTTP(S) listener.
type EntrypointConfig struct {
	Name    string
	Address string
	TLS     *TLSConfig
}

// Listener binds one HTTP(S) entrypoint. It auto-negotiates HTTP/1.1 and
// HTTP/2 (via ALPN when TLS is enabled, via h2c/prior-knowledge upgrade
// when it isn't), refuses new connections once the shared drain
// coordinator says to, and services ACME HTTP-01 challenges directly on
// plain listeners before anything reaches the L7 forwarder.
type Listener struct {
	cfg   EntrypointConfig
	state *SharedState
	inner http.Handler
	isTLS bool
}

// NewListener builds a Listener for one entrypoint. handler is the L7
// forwarder (proxy.Handler) for this entrypoint's traffic once past ACME
// challenge interception.
func NewListener(cfg EntrypointConfig, state *SharedState, handler http.Handler) (*Listener, error) {
	l := &Listener{cfg: cfg, state: state}

	if cfg.TLS != nil {
		l.isTLS = true
	}

	serviceHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.isTLS && strings.HasPrefix(r.URL.Path, acmeChallengePrefix) {
			l.serveChallenge(w, r)
			return
		}
		handler.ServeHTTP(w, r)
	})

	if l.isTLS {
		l.inner = serviceHandler
	} else {
		// h2c.NewHandler lets plain listeners accept HTTP/2 via both prior
		// knowledge and the h2c Upgrade header, falling through to
		// HTTP/1.1 for everything else.
		l.inner = h2c.NewHandler(serviceHandler, &http2.Server{})
	}

	return l, nil
}

func (l *Listener) serveChallenge(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, acmeChallengePrefix)
	keyAuth, ok := l.state.LookupChallenge(token)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(keyAuth))
}

func (l *Listener) buildTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{NextProtos: []string{"h2", "http/1.1"}}

	if l.cfg.TLS.UseResolver {
		if l.state.CertRegistry == nil {
			return nil, fmt.Errorf("entrypoint %q requests a cert resolver but none is configured", l.cfg.Name)
		}
		cfg.GetCertificate = func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			return l.state.CertRegistry.GetCertFromHello(hello)
		}
		return cfg, nil
	}

	cert, err := tls.LoadX509KeyPair(l.cfg.TLS.CertFile, l.cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("entrypoint %q: loading TLS certificate: %w", l.cfg.Name, err)
	}
	cfg.Certificates = []tls.Certificate{cert}
	return cfg, nil
}

// Serve binds the entrypoint address and runs until ctx is cancelled.
// Each accepted connection is admitted or refused by the drain
// coordinator before any TLS handshake or HTTP parsing begins.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("entrypoint %q: bind %s: %w", l.cfg.Name, l.cfg.Address, err)
	}

	var tlsConf *tls.Config
	if l.isTLS {
		tlsConf, err = l.buildTLSConfig()
		if err != nil {
			ln.Close()
			return err
		}
	}

	protocol := "http"
	if l.isTLS {
		protocol = "https"
	}
	log.Infof("entrypoint %q listening on %s (%s)", l.cfg.Name, l.cfg.Address, protocol)

	srv := &http.Server{
		Handler:   l.inner,
		ConnState: l.connState,
	}

	go func() {
		<-ctx.Done()
		log.Infof("entrypoint %q shutting down", l.cfg.Name)
		ln.Close()
	}()

	gatedLn := &gatedListener{Listener: ln, tracker: l.state.Connections, name: l.cfg.Name}

	if l.isTLS {
		tlsLn := tls.NewListener(gatedLn, tlsConf)
		err = srv.Serve(tlsLn)
	} else {
		err = srv.Serve(gatedLn)
	}

	if ctx.Err() != nil {
		return nil
	}
	return err
}

// connState is kept for future per-connection accounting beyond what
// gatedListener already does at accept time (e.g. distinguishing idle
// from active for metrics); it currently only logs hijacks. A hijacked
// conn is still the trackedConn (or a TLS conn over it), so its new owner's
// Close still runs gatedListener's ConnectionEnd accounting.
func (l *Listener) connState(conn net.Conn, state http.ConnState) {
	if state == http.StateHijacked {
		log.Debugf("entrypoint %q: connection from %s hijacked", l.cfg.Name, conn.RemoteAddr())
	}
}

// gatedListener wraps a net.Listener so every accepted connection is
// checked against the drain coordinator before the caller (an
// http.Server) ever sees it, and its departure is accounted for when the
// connection closes.
type gatedListener struct {
	net.Listener
	tracker *ConnectionTracker
	name    string
}

func (g *gatedListener) Accept() (net.Conn, error) {
	for {
		conn, err := g.Listener.Accept()
		if err != nil {
			return nil, err
		}

		if !g.tracker.ConnectionStart() {
			log.Debugf("entrypoint %q: rejecting connection from %s, draining", g.name, conn.RemoteAddr())
			conn.Close()
			continue
		}

		return &trackedConn{Conn: conn, tracker: g.tracker}, nil
	}
}

// trackedConn calls ConnectionEnd exactly once, on the first Close.
type trackedConn struct {
	net.Conn
	tracker *ConnectionTracker
	closed  sync.Once
}

func (c *trackedConn) Close() error {
	c.closed.Do(c.tracker.ConnectionEnd)
	return c.Conn.Close()
}
