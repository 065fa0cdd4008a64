package server

import (
	"context"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/northbound/edgeproxy/tcp"
)

// TCPListener binds one raw-TCP entrypoint (TLS/SNI passthrough) and
// dispatches each accepted connection to a tcp.Proxy, subject to the same
// drain coordinator as the HTTP entrypoints.
type TCPListener struct {
	name    string
	address string
	tracker *ConnectionTracker
	proxy   *tcp.Proxy
}

func NewTCPListener(name, address string, tracker *ConnectionTracker, proxy *tcp.Proxy) *TCPListener {
	return &TCPListener{name: name, address: address, tracker: tracker, proxy: proxy}
}

func (l *TCPListener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.address)
	if err != nil {
		return fmt.Errorf("entrypoint %q: bind %s: %w", l.name, l.address, err)
	}

	go func() {
		<-ctx.Done()
		log.Infof("entrypoint %q shutting down", l.name)
		ln.Close()
	}()

	log.Infof("entrypoint %q listening on %s (tcp)", l.name, l.address)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Errorf("entrypoint %q: accept error: %v", l.name, err)
			continue
		}

		if !l.tracker.ConnectionStart() {
			log.Debugf("entrypoint %q: rejecting connection from %s, draining", l.name, conn.RemoteAddr())
			conn.Close()
			continue
		}

		go func() {
			defer l.tracker.ConnectionEnd()
			defer recoverConnectionPanic(l.name, conn.RemoteAddr())
			l.proxy.HandleConnection(conn, l.name)
		}()
	}
}

// recoverConnectionPanic isolates a per-connection panic so it can never
// take down the process; the connection is simply lost.
func recoverConnectionPanic(entrypoint string, remote net.Addr) {
	if r := recover(); r != nil {
		log.Errorf("entrypoint %q: recovered panic handling connection from %s: %v", entrypoint, remote, r)
	}
}
