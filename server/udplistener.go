package server

import (
	"context"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/northbound/edgeproxy/udp"
)

// UDPListener binds one UDP entrypoint and runs its session-tracked
// proxy. UDP has no connection handshake to gate with the drain
// coordinator; in-flight sessions are simply abandoned on shutdown, same
// as the original's task-cancellation semantics.
type UDPListener struct {
	name    string
	address string
	proxy   *udp.Proxy
}

func NewUDPListener(name, address string, proxy *udp.Proxy) *UDPListener {
	return &UDPListener{name: name, address: address, proxy: proxy}
}

func (l *UDPListener) Serve(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("entrypoint %q: resolve %s: %w", l.name, l.address, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("entrypoint %q: bind %s: %w", l.name, l.address, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log.Infof("entrypoint %q listening on %s (udp)", l.name, l.address)
	l.proxy.Run(ctx, conn, l.name)
	return nil
}
