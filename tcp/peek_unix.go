//go:build unix

package tcp

import (
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// peekBytes reads up to n bytes from conn using MSG_PEEK, so the kernel
// socket buffer still holds them for the real read that follows — the
// same non-consuming peek the TLS ClientHello parser relies on to let
// TLS passthrough forward the handshake untouched.
func peekBytes(conn net.Conn, n int, timeout time.Duration) ([]byte, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("tcp: connection does not support raw syscall access")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, n)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		var peeked int
		var peekErr error
		controlErr := raw.Read(func(fd uintptr) bool {
			m, _, rErr := unix.Recvfrom(int(fd), buf, unix.MSG_PEEK)
			if rErr == unix.EAGAIN {
				return false
			}
			peeked, peekErr = m, rErr
			return true
		})
		if controlErr != nil {
			return nil, controlErr
		}
		if peekErr != nil {
			return nil, peekErr
		}
		if peeked > 0 {
			return buf[:peeked], nil
		}
		time.Sleep(2 * time.Millisecond)
	}
	return nil, fmt.Errorf("tcp: timed out peeking connection")
}
