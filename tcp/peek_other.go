//go:build !unix

package tcp

import (
	"fmt"
	"net"
	"time"
)

// peekBytes has no portable MSG_PEEK implementation outside unix; SNI
// routing degrades to catch-all-only on these platforms.
func peekBytes(net.Conn, int, time.Duration) ([]byte, error) {
	return nil, fmt.Errorf("tcp: SNI peeking unsupported on this platform")
}
