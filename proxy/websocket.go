package proxy

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// isWebSocketUpgrade reports whether r asks to switch protocols to
// websocket, per RFC 6455: both Upgrade: websocket and Connection: Upgrade
// must be present (case-insensitively, and Connection may be a
// comma-separated list).
func isWebSocketUpgrade(r *http.Request) bool {
	upgrade := strings.ToLower(r.Header.Get("Upgrade"))
	if !strings.Contains(upgrade, "websocket") {
		return false
	}
	connection := strings.ToLower(r.Header.Get("Connection"))
	return strings.Contains(connection, "upgrade")
}

// computeWebSocketAccept derives the Sec-WebSocket-Accept value from the
// client's Sec-WebSocket-Key, per RFC 6455 §1.3.
func computeWebSocketAccept(key string) string {
	h := sha1.New()
	io.WriteString(h, key)
	io.WriteString(h, websocketGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// handleWebSocketUpgrade dials the backend, replays the client's upgrade
// request, and on a backend 101 response hijacks the client connection and
// bridges bytes in both directions until either side closes.
func handleWebSocketUpgrade(w http.ResponseWriter, r *http.Request, backendAddr string) error {
	key := r.Header.Get("Sec-WebSocket-Key")

	dialAddr := backendAddr
	if u, err := url.Parse(backendAddr); err == nil && u.Host != "" {
		dialAddr = u.Host
	}

	backendConn, err := net.Dial("tcp", dialAddr)
	if err != nil {
		return fmt.Errorf("dial backend for websocket: %w", err)
	}

	if tc, ok := backendConn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}

	path := r.URL.RequestURI()
	host := r.Host
	if host == "" {
		host = dialAddr
	}

	upgradeReq := fmt.Sprintf(
		"GET %s HTTP/1.1\r\nHost: %s\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: %s\r\nSec-WebSocket-Version: 13\r\n\r\n",
		path, host, key,
	)

	if _, err := backendConn.Write([]byte(upgradeReq)); err != nil {
		backendConn.Close()
		return fmt.Errorf("send websocket upgrade to backend: %w", err)
	}

	statusLine, err := readBackendUpgradeResponse(backendConn)
	if err != nil {
		backendConn.Close()
		return err
	}
	if !strings.Contains(statusLine, "101") {
		backendConn.Close()
		return fmt.Errorf("backend rejected websocket upgrade: %s", strings.TrimSpace(statusLine))
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		backendConn.Close()
		return fmt.Errorf("response writer does not support hijacking")
	}

	clientConn, buf, err := hijacker.Hijack()
	if err != nil {
		backendConn.Close()
		return fmt.Errorf("hijack client connection: %w", err)
	}

	response := fmt.Sprintf(
		"HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n\r\n",
		computeWebSocketAccept(key),
	)
	if _, err := clientConn.Write([]byte(response)); err != nil {
		clientConn.Close()
		backendConn.Close()
		return fmt.Errorf("write 101 to client: %w", err)
	}

	if buf.Reader.Buffered() > 0 {
		if _, err := io.CopyN(backendConn, buf.Reader, int64(buf.Reader.Buffered())); err != nil {
			clientConn.Close()
			backendConn.Close()
			return fmt.Errorf("flush buffered client bytes: %w", err)
		}
	}

	go bridgeWebSocketStreams(clientConn, backendConn)
	return nil
}

// readBackendUpgradeResponse reads just the status line of the backend's
// HTTP response, leaving any remaining header bytes to be discarded — the
// client only needs to know whether the backend accepted the upgrade.
func readBackendUpgradeResponse(conn net.Conn) (string, error) {
	buf := make([]byte, 4096)
	total := 0
	for {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return "", fmt.Errorf("read websocket response from backend: %w", err)
		}
		total += n

		if idx := strings.Index(string(buf[:total]), "\r\n"); idx >= 0 {
			return string(buf[:idx]), nil
		}
		if total >= len(buf) {
			return "", fmt.Errorf("websocket handshake response too large")
		}
	}
}

func bridgeWebSocketStreams(client, backend net.Conn) {
	defer client.Close()
	defer backend.Close()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if _, err := io.Copy(backend, client); err != nil {
			log.Debugf("websocket client->backend closed: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := io.Copy(client, backend); err != nil {
			log.Debugf("websocket backend->client closed: %v", err)
		}
	}()

	wg.Wait()
}
