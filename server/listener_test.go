package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestListenerServesACMEChallenge(t *testing.T) {
	state := NewSharedState(nil, nil, nil)
	state.PutChallenge("abc123", "abc123.thumb", time.Minute)

	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("forwarder should not be reached for an ACME challenge path")
	})

	addr := freeAddr(t)
	listener, err := NewListener(EntrypointConfig{Name: "web", Address: addr}, state, backend)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Serve(ctx)
	waitForDial(t, addr)

	resp, err := http.Get("http://" + addr + acmeChallengePrefix + "abc123")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "abc123.thumb", string(body))
}

func TestListenerServes404ForUnknownChallengeToken(t *testing.T) {
	state := NewSharedState(nil, nil, nil)
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	addr := freeAddr(t)
	listener, err := NewListener(EntrypointConfig{Name: "web", Address: addr}, state, backend)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Serve(ctx)
	waitForDial(t, addr)

	resp, err := http.Get("http://" + addr + acmeChallengePrefix + "nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListenerForwardsOrdinaryRequests(t *testing.T) {
	state := NewSharedState(nil, nil, nil)
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello from forwarder"))
	})

	addr := freeAddr(t)
	listener, err := NewListener(EntrypointConfig{Name: "web", Address: addr}, state, backend)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Serve(ctx)
	waitForDial(t, addr)

	resp, err := http.Get("http://" + addr + "/anything")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "hello from forwarder", string(body))
}

func TestListenerRejectsConnectionsWhileDraining(t *testing.T) {
	state := NewSharedState(nil, nil, nil)
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	addr := freeAddr(t)
	listener, err := NewListener(EntrypointConfig{Name: "web", Address: addr}, state, backend)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Serve(ctx)
	waitForDial(t, addr)

	state.Connections.StartDrain()

	client := http.Client{Timeout: time.Second}
	_, err = client.Get("http://" + addr + "/anything")
	require.Error(t, err, "draining entrypoint should refuse the connection outright")
}

func waitForDial(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("listener on %s never came up", addr)
}
