package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// entrypointRunner is the common shape every protocol-specific listener
// (HTTP, TCP, UDP) implements so Server can run them uniformly.
type entrypointRunner interface {
	Serve(ctx context.Context) error
}

// Server owns every entrypoint listener and the shared drain coordinator
// that spans them. Run blocks until a shutdown signal arrives (or ctx is
// cancelled), drains in-flight connections, then returns.
type Server struct {
	state       *SharedState
	listeners   map[string]entrypointRunner
	drainWindow time.Duration
}

const defaultDrainWindow = 30 * time.Second

func New(state *SharedState) *Server {
	return &Server{
		state:       state,
		listeners:   make(map[string]entrypointRunner),
		drainWindow: defaultDrainWindow,
	}
}

// WithDrainWindow overrides the default 30s drain timeout.
func (s *Server) WithDrainWindow(d time.Duration) *Server {
	s.drainWindow = d
	return s
}

// AddEntrypoint registers a listener under name. Names must be unique
// across the whole server (HTTP, TCP, and UDP entrypoints share one
// namespace since they're all addressed the same way in routing).
func (s *Server) AddEntrypoint(name string, runner entrypointRunner) {
	s.listeners[name] = runner
}

// Run starts every registered entrypoint, blocks until SIGINT/SIGTERM (or
// ctx is cancelled), then performs the drain sequence: stop accepting new
// connections, wait up to the drain window for in-flight ones to finish,
// cancel every listener, and return.
func (s *Server) Run(ctx context.Context) error {
	listenerCtx, cancelListeners := context.WithCancel(ctx)
	defer cancelListeners()

	var wg sync.WaitGroup
	for name, runner := range s.listeners {
		wg.Add(1)
		go func(name string, runner entrypointRunner) {
			defer wg.Done()
			if err := runner.Serve(listenerCtx); err != nil {
				log.Errorf("entrypoint %q stopped with error: %v", name, err)
			}
		}(name, runner)
	}

	log.Info("server started, waiting for shutdown signal")

	waitForShutdown(ctx)

	log.Info("shutdown signal received, starting graceful drain")

	s.state.Connections.StartDrain()

	active := s.state.Connections.ActiveCount()
	if active > 0 {
		log.Infof("waiting for %d active connections to drain (timeout: %s)", active, s.drainWindow)
		drainCtx, cancelDrain := context.WithTimeout(context.Background(), s.drainWindow)
		s.state.Connections.WaitForDrain(drainCtx, s.drainWindow)
		cancelDrain()
	}

	cancelListeners()
	wg.Wait()

	log.Info("server stopped")
	return nil
}

// waitForShutdown blocks until SIGINT/SIGTERM (Ctrl-C included) arrives or
// ctx is cancelled by the caller.
func waitForShutdown(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case <-ctx.Done():
	}
}
