package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ActiveConfig configures the active prober for one backend server.
type ActiveConfig struct {
	Path              string
	Interval          time.Duration
	Timeout           time.Duration
	HealthyThreshold  int
	UnhealthyThreshold int
}

// DefaultActiveConfig mirrors the reference prober: a 10s interval, 2s
// timeout, and symmetric 2-sample thresholds.
func DefaultActiveConfig() ActiveConfig {
	return ActiveConfig{
		Path:               "/health",
		Interval:           10 * time.Second,
		Timeout:            2 * time.Second,
		HealthyThreshold:   2,
		UnhealthyThreshold: 2,
	}
}

// ActiveStatus tracks one backend server's probe outcome, independent of
// any request that actually flowed to it.
type ActiveStatus struct {
	mu                   sync.Mutex
	healthy              bool
	consecutiveFailures  int
	consecutiveSuccesses int
	lastError            string
}

func newActiveStatus() *ActiveStatus {
	return &ActiveStatus{healthy: true}
}

func (s *ActiveStatus) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

func (s *ActiveStatus) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveSuccesses++
	s.consecutiveFailures = 0
	s.lastError = ""
}

func (s *ActiveStatus) recordFailure(err string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	s.consecutiveSuccesses = 0
	s.lastError = err
}

// OnTransition is called whenever a probe loop flips a server's health.
type OnTransition func(serverAddress string, healthy bool)

// ActiveChecker periodically probes a fixed set of backend servers over
// plain HTTP GET and classifies the response the way the reference health
// checker does: any 2xx or 404 counts as a success (404 still proves the
// service is answering), 5xx and timeouts count as failures, and any other
// 4xx is treated as a success since the service is clearly up.
type ActiveChecker struct {
	cfg      ActiveConfig
	client   *http.Client
	onChange OnTransition

	mu       sync.Mutex
	statuses map[string]*ActiveStatus
	cancels  map[string]context.CancelFunc
}

func NewActiveChecker(cfg ActiveConfig, onChange OnTransition) *ActiveChecker {
	return &ActiveChecker{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		onChange: onChange,
		statuses: make(map[string]*ActiveStatus),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Status returns the current probe verdict for a server, defaulting to
// healthy for servers that aren't being watched.
func (c *ActiveChecker) Status(serverAddress string) bool {
	c.mu.Lock()
	s, ok := c.statuses[serverAddress]
	c.mu.Unlock()
	if !ok {
		return true
	}
	return s.IsHealthy()
}

// Watch starts a probe loop for serverAddress if one isn't already running.
func (c *ActiveChecker) Watch(ctx context.Context, serverAddress string) {
	c.mu.Lock()
	if _, exists := c.cancels[serverAddress]; exists {
		c.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancels[serverAddress] = cancel
	status := newActiveStatus()
	c.statuses[serverAddress] = status
	c.mu.Unlock()

	go c.run(loopCtx, serverAddress, status)
}

// Unwatch stops probing a server that has been removed from the router,
// e.g. because a route reload dropped its last reference.
func (c *ActiveChecker) Unwatch(serverAddress string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.cancels[serverAddress]; ok {
		cancel()
		delete(c.cancels, serverAddress)
		delete(c.statuses, serverAddress)
	}
}

func (c *ActiveChecker) run(ctx context.Context, serverAddress string, status *ActiveStatus) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probeOnce(ctx, serverAddress, status)
		}
	}
}

func (c *ActiveChecker) probeOnce(ctx context.Context, serverAddress string, status *ActiveStatus) {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	err := c.performCheck(probeCtx, serverAddress)

	wasHealthy := status.IsHealthy()

	if err == nil {
		status.recordSuccess()
		if !wasHealthy && status.consecutiveSuccesses >= c.cfg.HealthyThreshold {
			status.mu.Lock()
			status.healthy = true
			status.mu.Unlock()
			log.Debugf("backend server %s is now healthy", serverAddress)
			if c.onChange != nil {
				c.onChange(serverAddress, true)
			}
		}
		return
	}

	status.recordFailure(err.Error())
	if wasHealthy && status.consecutiveFailures >= c.cfg.UnhealthyThreshold {
		status.mu.Lock()
		status.healthy = false
		status.mu.Unlock()
		log.Warnf("backend server %s is now unhealthy: %v", serverAddress, err)
		if c.onChange != nil {
			c.onChange(serverAddress, false)
		}
	}
}

func (c *ActiveChecker) performCheck(ctx context.Context, serverAddress string) error {
	url := strings.TrimRight(serverAddress, "/") + c.cfg.Path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid probe url: %w", err)
	}
	req.Header.Set("User-Agent", "edgeproxy-health-checker/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("server error: %d", resp.StatusCode)
	default:
		return nil
	}
}
