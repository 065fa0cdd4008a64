package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Config controls a Manager's node identity and timing.
type Config struct {
	// NodeID identifies this process in the cluster. If empty, one is
	// derived from the hostname plus a random suffix.
	NodeID string

	// AdvertiseAddress is the address other nodes should use to reach
	// this one (informational; the manager does not dial it).
	AdvertiseAddress string

	// HeartbeatInterval controls how often this node refreshes its
	// registry entry.
	HeartbeatInterval time.Duration

	// LeaderTTL is the lease duration used for health-check leadership;
	// the election loop renews at roughly a third of this.
	LeaderTTL time.Duration

	// NodeTimeout is how stale a peer's last heartbeat may be before
	// ActiveNodes treats it as gone.
	NodeTimeout time.Duration

	// Version is recorded in this node's published NodeInfo.
	Version string
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.LeaderTTL <= 0 {
		c.LeaderTTL = 15 * time.Second
	}
	if c.NodeTimeout <= 0 {
		c.NodeTimeout = 30 * time.Second
	}
	return c
}

const leaderTask = "health_check"

// Manager registers this process in the cluster, runs its heartbeat and
// health-check-leader-election loops, and lets the rest of the process ask
// "am I the health-check leader" / "is node X draining" without touching
// the Store directly. It is the Go counterpart of TrafficCop's
// ClusterManager: one manager per process, constructed once at startup and
// shut down once at process exit.
type Manager struct {
	nodeID  string
	address string
	store   Store
	cfg     Config

	leader   atomic.Bool
	draining atomic.Bool
	active   atomic.Uint64

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New registers this node and starts its background heartbeat, leader
// election, and drain-listener goroutines. Call Shutdown to stop them and
// deregister cleanly.
func New(ctx context.Context, cfg Config, store Store) (*Manager, error) {
	cfg = cfg.withDefaults()

	nodeID := cfg.NodeID
	if nodeID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		nodeID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	address := cfg.AdvertiseAddress
	if address == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "127.0.0.1"
		}
		address = fmt.Sprintf("%s:8080", host)
	}

	m := &Manager{
		nodeID:  nodeID,
		address: address,
		store:   store,
		cfg:     cfg,
		stop:    make(chan struct{}),
	}

	if err := m.registerNode(ctx); err != nil {
		return nil, fmt.Errorf("cluster: register node: %w", err)
	}

	m.wg.Add(3)
	go m.heartbeatLoop()
	go m.leaderElectionLoop()
	go m.drainListenerLoop()

	log.WithFields(log.Fields{"node_id": nodeID, "advertise": address}).Info("cluster manager started")
	return m, nil
}

func (m *Manager) NodeID() string { return m.nodeID }

// IsHealthCheckLeader reports whether this node currently holds the
// health-check leadership lease; only the leader should run active probes.
func (m *Manager) IsHealthCheckLeader() bool { return m.leader.Load() }

func (m *Manager) IsDraining() bool { return m.draining.Load() }

func (m *Manager) Store() Store { return m.store }

// UpdateConnections records this node's current in-flight connection count,
// published on the next heartbeat.
func (m *Manager) UpdateConnections(count uint64) { m.active.Store(count) }

// StartDrain marks this node as draining in the shared registry, letting
// peers stop routing new sticky sessions to it.
func (m *Manager) StartDrain(ctx context.Context) error {
	log.WithField("node_id", m.nodeID).Info("cluster: node draining")
	m.draining.Store(true)
	return m.setStatus(ctx, NodeDraining)
}

// Shutdown stops the background loops, releases leadership if held, and
// deregisters this node. Safe to call once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()

	if m.leader.Load() {
		_ = m.store.ReleaseLease(ctx, leaderTask, m.nodeID)
	}
	return m.store.Delete(ctx, nodeKey(m.nodeID))
}

func nodeKey(nodeID string) string { return "nodes:" + nodeID }

func (m *Manager) registerNode(ctx context.Context) error {
	now := time.Now()
	info := NodeInfo{
		NodeID:        m.nodeID,
		Address:       m.address,
		Status:        NodeActive,
		LastHeartbeat: now,
		StartedAt:     now,
		Version:       m.cfg.Version,
	}
	return m.putNode(ctx, info)
}

func (m *Manager) putNode(ctx context.Context, info NodeInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, nodeKey(info.NodeID), raw, 2*m.cfg.HeartbeatInterval+m.cfg.NodeTimeout)
}

func (m *Manager) setStatus(ctx context.Context, status NodeStatus) error {
	raw, err := m.store.Get(ctx, nodeKey(m.nodeID))
	if err != nil {
		return err
	}
	var info NodeInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return err
	}
	info.Status = status
	info.LastHeartbeat = time.Now()
	if err := m.putNode(ctx, info); err != nil {
		return err
	}
	if status == NodeDraining {
		return m.store.Publish(ctx, "events:node_drain", []byte(m.nodeID))
	}
	return nil
}

func (m *Manager) heartbeatLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HeartbeatInterval)
			raw, err := m.store.Get(ctx, nodeKey(m.nodeID))
			if err == nil {
				var info NodeInfo
				if json.Unmarshal(raw, &info) == nil {
					info.LastHeartbeat = time.Now()
					info.ActiveConnections = m.active.Load()
					err = m.putNode(ctx, info)
				}
			}
			cancel()
			if err != nil {
				log.WithError(err).Warn("cluster: heartbeat failed")
			}
		case <-m.stop:
			return
		}
	}
}

// leaderElectionLoop tries to acquire or renew the health-check leadership
// lease at roughly a third of its TTL, matching spec.md's "renewed at ~1/3
// TTL" requirement.
func (m *Manager) leaderElectionLoop() {
	defer m.wg.Done()
	interval := m.cfg.LeaderTTL / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			acquired, err := m.store.AcquireLease(ctx, leaderTask, m.nodeID, m.cfg.LeaderTTL)
			cancel()
			if err != nil {
				log.WithError(err).Warn("cluster: leader election failed")
				m.leader.Store(false)
				continue
			}
			wasLeader := m.leader.Swap(acquired)
			if acquired && !wasLeader {
				log.Info("cluster: acquired health-check leadership")
			} else if !acquired && wasLeader {
				log.Info("cluster: lost health-check leadership")
			}
		case <-m.stop:
			return
		}
	}
}

// drainListenerLoop watches for other nodes announcing drain so local
// diagnostics/logging can reflect cluster-wide state; it does not itself
// trigger any re-balancing.
func (m *Manager) drainListenerLoop() {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe, err := m.store.Subscribe(ctx, "events:node_drain")
	if err != nil {
		log.WithError(err).Error("cluster: failed to subscribe to drain events")
		return
	}
	defer unsubscribe()

	for {
		select {
		case payload, ok := <-events:
			if !ok {
				return
			}
			nodeID := string(payload)
			if nodeID != m.nodeID {
				log.WithField("node_id", nodeID).Info("cluster: peer node draining")
			}
		case <-m.stop:
			return
		}
	}
}

// ActiveNodes lists cluster members whose heartbeat is within NodeTimeout
// and whose status is not unhealthy.
func (m *Manager) ActiveNodes(ctx context.Context, list func(ctx context.Context) ([]NodeInfo, error)) ([]NodeInfo, error) {
	nodes, err := list(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-m.cfg.NodeTimeout)
	active := nodes[:0]
	for _, n := range nodes {
		if n.Status != NodeUnhealthy && n.LastHeartbeat.After(cutoff) {
			active = append(active, n)
		}
	}
	return active, nil
}

// Stats summarizes the cluster given an externally-listed set of nodes
// (callers typically source this from a swarm.Membership or a store-backed
// registry scan).
func (m *Manager) Stats(nodes []NodeInfo) Stats {
	var total uint64
	var activeCount, drainingCount int
	for _, n := range nodes {
		total += n.ActiveConnections
		switch n.Status {
		case NodeActive:
			activeCount++
		case NodeDraining:
			drainingCount++
		}
	}
	return Stats{
		NodeCount:          len(nodes),
		ActiveNodes:        activeCount,
		DrainingNodes:      drainingCount,
		TotalConnections:   total,
		ThisNodeID:         m.nodeID,
		ThisNodeIsLeader:   m.leader.Load(),
		ThisNodeIsDraining: m.draining.Load(),
	}
}
