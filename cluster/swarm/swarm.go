// Package swarm is a gossip-based membership layer built on
// github.com/hashicorp/memberlist, used for node discovery when a cluster
// has no separate service-discovery mechanism (Kubernetes endpoints, DNS,
// a load balancer's own member list). It is deliberately narrower than the
// teacher's own swarm package, which layers a shared key/value store on
// top of memberlist's gossip: here the key/value and pub/sub duties belong
// to cluster.Store (typically cluster/redisstore), and swarm's only job is
// telling the cluster.Manager who else is in the cluster and at what
// address, the way original_source/src/cluster/manager.rs's node registry
// is fed in a deployment with no external store.
package swarm

import (
	"fmt"
	"time"

	"github.com/hashicorp/memberlist"
	log "github.com/sirupsen/logrus"
)

// Peer is one member as memberlist currently sees it.
type Peer struct {
	Name string
	Addr string
	Port uint16
}

// Config configures the local memberlist agent.
type Config struct {
	// NodeName must be unique within the cluster; defaults to the host's
	// memberlist-assigned name if empty.
	NodeName string

	// BindAddr/BindPort are where this node listens for gossip traffic.
	BindAddr string
	BindPort int

	// AdvertiseAddr/AdvertisePort override what this node tells peers to
	// use when BindAddr is not directly reachable (e.g. behind NAT).
	AdvertiseAddr string
	AdvertisePort int
}

// Membership wraps a running memberlist agent plus the join/leave log
// every deployment wants out of the box.
type Membership struct {
	list *memberlist.Memberlist
}

// Join starts the local gossip agent and, if seeds is non-empty, merges
// into the cluster reachable through any of them. An empty seeds list
// starts a brand-new single-node cluster other nodes can later join.
func Join(cfg Config, seeds []string) (*Membership, error) {
	conf := memberlist.DefaultLANConfig()
	if cfg.NodeName != "" {
		conf.Name = cfg.NodeName
	}
	if cfg.BindAddr != "" {
		conf.BindAddr = cfg.BindAddr
	}
	if cfg.BindPort != 0 {
		conf.BindPort = cfg.BindPort
	}
	if cfg.AdvertiseAddr != "" {
		conf.AdvertiseAddr = cfg.AdvertiseAddr
	}
	if cfg.AdvertisePort != 0 {
		conf.AdvertisePort = cfg.AdvertisePort
	}
	conf.Events = &eventLogger{}
	conf.LogOutput = logrusWriter{}

	list, err := memberlist.Create(conf)
	if err != nil {
		return nil, fmt.Errorf("swarm: create memberlist agent: %w", err)
	}

	m := &Membership{list: list}

	if len(seeds) > 0 {
		if _, err := list.Join(seeds); err != nil {
			_ = list.Shutdown()
			return nil, fmt.Errorf("swarm: join cluster via %v: %w", seeds, err)
		}
	}

	log.WithFields(log.Fields{
		"node": list.LocalNode().Name,
		"addr": list.LocalNode().Address(),
	}).Info("cluster: swarm membership started")

	return m, nil
}

// LocalNode returns this process's own membership entry.
func (m *Membership) LocalNode() Peer {
	n := m.list.LocalNode()
	return Peer{Name: n.Name, Addr: n.Addr.String(), Port: n.Port}
}

// Peers lists every member currently known to the local gossip agent,
// including this node.
func (m *Membership) Peers() []Peer {
	members := m.list.Members()
	peers := make([]Peer, 0, len(members))
	for _, n := range members {
		peers = append(peers, Peer{Name: n.Name, Addr: n.Addr.String(), Port: n.Port})
	}
	return peers
}

// NumPeers is a cheap version of len(Peers()) for health/metrics reporting.
func (m *Membership) NumPeers() int {
	return m.list.NumMembers()
}

// Leave announces a graceful departure, giving peers up to timeout to
// observe it before Shutdown tears down the local agent.
func (m *Membership) Leave(timeout time.Duration) error {
	if err := m.list.Leave(timeout); err != nil {
		log.WithError(err).Warn("swarm: leave announcement failed")
	}
	return m.list.Shutdown()
}

// eventLogger logs membership changes at info level, the same ambient
// visibility the teacher gives route/service reloads.
type eventLogger struct{}

func (eventLogger) NotifyJoin(n *memberlist.Node) {
	log.WithField("node", n.Name).Info("cluster: peer joined")
}

func (eventLogger) NotifyLeave(n *memberlist.Node) {
	log.WithField("node", n.Name).Info("cluster: peer left")
}

func (eventLogger) NotifyUpdate(n *memberlist.Node) {
	log.WithField("node", n.Name).Debug("cluster: peer updated")
}

// logrusWriter adapts memberlist's *log.Logger-shaped LogOutput to logrus
// at debug level; memberlist is chatty about routine gossip housekeeping.
type logrusWriter struct{}

func (logrusWriter) Write(p []byte) (int, error) {
	log.Debug(string(p))
	return len(p), nil
}
