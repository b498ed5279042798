package cluster

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/theus-run/theus/pkg/log"
)

// Config configures one Coordinator node.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Coordinator is one voting member of the priority-ticket Raft group.
type Coordinator struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft *raft.Raft
	fsm  *ticketFSM
}

// New prepares a Coordinator. Call Bootstrap (first node) or StartVoter (every
// subsequent node, added via the leader's AddVoter) to actually start Raft.
func New(cfg Config) (*Coordinator, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("cluster: node ID required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("cluster: create data dir: %w", err)
	}
	return &Coordinator{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      newTicketFSM(),
	}, nil
}

func (c *Coordinator) newRaft() (*raft.Raft, error) {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(c.nodeID)
	// A ticket grant is latency-sensitive (spec.md §4.8's consecutive-conflict
	// heuristic reacts within a handful of retries), so failover is tuned
	// well below Raft's WAN-oriented defaults.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("cluster: resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("cluster: create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("cluster: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("cluster: create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("cluster: create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("cluster: create raft: %w", err)
	}
	return r, nil
}

// Bootstrap starts a brand-new, single-member ticket-coordination group.
func (c *Coordinator) Bootstrap() error {
	r, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(c.nodeID), Address: raft.ServerAddress(c.bindAddr)},
		},
	}
	if err := c.raft.BootstrapCluster(configuration).Error(); err != nil {
		return fmt.Errorf("cluster: bootstrap: %w", err)
	}
	log.WithComponent("cluster").Info().Str("node_id", c.nodeID).Msg("bootstrapped ticket coordination group")
	return nil
}

// StartVoter starts Raft for a node that will be added to an existing group
// via the leader's AddVoter call; it does not bootstrap a new group itself.
func (c *Coordinator) StartVoter() error {
	r, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r
	return nil
}

// AddVoter adds nodeID at address to the group. Only the current leader can
// do this; callers must route the request to the leader out of band (no RPC
// transport is bundled here — see DESIGN.md for why grpc was dropped).
func (c *Coordinator) AddVoter(nodeID, address string) error {
	if c.raft == nil {
		return fmt.Errorf("cluster: raft not started")
	}
	if c.raft.State() != raft.Leader {
		return fmt.Errorf("cluster: not the leader, current leader: %s", c.LeaderAddr())
	}
	future := c.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("cluster: add voter %s: %w", nodeID, err)
	}
	return nil
}

// GrantTicket replicates a ticket grant to holder ("" releases it). Only the
// leader can apply; followers return an error naming the current leader.
func (c *Coordinator) GrantTicket(holder string) error {
	if c.raft == nil {
		return fmt.Errorf("cluster: raft not started")
	}
	if c.raft.State() != raft.Leader {
		return fmt.Errorf("cluster: not the leader, current leader: %s", c.LeaderAddr())
	}
	cmd := Command{Holder: holder}
	data, err := marshalCommand(cmd)
	if err != nil {
		return err
	}
	future := c.raft.Apply(data, 10*time.Second)
	return future.Error()
}

// CurrentHolder returns the replicated ticket holder, safe to call from any
// node (a follower may briefly lag the leader).
func (c *Coordinator) CurrentHolder() string {
	return c.fsm.current()
}

// IsLeader reports whether this node is currently the Raft leader.
func (c *Coordinator) IsLeader() bool {
	return c.raft != nil && c.raft.State() == raft.Leader
}

// LeaderAddr returns the Raft-reported leader address, if known.
func (c *Coordinator) LeaderAddr() string {
	if c.raft == nil {
		return ""
	}
	addr, _ := c.raft.LeaderWithID()
	return string(addr)
}

// Shutdown stops Raft participation.
func (c *Coordinator) Shutdown() error {
	if c.raft == nil {
		return nil
	}
	return c.raft.Shutdown().Error()
}
