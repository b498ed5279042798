package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

// Command is the single Raft log entry type Coordinator ever applies: grant
// the priority ticket to Holder, or clear it when Holder is empty.
type Command struct {
	Holder string `json:"holder"`
}

func marshalCommand(cmd Command) ([]byte, error) {
	return json.Marshal(cmd)
}

// ticketFSM holds the current ticket holder, replicated across the Raft
// group. Reads never go through Raft; only the Apply path is consensus-bound.
type ticketFSM struct {
	mu     sync.RWMutex
	holder string
}

func newTicketFSM() *ticketFSM {
	return &ticketFSM{}
}

// Apply implements raft.FSM.
func (f *ticketFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("cluster: unmarshal command: %w", err)
	}
	f.mu.Lock()
	f.holder = cmd.Holder
	f.mu.Unlock()
	return nil
}

// Snapshot implements raft.FSM.
func (f *ticketFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &ticketSnapshot{holder: f.holder}, nil
}

// Restore implements raft.FSM.
func (f *ticketFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var snap ticketSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("cluster: decode snapshot: %w", err)
	}
	f.mu.Lock()
	f.holder = snap.Holder()
	f.mu.Unlock()
	return nil
}

func (f *ticketFSM) current() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.holder
}

// ticketSnapshot is the FSM's entire persisted state: one string.
type ticketSnapshot struct {
	holder string
}

func (s *ticketSnapshot) Holder() string { return s.holder }

// MarshalJSON/UnmarshalJSON let json.(En|De)coder drive Persist/Restore
// without a second exported type.
func (s *ticketSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Holder string `json:"holder"`
	}{Holder: s.holder})
}

func (s *ticketSnapshot) UnmarshalJSON(data []byte) error {
	var v struct {
		Holder string `json:"holder"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.holder = v.Holder
	return nil
}

// Persist implements raft.FSMSnapshot.
func (s *ticketSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release implements raft.FSMSnapshot.
func (s *ticketSnapshot) Release() {}
