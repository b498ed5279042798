package cluster

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink is a minimal raft.SnapshotSink backed by an in-memory buffer, for
// exercising Persist/Restore without a real FileSnapshotStore.
type fakeSink struct {
	bytes.Buffer
	id string
}

func (f *fakeSink) ID() string       { return f.id }
func (f *fakeSink) Cancel() error    { return nil }
func (f *fakeSink) Close() error     { return nil }

func TestTicketFSMAppliesGrantAndRelease(t *testing.T) {
	fsm := newTicketFSM()
	assert.Equal(t, "", fsm.current())

	grant, err := json.Marshal(Command{Holder: "process-a"})
	require.NoError(t, err)
	result := fsm.Apply(&raft.Log{Data: grant})
	assert.Nil(t, result)
	assert.Equal(t, "process-a", fsm.current())

	release, err := json.Marshal(Command{Holder: ""})
	require.NoError(t, err)
	fsm.Apply(&raft.Log{Data: release})
	assert.Equal(t, "", fsm.current())
}

func TestTicketFSMApplyRejectsMalformedCommand(t *testing.T) {
	fsm := newTicketFSM()
	result := fsm.Apply(&raft.Log{Data: []byte("not json")})
	err, ok := result.(error)
	require.True(t, ok)
	assert.Error(t, err)
}

func TestTicketFSMSnapshotRoundTrips(t *testing.T) {
	fsm := newTicketFSM()
	grant, err := json.Marshal(Command{Holder: "process-b"})
	require.NoError(t, err)
	fsm.Apply(&raft.Log{Data: grant})

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	sink := &fakeSink{id: "snap-1"}
	require.NoError(t, snap.Persist(sink))

	restored := newTicketFSM()
	require.NoError(t, restored.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))))
	assert.Equal(t, "process-b", restored.current())
}
