// Package cluster provides an optional Raft-backed priority-ticket
// coordinator for a multi-process Theus deployment.
//
// Theus's state tree itself is never replicated — durability and
// multi-process state sharing are explicit non-goals (a single Store lives
// in one process's memory). What *does* need cross-process agreement, if
// more than one Theus process contends for the same external resource a
// Store's CAS can't see (a shared file, an external queue), is which
// process currently holds the priority ticket pkg/controller grants
// in-process. Coordinator replicates only that one string via a trivial
// Raft FSM, grounded on the teacher's pkg/manager Bootstrap/Join/AddVoter
// shape and its fsm.go Command/Apply/Snapshot pattern — trimmed down to a
// single command instead of warren's full node/service/task/secret/volume
// command set.
package cluster
