package events

import "time"

// FlowStart is emitted when the kernel creates a new flow.
type FlowStart struct {
	FlowID  string
	Concept string
	Action  string
}

// FlowFinish is emitted once a kernel call that created a flow returns,
// successfully or not.
type FlowFinish struct {
	FlowID string
	Status string // "completed" or "error"
}

// SyncFired is emitted once a sync's when/where clauses resolve and its
// then-templates have been appended as invocations.
type SyncFired struct {
	FlowID      string
	SyncName    string
	CompletionIDs []string
}

// TransportInvoke is emitted around every transport.Invoke call the
// engine's drain loop makes.
type TransportInvoke struct {
	Concept  string
	Action   string
	Duration time.Duration
	Err      error
}

// StorageConflict is emitted when a storage ConflictHook fires.
type StorageConflict struct {
	Relation string
	Key      string
}
