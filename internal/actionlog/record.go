// Package actionlog implements the append-only, flow-scoped causal
// history: the authority for pending-completion recovery and once-only
// sync firing, and the source every query and trace tool reads from.
package actionlog

import (
	"context"
	"strings"
	"time"
)

// RecordType distinguishes an invocation from its eventual completion.
type RecordType string

const (
	TypeInvocation RecordType = "invocation"
	TypeCompletion RecordType = "completion"
)

// Record is one action-log entry. Completions are terminal: they never
// carry Sync or Parent.
type Record struct {
	ID        string         `json:"id"`
	Type      RecordType     `json:"type"`
	Concept   string         `json:"concept"`
	Action    string         `json:"action"`
	Flow      string         `json:"flow"`
	Input     map[string]any `json:"input,omitempty"`
	Variant   string         `json:"variant,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Sync      string         `json:"sync,omitempty"`
	Parent    string         `json:"parent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Edge is an extra causal link recorded for multi-when-pattern firings:
// Record.Parent already names the single completion that triggered the
// dispatch loop to re-scan, but a sync with more than one when-pattern
// closes over several parent completions. AddEdge records the rest, so
// the trace builder and correlator can reconstruct the full DAG rather
// than only the primary parent link.
type Edge struct {
	Flow     string `json:"flow"`
	From     string `json:"from"`
	To       string `json:"to"`
	SyncName string `json:"syncName"`
}

// Log is the action-log contract.
type Log interface {
	// Append stores record as-is (its ID is assigned by the caller, not a
	// central allocator) and returns that same ID once the write is
	// durable.
	Append(ctx context.Context, record Record) (string, error)

	// AppendInvocation is Append with Parent set to parentCompletionID.
	AppendInvocation(ctx context.Context, invocation Record, parentCompletionID string) (string, error)

	AddEdge(ctx context.Context, edge Edge) error

	// LoadFlow returns every record sharing flowID, in append order.
	LoadFlow(ctx context.Context, flowID string) ([]Record, error)

	// LoadEdges returns every extra causal edge recorded for flowID, for
	// the trace builder and correlator to reconstruct the full DAG.
	LoadEdges(ctx context.Context, flowID string) ([]Edge, error)

	// HasFiring reports whether a sync has already fired for this exact
	// set of parent completion ids.
	HasFiring(ctx context.Context, syncName string, parentIDs []string) (bool, error)

	// RecordFiring marks (syncName, parentIDs) as fired, so a later
	// HasFiring call for the same tuple returns true. Idempotent.
	RecordFiring(ctx context.Context, syncName string, parentIDs []string) error
}

// firingKey canonicalizes a (syncName, parentIDs) tuple into the storage
// key used by HasFiring/RecordFiring. parentIDs must already be ordered
// deterministically by the caller; the key only joins them, it does not
// sort.
func firingKey(syncName string, parentIDs []string) string {
	return syncName + "\x00" + strings.Join(parentIDs, "\x00")
}
