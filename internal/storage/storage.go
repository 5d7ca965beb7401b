// Package storage implements the relation storage contract: an abstract
// mapping from (relationName, key) to a field record, with an optional
// conflict-resolution hook on overwrite.
package storage

import (
	"context"
	"reflect"
	"time"
)

// Record is a mapping from field name to a primitive, array, or nested
// record value.
type Record map[string]any

// Meta is the metadata a store may report alongside a record.
type Meta struct {
	LastWrittenAt time.Time
}

// Entry pairs a record with its metadata, as presented to a ConflictHook.
type Entry struct {
	Fields Record
	Meta   Meta
}

// Resolution is a ConflictHook's verdict on a put that would overwrite an
// existing record.
type Resolution int

const (
	KeepExisting Resolution = iota
	AcceptIncoming
	Merge
)

// ConflictInfo is passed to a ConflictHook exactly when a put would
// overwrite an existing record.
type ConflictInfo struct {
	Relation string
	Key      string
	Existing Entry
	Incoming Entry
}

// ConflictDecision is a ConflictHook's return value. MergedValue is read
// only when Resolution == Merge.
type ConflictDecision struct {
	Resolution  Resolution
	MergedValue Record
}

// ConflictHook resolves a put-vs-existing conflict. It is a field on a
// store value, not a package-level hook, so different stores in the same
// process can resolve conflicts differently.
type ConflictHook func(info ConflictInfo) ConflictDecision

// Store is the storage contract every concept handler and the engine's
// where-clause resolver depend on. Implementations: Memory (in-process,
// volatile) and the bbolt-backed Durable store.
type Store interface {
	Put(ctx context.Context, relation, key string, value Record) error
	Get(ctx context.Context, relation, key string) (Record, bool, error)
	Del(ctx context.Context, relation, key string) error
	Find(ctx context.Context, relation string, criteria Record) ([]Record, error)
	DelMany(ctx context.Context, relation string, criteria Record) (int, error)
	GetMeta(ctx context.Context, relation, key string) (*Meta, bool, error)
}

// matches reports whether record satisfies every equality constraint in
// criteria — the conjunction-of-equality-matches semantics of `find` and
// `delMany`.
func matches(record Record, criteria Record) bool {
	for k, want := range criteria {
		got, ok := record[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func cloneRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
