// Package correlator implements the runtime-flow correlator: it joins an
// action log's raw records to the static entities a compiled
// manifest/sync set describes, producing one summary record per flow.
package correlator

import (
	"fmt"
	"sort"

	"github.com/conceptkit/ckit/internal/actionlog"
	"github.com/conceptkit/ckit/internal/manifest"
	"github.com/conceptkit/ckit/internal/synccompile"
)

// Status is a runtime flow's overall outcome.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPartial   Status = "partial"
)

// ConceptEntity, ActionEntity, and SyncEntity are the static entities a
// runtime flow's records are joined against.
type ConceptEntity struct {
	URI  string
	Gate bool
}

type ActionEntity struct {
	ConceptURI string
	Action     string
}

type SyncEntity struct {
	Name string
}

// StaticIndex resolves the static entities a raw record references. It is
// built once from a set of manifests and compiled syncs and reused across
// every flow correlation in a process.
type StaticIndex struct {
	concepts map[string]ConceptEntity
	actions  map[string]ActionEntity
	syncs    map[string]SyncEntity
}

func NewStaticIndex(manifests []*manifest.Manifest, syncs []*synccompile.CompiledSync) *StaticIndex {
	idx := &StaticIndex{
		concepts: make(map[string]ConceptEntity),
		actions:  make(map[string]ActionEntity),
		syncs:    make(map[string]SyncEntity),
	}
	for _, m := range manifests {
		idx.concepts[m.URI] = ConceptEntity{URI: m.URI, Gate: m.Gate}
		for _, a := range m.Actions {
			key := actionKey(m.URI, a.Name)
			idx.actions[key] = ActionEntity{ConceptURI: m.URI, Action: a.Name}
		}
	}
	for _, s := range syncs {
		idx.syncs[s.Name] = SyncEntity{Name: s.Name}
	}
	return idx
}

func actionKey(conceptURI, action string) string { return conceptURI + "/" + action }

// UnresolvedRef names one record field that could not be joined to a
// static entity.
type UnresolvedRef struct {
	RecordID string
	Kind     string // "concept", "action", or "sync"
	Value    string
}

// RuntimeFlow is the correlator's output for one flow.
type RuntimeFlow struct {
	FlowID     string
	Status     Status
	Records    int
	Unresolved []UnresolvedRef
}

// Correlate joins records (one flow's worth, in append order) against idx,
// producing a RuntimeFlow. Unresolvable concept/action/sync references
// downgrade Status to partial and are listed in Unresolved, but do not
// stop the join — every record is still accounted for.
func Correlate(flowID string, records []actionlog.Record, idx *StaticIndex) (*RuntimeFlow, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("correlator: flow %s has no records", flowID)
	}

	rf := &RuntimeFlow{FlowID: flowID, Status: StatusCompleted, Records: len(records)}
	hasError := false

	for _, r := range records {
		if _, ok := idx.concepts[r.Concept]; !ok {
			rf.Unresolved = append(rf.Unresolved, UnresolvedRef{RecordID: r.ID, Kind: "concept", Value: r.Concept})
		}
		if _, ok := idx.actions[actionKey(r.Concept, r.Action)]; !ok {
			rf.Unresolved = append(rf.Unresolved, UnresolvedRef{RecordID: r.ID, Kind: "action", Value: actionKey(r.Concept, r.Action)})
		}
		if r.Sync != "" {
			if _, ok := idx.syncs[r.Sync]; !ok {
				rf.Unresolved = append(rf.Unresolved, UnresolvedRef{RecordID: r.ID, Kind: "sync", Value: r.Sync})
			}
		}
		if r.Type == actionlog.TypeCompletion && r.Variant == "error" {
			hasError = true
		}
	}

	switch {
	case len(rf.Unresolved) > 0:
		rf.Status = StatusPartial
	case hasError:
		rf.Status = StatusFailed
	default:
		rf.Status = StatusCompleted
	}

	sort.Slice(rf.Unresolved, func(i, j int) bool {
		if rf.Unresolved[i].RecordID != rf.Unresolved[j].RecordID {
			return rf.Unresolved[i].RecordID < rf.Unresolved[j].RecordID
		}
		return rf.Unresolved[i].Kind < rf.Unresolved[j].Kind
	})

	return rf, nil
}
