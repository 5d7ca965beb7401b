package actionlog

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Log. It backs unit tests and the in-process
// transport's single-flow kernel path; Durable (bbolt.go) is the
// persistent counterpart production deployments need.
type Memory struct {
	mu      sync.Mutex
	byFlow  map[string][]Record
	edges   map[string][]Edge
	firings map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		byFlow:  make(map[string][]Record),
		edges:   make(map[string][]Edge),
		firings: make(map[string]bool),
	}
}

func (m *Memory) Append(_ context.Context, record Record) (string, error) {
	if record.ID == "" {
		return "", fmt.Errorf("actionlog: record has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byFlow[record.Flow] = append(m.byFlow[record.Flow], record)
	return record.ID, nil
}

func (m *Memory) AppendInvocation(ctx context.Context, invocation Record, parentCompletionID string) (string, error) {
	invocation.Type = TypeInvocation
	invocation.Parent = parentCompletionID
	return m.Append(ctx, invocation)
}

func (m *Memory) AddEdge(_ context.Context, edge Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[edge.Flow] = append(m.edges[edge.Flow], edge)
	return nil
}

func (m *Memory) LoadFlow(_ context.Context, flowID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.byFlow[flowID]
	out := make([]Record, len(records))
	copy(out, records)
	return out, nil
}

func (m *Memory) LoadEdges(_ context.Context, flowID string) ([]Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edges := m.edges[flowID]
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out, nil
}

func (m *Memory) HasFiring(_ context.Context, syncName string, parentIDs []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firings[firingKey(syncName, parentIDs)], nil
}

func (m *Memory) RecordFiring(_ context.Context, syncName string, parentIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.firings[firingKey(syncName, parentIDs)] = true
	return nil
}
