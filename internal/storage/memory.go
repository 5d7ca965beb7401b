package storage

import (
	"context"
	"sync"
	"time"

	eventbus "github.com/conceptkit/ckit/internal/eventbus"
	events "github.com/conceptkit/ckit/internal/events"
)

// Memory is a volatile, in-process Store. It is the reference
// implementation the engine's unit tests run against; Durable (bbolt.go)
// is the persistent counterpart for production deployments that need
// records to survive a process restart.
type Memory struct {
	mu         sync.Mutex
	relations  map[string]map[string]Record
	metas      map[string]map[string]Meta
	OnConflict ConflictHook
}

func NewMemory() *Memory {
	return &Memory{
		relations: make(map[string]map[string]Record),
		metas:     make(map[string]map[string]Meta),
	}
}

func (m *Memory) Put(ctx context.Context, relation, key string, value Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.bucket(relation)
	metaBucket := m.metaBucket(relation)
	now := time.Now().UTC()

	existing, hasExisting := bucket[key]
	toWrite := cloneRecord(value)

	if hasExisting && m.OnConflict != nil {
		eventbus.Publish(ctx, events.StorageConflict{Relation: relation, Key: key})
		decision := m.OnConflict(ConflictInfo{
			Relation: relation,
			Key:      key,
			Existing: Entry{Fields: existing, Meta: metaBucket[key]},
			Incoming: Entry{Fields: toWrite, Meta: Meta{LastWrittenAt: now}},
		})
		switch decision.Resolution {
		case KeepExisting:
			return nil
		case Merge:
			toWrite = cloneRecord(decision.MergedValue)
		case AcceptIncoming:
			// fall through with toWrite as-is
		}
	}

	bucket[key] = toWrite
	metaBucket[key] = Meta{LastWrittenAt: now}
	return nil
}

func (m *Memory) Get(_ context.Context, relation, key string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.bucket(relation)[key]
	if !ok {
		return nil, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (m *Memory) Del(_ context.Context, relation, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bucket(relation), key)
	delete(m.metaBucket(relation), key)
	return nil
}

func (m *Memory) Find(_ context.Context, relation string, criteria Record) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.bucket(relation) {
		if matches(rec, criteria) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (m *Memory) DelMany(_ context.Context, relation string, criteria Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.bucket(relation)
	metaBucket := m.metaBucket(relation)
	var toDelete []string
	for key, rec := range bucket {
		if matches(rec, criteria) {
			toDelete = append(toDelete, key)
		}
	}
	for _, key := range toDelete {
		delete(bucket, key)
		delete(metaBucket, key)
	}
	return len(toDelete), nil
}

func (m *Memory) GetMeta(_ context.Context, relation, key string) (*Meta, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metaBucket(relation)[key]
	if !ok {
		return nil, false, nil
	}
	return &meta, true, nil
}

func (m *Memory) bucket(relation string) map[string]Record {
	b, ok := m.relations[relation]
	if !ok {
		b = make(map[string]Record)
		m.relations[relation] = b
	}
	return b
}

func (m *Memory) metaBucket(relation string) map[string]Meta {
	b, ok := m.metas[relation]
	if !ok {
		b = make(map[string]Meta)
		m.metas[relation] = b
	}
	return b
}
