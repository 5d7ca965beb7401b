package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	eventbus "github.com/conceptkit/ckit/internal/eventbus"
	events "github.com/conceptkit/ckit/internal/events"
)

// envelope is the on-disk shape of one stored record: fields plus the
// metadata the contract's getMeta operation must answer.
type envelope struct {
	Fields        Record    `json:"fields"`
	LastWrittenAt time.Time `json:"lastWrittenAt"`
}

// Durable is a bbolt-backed Store: one bucket per relation, keys are the
// relation's opaque string keys, values are JSON-encoded envelopes.
// Records survive a process restart.
type Durable struct {
	db         *bolt.DB
	OnConflict ConflictHook
}

// OpenDurable opens (creating if absent) a bbolt database at path for use
// as a relation store.
func OpenDurable(path string) (*Durable, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open bbolt database: %w", err)
	}
	return &Durable{db: db}, nil
}

func (d *Durable) Close() error {
	return d.db.Close()
}

func (d *Durable) Put(ctx context.Context, relation, key string, value Record) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(relation))
		if err != nil {
			return fmt.Errorf("storage: create bucket %s: %w", relation, err)
		}

		now := time.Now().UTC()
		incoming := envelope{Fields: cloneRecord(value), LastWrittenAt: now}

		if existing := bucket.Get([]byte(key)); existing != nil && d.OnConflict != nil {
			var existingEnv envelope
			if err := json.Unmarshal(existing, &existingEnv); err != nil {
				return fmt.Errorf("storage: decode existing record %s/%s: %w", relation, key, err)
			}
			eventbus.Publish(ctx, events.StorageConflict{Relation: relation, Key: key})
			decision := d.OnConflict(ConflictInfo{
				Relation: relation,
				Key:      key,
				Existing: Entry{Fields: existingEnv.Fields, Meta: Meta{LastWrittenAt: existingEnv.LastWrittenAt}},
				Incoming: Entry{Fields: incoming.Fields, Meta: Meta{LastWrittenAt: now}},
			})
			switch decision.Resolution {
			case KeepExisting:
				return nil
			case Merge:
				incoming.Fields = cloneRecord(decision.MergedValue)
			case AcceptIncoming:
			}
		}

		data, err := json.Marshal(incoming)
		if err != nil {
			return fmt.Errorf("storage: encode record %s/%s: %w", relation, key, err)
		}
		return bucket.Put([]byte(key), data)
	})
}

func (d *Durable) Get(_ context.Context, relation, key string) (Record, bool, error) {
	var out Record
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(relation))
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return nil
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("storage: decode record %s/%s: %w", relation, key, err)
		}
		out = env.Fields
		found = true
		return nil
	})
	return out, found, err
}

func (d *Durable) Del(_ context.Context, relation, key string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(relation))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}

func (d *Durable) Find(_ context.Context, relation string, criteria Record) ([]Record, error) {
	var out []Record
	err := d.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(relation))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, data []byte) error {
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				return fmt.Errorf("storage: decode record in %s: %w", relation, err)
			}
			if matches(env.Fields, criteria) {
				out = append(out, env.Fields)
			}
			return nil
		})
	})
	return out, err
}

func (d *Durable) DelMany(_ context.Context, relation string, criteria Record) (int, error) {
	count := 0
	err := d.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(relation))
		if bucket == nil {
			return nil
		}
		var toDelete [][]byte
		err := bucket.ForEach(func(k, data []byte) error {
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				return fmt.Errorf("storage: decode record in %s: %w", relation, err)
			}
			if matches(env.Fields, criteria) {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range toDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		count = len(toDelete)
		return nil
	})
	return count, err
}

func (d *Durable) GetMeta(_ context.Context, relation, key string) (*Meta, bool, error) {
	var meta *Meta
	err := d.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(relation))
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return nil
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("storage: decode record %s/%s: %w", relation, key, err)
		}
		meta = &Meta{LastWrittenAt: env.LastWrittenAt}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return meta, meta != nil, nil
}
