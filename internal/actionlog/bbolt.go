package actionlog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	recordsBucket = []byte("records")
	firingsBucket = []byte("firings")
)

// Durable is a bbolt-backed Log. Records are keyed `flow\x00seq`
// (seq a big-endian uint64) inside one shared bucket, so a range read for
// one flow is a prefix scan over an ordered b-tree — O(log n) to seek,
// linear in the flow's own length to read. "Is there a firing with this
// tuple?" is answered instead by the separate firings bucket, a single
// key lookup (O(log n) in the b-tree).
type Durable struct {
	db *bolt.DB
}

func OpenDurable(path string) (*Durable, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("actionlog: open bbolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(firingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("actionlog: create buckets: %w", err)
	}
	return &Durable{db: db}, nil
}

func (d *Durable) Close() error { return d.db.Close() }

func recordKey(flow string, seq uint64) []byte {
	buf := make([]byte, len(flow)+1+8)
	copy(buf, flow)
	buf[len(flow)] = 0
	binary.BigEndian.PutUint64(buf[len(flow)+1:], seq)
	return buf
}

func (d *Durable) Append(_ context.Context, record Record) (string, error) {
	if record.ID == "" {
		return "", fmt.Errorf("actionlog: record has no id")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	err := d.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("actionlog: encode record %s: %w", record.ID, err)
		}
		return bucket.Put(recordKey(record.Flow, seq), data)
	})
	if err != nil {
		return "", err
	}
	return record.ID, nil
}

func (d *Durable) AppendInvocation(ctx context.Context, invocation Record, parentCompletionID string) (string, error) {
	invocation.Type = TypeInvocation
	invocation.Parent = parentCompletionID
	return d.Append(ctx, invocation)
}

func (d *Durable) AddEdge(_ context.Context, edge Edge) error {
	// Edges are small and queried only by flow; append-keyed alongside
	// records under a per-flow edge prefix to reuse the same bucket and
	// cursor-scan approach.
	return d.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(edge)
		if err != nil {
			return err
		}
		key := recordKey("edge\x00"+edge.Flow, seq)
		return bucket.Put(key, data)
	})
}

func (d *Durable) LoadFlow(_ context.Context, flowID string) ([]Record, error) {
	var out []Record
	prefix := append([]byte(flowID), 0)
	err := d.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("actionlog: decode record: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func (d *Durable) LoadEdges(_ context.Context, flowID string) ([]Edge, error) {
	var out []Edge
	prefix := append([]byte("edge\x00"+flowID), 0)
	err := d.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var edge Edge
			if err := json.Unmarshal(v, &edge); err != nil {
				return fmt.Errorf("actionlog: decode edge: %w", err)
			}
			out = append(out, edge)
		}
		return nil
	})
	return out, err
}

func (d *Durable) HasFiring(_ context.Context, syncName string, parentIDs []string) (bool, error) {
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(firingsBucket).Get([]byte(firingKey(syncName, parentIDs)))
		found = v != nil
		return nil
	})
	return found, err
}

func (d *Durable) RecordFiring(_ context.Context, syncName string, parentIDs []string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(firingsBucket).Put([]byte(firingKey(syncName, parentIDs)), []byte{1})
	})
}
