package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/boltdb/bolt"
)

var (
	versionBucket = []byte("versions")
	recordBucket  = []byte("records")
)

// boltEntry is the value stored for each record.
type boltEntry struct {
	Position int64           `json:"position"`
	Data     json.RawMessage `json:"data"`
}

// BoltBackend stores collections in a bolt database, one nested bucket
// per key.
type BoltBackend struct {
	store *bolt.DB
	path  string
}

// NewBoltBackend opens or creates the database at path.
func NewBoltBackend(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	store, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = store.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{versionBucket, recordBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &BoltBackend{store: store, path: path}, nil
}

// Path returns the database file path.
func (b *BoltBackend) Path() string {
	return b.path
}

// Close closes the underlying database.
func (b *BoltBackend) Close() error {
	return b.store.Close()
}

// Load reads a collection ordered by position.
func (b *BoltBackend) Load(ctx context.Context, key string) (Snapshot, error) {
	snap := Snapshot{Key: key, Records: []Record{}}
	if err := ValidateKey(key); err != nil {
		return snap, err
	}
	if err := ctx.Err(); err != nil {
		return snap, err
	}

	err := b.store.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(versionBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		snap.Version = btoi(raw)

		bucket := tx.Bucket(recordBucket).Bucket([]byte(key))
		if bucket == nil {
			return nil
		}
		entries, err := readEntries(bucket)
		if err != nil {
			return err
		}
		for _, e := range entries {
			snap.Records = append(snap.Records, e.record)
		}
		return nil
	})
	return snap, err
}

type positioned struct {
	pos    int64
	record Record
}

func readEntries(bucket *bolt.Bucket) ([]positioned, error) {
	var out []positioned
	err := bucket.ForEach(func(k, v []byte) error {
		var e boltEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		out = append(out, positioned{pos: e.Position, record: Record{ID: string(k), Data: e.Data}})
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out, err
}

// Apply runs every op in one bolt transaction.
func (b *BoltBackend) Apply(ctx context.Context, ops ...Op) (map[string]int64, error) {
	if err := checkOps(ops); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make(map[string]int64)
	err := b.store.Update(func(tx *bolt.Tx) error {
		versions := tx.Bucket(versionBucket)
		records := tx.Bucket(recordBucket)

		start := make(map[string]int64)
		var order []string
		for _, op := range ops {
			v, seen := start[op.Key]
			if !seen {
				if raw := versions.Get([]byte(op.Key)); raw != nil {
					v = btoi(raw)
				}
				start[op.Key] = v
				order = append(order, op.Key)
			}
			if op.Expected != AnyVersion && op.Expected != v {
				return conflictError(op.Key, op.Expected, v)
			}
		}

		dropped := make(map[string]bool)
		for _, op := range ops {
			if err := applyBoltOp(records, op); err != nil {
				return err
			}
			dropped[op.Key] = op.Kind == OpDrop
		}

		for _, key := range order {
			if dropped[key] {
				if err := versions.Delete([]byte(key)); err != nil {
					return err
				}
				result[key] = 0
				continue
			}
			next := start[key] + 1
			if err := versions.Put([]byte(key), itob(next)); err != nil {
				return err
			}
			result[key] = next
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func applyBoltOp(records *bolt.Bucket, op Op) error {
	name := []byte(op.Key)

	if op.Kind == OpDrop || op.Kind == OpReplace {
		if err := records.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		if op.Kind == OpDrop {
			return nil
		}
	}

	bucket, err := records.CreateBucketIfNotExists(name)
	if err != nil {
		return err
	}

	switch op.Kind {
	case OpReplace:
		for i, rec := range op.Records {
			if err := putEntry(bucket, rec, int64(i)); err != nil {
				return err
			}
		}
	case OpUpsert:
		id := []byte(op.Record.ID)
		if raw := bucket.Get(id); raw != nil {
			var e boltEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				return err
			}
			return putEntry(bucket, op.Record, e.Position)
		}
		entries, err := readEntries(bucket)
		if err != nil {
			return err
		}
		var pos int64
		if len(entries) > 0 {
			if op.Place == Front {
				pos = entries[0].pos - 1
			} else {
				pos = entries[len(entries)-1].pos + 1
			}
		}
		return putEntry(bucket, op.Record, pos)
	case OpRemove:
		return bucket.Delete([]byte(op.ID))
	}
	return nil
}

func putEntry(bucket *bolt.Bucket, rec Record, pos int64) error {
	data, err := json.Marshal(boltEntry{Position: pos, Data: rec.Data})
	if err != nil {
		return err
	}
	return bucket.Put([]byte(rec.ID), data)
}

// Keys lists every stored key.
func (b *BoltBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := b.store.View(func(tx *bolt.Tx) error {
		return tx.Bucket(versionBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
