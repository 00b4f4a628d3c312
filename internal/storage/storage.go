package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotFound is returned by Load for a key that has never been written.
	ErrNotFound = errors.New("key not found")
	// ErrConflict is returned by Apply when a key changed since it was read.
	ErrConflict = errors.New("version conflict")
	// ErrInvalidKey is returned for keys outside [A-Za-z0-9_.-].
	ErrInvalidKey = errors.New("invalid key")
)

// AnyVersion disables the version check of an Op.
const AnyVersion int64 = -1

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Record is one entity of a collection, keyed by its ID.
type Record struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Snapshot is the content of a collection at a given version.
// Version 0 means the key has never been written.
type Snapshot struct {
	Key     string
	Version int64
	Records []Record
}

// OpKind selects what an Op does.
type OpKind int

const (
	OpReplace OpKind = iota // replace every record of the key
	OpUpsert                // insert or update one record
	OpRemove                // delete one record
	OpDrop                  // delete the key entirely
)

func (k OpKind) String() string {
	switch k {
	case OpReplace:
		return "replace"
	case OpUpsert:
		return "upsert"
	case OpRemove:
		return "remove"
	case OpDrop:
		return "drop"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// Placement decides where an upserted record lands when it is new.
// Existing records keep their position.
type Placement int

const (
	Back Placement = iota
	Front
)

// Op is a single change to one key.
type Op struct {
	Kind     OpKind
	Key      string
	Expected int64 // version the writer last saw, or AnyVersion

	Records []Record  // OpReplace
	Record  Record    // OpUpsert
	ID      string    // OpRemove
	Place   Placement // OpUpsert of a new record
}

// Backend persists named collections of records.
//
// Apply validates every Op before writing anything: if one Op conflicts,
// none is applied. Each key touched by an Apply call gets its version
// bumped by exactly one. SQLite and Bolt commit all Ops in one transaction.
type Backend interface {
	Load(ctx context.Context, key string) (Snapshot, error)
	Apply(ctx context.Context, ops ...Op) (map[string]int64, error)
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// ValidateKey checks that a key is usable by every backend.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// ReplaceOp builds an Op replacing the whole collection.
func ReplaceOp(key string, expected int64, records []Record) Op {
	return Op{Kind: OpReplace, Key: key, Expected: expected, Records: records}
}

// UpsertOp builds an Op inserting or updating one record.
func UpsertOp(key string, expected int64, rec Record, place Placement) Op {
	return Op{Kind: OpUpsert, Key: key, Expected: expected, Record: rec, Place: place}
}

// RemoveOp builds an Op deleting one record.
func RemoveOp(key string, expected int64, id string) Op {
	return Op{Kind: OpRemove, Key: key, Expected: expected, ID: id}
}

// DropOp builds an Op deleting a key.
func DropOp(key string) Op {
	return Op{Kind: OpDrop, Key: key, Expected: AnyVersion}
}

// conflictError reports which key failed its version check.
func conflictError(key string, expected, current int64) error {
	return fmt.Errorf("%w: %s at version %d, expected %d", ErrConflict, key, current, expected)
}

// checkOps rejects ops that no backend can apply.
func checkOps(ops []Op) error {
	for _, op := range ops {
		if err := ValidateKey(op.Key); err != nil {
			return err
		}
		if op.Kind == OpUpsert && op.Record.ID == "" {
			return fmt.Errorf("upsert into %s: empty record id", op.Key)
		}
	}
	return nil
}

// applyToRecords applies one Op to an in-memory record list. Used by the
// backends that hold a whole collection at once.
func applyToRecords(records []Record, op Op) []Record {
	switch op.Kind {
	case OpReplace:
		return append([]Record{}, op.Records...)
	case OpUpsert:
		for i := range records {
			if records[i].ID == op.Record.ID {
				out := append([]Record{}, records...)
				out[i] = op.Record
				return out
			}
		}
		if op.Place == Front {
			return append([]Record{op.Record}, records...)
		}
		return append(append([]Record{}, records...), op.Record)
	case OpRemove:
		out := make([]Record, 0, len(records))
		for _, r := range records {
			if r.ID != op.ID {
				out = append(out, r)
			}
		}
		return out
	case OpDrop:
		return nil
	}
	return records
}
