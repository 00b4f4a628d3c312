package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// A document key holds a single JSON object instead of an array. It is
// stored as one record whose ID equals the key.

// GetBlob returns the collection as one serialized value: a JSON array of
// record data, or the object itself for document keys. Missing keys return
// ErrNotFound.
func GetBlob(ctx context.Context, b Backend, key string) ([]byte, error) {
	snap, err := b.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	if len(snap.Records) == 1 && snap.Records[0].ID == key {
		return snap.Records[0].Data, nil
	}

	items := make([]json.RawMessage, len(snap.Records))
	for i, r := range snap.Records {
		items[i] = r.Data
	}
	return json.Marshal(items)
}

// SetBlob overwrites a key with a serialized value. Arrays become one record
// per element, keyed by the element's "id" or "label" field, falling back to
// its position. Objects become a document.
func SetBlob(ctx context.Context, b Backend, key string, blob []byte) error {
	records, err := RecordsFromBlob(key, blob)
	if err != nil {
		return err
	}
	_, err = b.Apply(ctx, ReplaceOp(key, AnyVersion, records))
	return err
}

// RecordsFromBlob splits a serialized collection into records.
func RecordsFromBlob(key string, blob []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) == 0 {
		return nil, errors.New("empty blob")
	}

	if trimmed[0] == '{' {
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("decode %s: invalid JSON object", key)
		}
		return []Record{{ID: key, Data: json.RawMessage(trimmed)}}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	records := make([]Record, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		id := recordID(item)
		if id == "" || seen[id] {
			id = strconv.Itoa(i)
		}
		seen[id] = true
		records[i] = Record{ID: id, Data: item}
	}
	return records, nil
}

func recordID(item json.RawMessage) string {
	var head struct {
		ID    *json.RawMessage `json:"id"`
		Label string           `json:"label"`
	}
	if err := json.Unmarshal(item, &head); err != nil {
		return ""
	}
	if head.ID != nil {
		var s string
		if json.Unmarshal(*head.ID, &s) == nil {
			return s
		}
		return string(*head.ID)
	}
	return head.Label
}
