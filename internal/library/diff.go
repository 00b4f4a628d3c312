package library

import (
	"bytes"

	"github.com/nikbrunner/paperstack/internal/storage"
)

// diffRecords turns a before/after pair of one collection into targeted
// storage ops. New records must form a prefix or suffix of after and
// surviving records must keep their relative order; anything else, such as
// a reordering, is written as a full replace.
func diffRecords(key string, expected int64, before, after []storage.Record) []storage.Op {
	prev := make(map[string][]byte, len(before))
	for _, r := range before {
		prev[r.ID] = r.Data
	}
	next := make(map[string]bool, len(after))
	for _, r := range after {
		next[r.ID] = true
	}

	var keptBefore, keptAfter []string
	for _, r := range before {
		if next[r.ID] {
			keptBefore = append(keptBefore, r.ID)
		}
	}

	var front, back []storage.Record
	seenKept := false
	for _, r := range after {
		if _, ok := prev[r.ID]; ok {
			keptAfter = append(keptAfter, r.ID)
			seenKept = true
			if len(back) > 0 {
				return []storage.Op{storage.ReplaceOp(key, expected, after)}
			}
			continue
		}
		if seenKept {
			back = append(back, r)
		} else {
			front = append(front, r)
		}
	}

	if len(keptBefore) != len(keptAfter) {
		return []storage.Op{storage.ReplaceOp(key, expected, after)}
	}
	for i := range keptBefore {
		if keptBefore[i] != keptAfter[i] {
			return []storage.Op{storage.ReplaceOp(key, expected, after)}
		}
	}

	var ops []storage.Op
	for _, r := range before {
		if !next[r.ID] {
			ops = append(ops, storage.RemoveOp(key, expected, r.ID))
		}
	}
	for _, r := range after {
		if old, ok := prev[r.ID]; ok && !bytes.Equal(old, r.Data) {
			ops = append(ops, storage.UpsertOp(key, expected, r, storage.Back))
		}
	}
	for i := len(front) - 1; i >= 0; i-- {
		ops = append(ops, storage.UpsertOp(key, expected, front[i], storage.Front))
	}
	for _, r := range back {
		ops = append(ops, storage.UpsertOp(key, expected, r, storage.Back))
	}
	return ops
}
