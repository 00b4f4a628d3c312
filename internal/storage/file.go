package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// fileEnvelope is the on-disk layout of one key.
type fileEnvelope struct {
	Version int64    `json:"version"`
	Records []Record `json:"records"`
}

// FileBackend stores each key as a JSON file in a directory.
// An Apply stages every touched file before renaming any of them into
// place, and puts back the keys it already replaced when a later rename
// fails.
type FileBackend struct {
	mu     sync.Mutex
	dir    string
	rename func(oldpath, newpath string) error
}

// NewFileBackend creates a FileBackend rooted at dir.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileBackend{dir: dir, rename: os.Rename}, nil
}

// Path returns the data directory.
func (b *FileBackend) Path() string {
	return b.dir
}

func (b *FileBackend) file(key string) string {
	return filepath.Join(b.dir, key+".json")
}

// Load reads a key from its file.
func (b *FileBackend) Load(ctx context.Context, key string) (Snapshot, error) {
	if err := ValidateKey(key); err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read(key)
}

func (b *FileBackend) read(key string) (Snapshot, error) {
	snap := Snapshot{Key: key, Records: []Record{}}

	data, err := os.ReadFile(b.file(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snap, ErrNotFound
		}
		return snap, err
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return snap, err
	}
	snap.Version = env.Version
	for _, r := range env.Records {
		// Records are indented on disk.
		var buf bytes.Buffer
		if err := json.Compact(&buf, r.Data); err != nil {
			return snap, err
		}
		snap.Records = append(snap.Records, Record{ID: r.ID, Data: buf.Bytes()})
	}
	return snap, nil
}

// Apply checks every op against the current versions, stages the touched
// keys and then commits them together.
func (b *FileBackend) Apply(ctx context.Context, ops ...Op) (map[string]int64, error) {
	if err := checkOps(ops); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current := make(map[string]Snapshot)
	var order []string
	for _, op := range ops {
		snap, seen := current[op.Key]
		if !seen {
			var err error
			snap, err = b.read(op.Key)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			current[op.Key] = snap
			order = append(order, op.Key)
		}
		if op.Expected != AnyVersion && op.Expected != snap.Version {
			return nil, conflictError(op.Key, op.Expected, snap.Version)
		}
	}

	next := make(map[string][]Record, len(order))
	dropped := make(map[string]bool)
	for _, key := range order {
		next[key] = current[key].Records
	}
	for _, op := range ops {
		next[op.Key] = applyToRecords(next[op.Key], op)
		dropped[op.Key] = op.Kind == OpDrop
	}

	var plan []stagedFile
	discard := func() {
		for _, st := range plan {
			if st.tmp != "" {
				os.Remove(st.tmp)
			}
		}
	}
	for _, key := range order {
		st := stagedFile{key: key}
		prev, err := os.ReadFile(b.file(key))
		switch {
		case err == nil:
			st.prev, st.existed = prev, true
		case !errors.Is(err, os.ErrNotExist):
			discard()
			return nil, err
		}
		if !dropped[key] {
			env := fileEnvelope{Version: current[key].Version + 1, Records: next[key]}
			if env.Records == nil {
				env.Records = []Record{}
			}
			data, err := json.MarshalIndent(env, "", "  ")
			if err != nil {
				discard()
				return nil, err
			}
			if st.tmp, err = b.stage(key, data); err != nil {
				discard()
				return nil, err
			}
			st.version = env.Version
		}
		plan = append(plan, st)
	}

	versions := make(map[string]int64, len(plan))
	for i, st := range plan {
		var err error
		if st.tmp == "" {
			if err = os.Remove(b.file(st.key)); errors.Is(err, os.ErrNotExist) {
				err = nil
			}
		} else {
			err = b.rename(st.tmp, b.file(st.key))
		}
		if err != nil {
			discard()
			if rerr := b.restore(plan[:i]); rerr != nil {
				return nil, errors.Join(err, fmt.Errorf("restore: %w", rerr))
			}
			return nil, err
		}
		versions[st.key] = st.version
	}
	return versions, nil
}

// stagedFile is one key of an Apply waiting to be committed.
type stagedFile struct {
	key     string
	tmp     string // empty when the key is dropped
	version int64
	prev    []byte
	existed bool
}

// stage writes data to a temp file next to the key's file.
func (b *FileBackend) stage(key string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(b.dir, "."+key+"-*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// restore puts committed keys back to their content before the Apply.
func (b *FileBackend) restore(committed []stagedFile) error {
	var errs []error
	for _, st := range committed {
		if !st.existed {
			if err := os.Remove(b.file(st.key)); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		tmp, err := b.stage(st.key, st.prev)
		if err == nil {
			if err = b.rename(tmp, b.file(st.key)); err != nil {
				os.Remove(tmp)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.key, err))
		}
	}
	return errors.Join(errs...)
}

// Keys lists every stored key.
func (b *FileBackend) Keys(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op for files.
func (b *FileBackend) Close() error {
	return nil
}
