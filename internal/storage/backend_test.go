package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/paperstack/internal/storage"
)

type opener func(t *testing.T, dir string) storage.Backend

var backends = map[string]opener{
	"sqlite": func(t *testing.T, dir string) storage.Backend {
		b, err := storage.NewSQLiteBackend(filepath.Join(dir, "test.db"))
		assert.NilError(t, err)
		return b
	},
	"bolt": func(t *testing.T, dir string) storage.Backend {
		b, err := storage.NewBoltBackend(filepath.Join(dir, "test.bolt"))
		assert.NilError(t, err)
		return b
	},
	"json": func(t *testing.T, dir string) storage.Backend {
		b, err := storage.NewFileBackend(filepath.Join(dir, "collections"))
		assert.NilError(t, err)
		return b
	},
}

// forEachBackend runs fn against a fresh instance of every backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, b storage.Backend)) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			b := open(t, t.TempDir())
			defer b.Close()
			fn(t, b)
		})
	}
}

func rec(id, data string) storage.Record {
	return storage.Record{ID: id, Data: json.RawMessage(data)}
}

func ids(snap storage.Snapshot) []string {
	out := make([]string, len(snap.Records))
	for i, r := range snap.Records {
		out[i] = r.ID
	}
	return out
}

func TestBackend_LoadMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		snap, err := b.Load(context.Background(), "papers")
		assert.Assert(t, errors.Is(err, storage.ErrNotFound))
		assert.Equal(t, snap.Version, int64(0))
		assert.Equal(t, len(snap.Records), 0)
	})
}

func TestBackend_ReplaceKeepsOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		versions, err := b.Apply(ctx, storage.ReplaceOp("papers", 0, []storage.Record{
			rec("c", `{"n":3}`), rec("a", `{"n":1}`), rec("b", `{"n":2}`),
		}))
		assert.NilError(t, err)
		assert.Equal(t, versions["papers"], int64(1))

		snap, err := b.Load(ctx, "papers")
		assert.NilError(t, err)
		assert.DeepEqual(t, ids(snap), []string{"c", "a", "b"})
		assert.Equal(t, snap.Version, int64(1))
		assert.Equal(t, string(snap.Records[1].Data), `{"n":1}`)
	})
}

func TestBackend_UpsertPlacement(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		_, err := b.Apply(ctx, storage.ReplaceOp("papers", storage.AnyVersion, []storage.Record{
			rec("a", `1`), rec("b", `2`),
		}))
		assert.NilError(t, err)

		_, err = b.Apply(ctx,
			storage.UpsertOp("papers", storage.AnyVersion, rec("front", `0`), storage.Front),
			storage.UpsertOp("papers", storage.AnyVersion, rec("back", `3`), storage.Back),
			storage.UpsertOp("papers", storage.AnyVersion, rec("a", `10`), storage.Front),
		)
		assert.NilError(t, err)

		snap, err := b.Load(ctx, "papers")
		assert.NilError(t, err)
		assert.DeepEqual(t, ids(snap), []string{"front", "a", "b", "back"})
		assert.Equal(t, string(snap.Records[1].Data), `10`)
		assert.Equal(t, snap.Version, int64(2), "one bump per Apply")
	})
}

func TestBackend_Remove(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		_, err := b.Apply(ctx, storage.ReplaceOp("folders", 0, []storage.Record{
			rec("1", `{}`), rec("2", `{}`),
		}))
		assert.NilError(t, err)

		_, err = b.Apply(ctx, storage.RemoveOp("folders", 1, "1"), storage.RemoveOp("folders", 1, "missing"))
		assert.NilError(t, err)

		snap, err := b.Load(ctx, "folders")
		assert.NilError(t, err)
		assert.DeepEqual(t, ids(snap), []string{"2"})
	})
}

func TestBackend_VersionConflict(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		_, err := b.Apply(ctx, storage.ReplaceOp("papers", 0, []storage.Record{rec("a", `1`)}))
		assert.NilError(t, err)

		// A second writer still holding version 0.
		_, err = b.Apply(ctx, storage.UpsertOp("papers", 0, rec("b", `2`), storage.Back))
		assert.Assert(t, errors.Is(err, storage.ErrConflict), "got %v", err)

		snap, err := b.Load(ctx, "papers")
		assert.NilError(t, err)
		assert.DeepEqual(t, ids(snap), []string{"a"})
	})
}

func TestBackend_ConflictWritesNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		_, err := b.Apply(ctx, storage.ReplaceOp("folders", 0, []storage.Record{rec("1", `1`)}))
		assert.NilError(t, err)

		_, err = b.Apply(ctx,
			storage.UpsertOp("papers", 0, rec("p", `{}`), storage.Front),
			storage.UpsertOp("folders", 7, rec("1", `2`), storage.Back),
		)
		assert.Assert(t, errors.Is(err, storage.ErrConflict))

		_, err = b.Load(ctx, "papers")
		assert.Assert(t, errors.Is(err, storage.ErrNotFound), "papers must stay unwritten")

		snap, err := b.Load(ctx, "folders")
		assert.NilError(t, err)
		assert.Equal(t, string(snap.Records[0].Data), `1`)
	})
}

func TestBackend_MultiKeyApply(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		versions, err := b.Apply(ctx,
			storage.ReplaceOp("papers", 0, []storage.Record{rec("p", `{}`)}),
			storage.ReplaceOp("my_folders", 0, []storage.Record{rec("1", `{}`)}),
		)
		assert.NilError(t, err)
		assert.DeepEqual(t, versions, map[string]int64{"papers": 1, "my_folders": 1})

		keys, err := b.Keys(ctx)
		assert.NilError(t, err)
		assert.DeepEqual(t, keys, []string{"my_folders", "papers"})
	})
}

func TestFileBackend_FailedCommitRestoresEveryKey(t *testing.T) {
	errRename := errors.New("rename failed")

	tests := []struct {
		name string
		ops  []storage.Op
	}{
		{
			name: "membership and count",
			ops: []storage.Op{
				storage.UpsertOp("papers", 1, rec("p", `{"folders":["1"]}`), storage.Back),
				storage.UpsertOp("my_folders", 1, rec("1", `{"count":1}`), storage.Back),
			},
		},
		{
			name: "drop then write",
			ops: []storage.Op{
				storage.DropOp("papers"),
				storage.ReplaceOp("my_folders", 1, nil),
			},
		},
		{
			name: "new key then write",
			ops: []storage.Op{
				storage.ReplaceOp("favorite_authors", 0, []storage.Record{rec("a", `{}`)}),
				storage.ReplaceOp("my_folders", 1, nil),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			b, err := storage.NewFileBackend(dir)
			assert.NilError(t, err)

			_, err = b.Apply(ctx,
				storage.ReplaceOp("papers", 0, []storage.Record{rec("p", `{"folders":[]}`)}),
				storage.ReplaceOp("my_folders", 0, []storage.Record{rec("1", `{"count":0}`)}),
			)
			assert.NilError(t, err)

			storage.SetFileRename(b, func(oldpath, newpath string) error {
				if filepath.Base(newpath) == "my_folders.json" {
					return errRename
				}
				return os.Rename(oldpath, newpath)
			})

			_, err = b.Apply(ctx, tt.ops...)
			assert.Assert(t, errors.Is(err, errRename))

			papers, err := b.Load(ctx, "papers")
			assert.NilError(t, err)
			assert.Equal(t, papers.Version, int64(1))
			assert.Equal(t, string(papers.Records[0].Data), `{"folders":[]}`)

			folders, err := b.Load(ctx, "my_folders")
			assert.NilError(t, err)
			assert.Equal(t, folders.Version, int64(1))
			assert.Equal(t, string(folders.Records[0].Data), `{"count":0}`)

			keys, err := b.Keys(ctx)
			assert.NilError(t, err)
			assert.DeepEqual(t, keys, []string{"my_folders", "papers"})

			entries, err := os.ReadDir(dir)
			assert.NilError(t, err)
			for _, e := range entries {
				assert.Check(t, !strings.HasSuffix(e.Name(), ".tmp"), "leftover %s", e.Name())
			}
		})
	}
}

func TestBackend_Drop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		_, err := b.Apply(ctx, storage.ReplaceOp("papers", 0, []storage.Record{rec("p", `{}`)}))
		assert.NilError(t, err)

		_, err = b.Apply(ctx, storage.DropOp("papers"))
		assert.NilError(t, err)

		_, err = b.Load(ctx, "papers")
		assert.Assert(t, errors.Is(err, storage.ErrNotFound))

		keys, err := b.Keys(ctx)
		assert.NilError(t, err)
		assert.Check(t, is.Len(keys, 0))
	})
}

func TestBackend_InvalidKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		_, err := b.Apply(context.Background(), storage.ReplaceOp("../escape", 0, nil))
		assert.Assert(t, errors.Is(err, storage.ErrInvalidKey))
	})
}

func TestBackend_Reopen(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			b := open(t, dir)
			_, err := b.Apply(ctx, storage.ReplaceOp("papers", 0, []storage.Record{rec("a", `1`), rec("b", `2`)}))
			assert.NilError(t, err)
			assert.NilError(t, b.Close())

			b = open(t, dir)
			defer b.Close()
			snap, err := b.Load(ctx, "papers")
			assert.NilError(t, err)
			assert.DeepEqual(t, ids(snap), []string{"a", "b"})
			assert.Equal(t, snap.Version, int64(1))
		})
	}
}

func TestBlob_ArrayRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		blob := `[{"id":"1","name":"Project Z"},{"id":"2","name":"Literature Review"}]`
		assert.NilError(t, storage.SetBlob(ctx, b, "my_folders", []byte(blob)))

		snap, err := b.Load(ctx, "my_folders")
		assert.NilError(t, err)
		assert.DeepEqual(t, ids(snap), []string{"1", "2"})

		got, err := storage.GetBlob(ctx, b, "my_folders")
		assert.NilError(t, err)
		assert.Equal(t, string(got), blob)
	})
}

func TestBlob_Document(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		blob := `{"analytics":true,"autoSync":false}`
		assert.NilError(t, storage.SetBlob(ctx, b, "privacySettings", []byte(blob)))

		got, err := storage.GetBlob(ctx, b, "privacySettings")
		assert.NilError(t, err)
		assert.Equal(t, string(got), blob)
	})
}

func TestRecordsFromBlob_IDFallbacks(t *testing.T) {
	records, err := storage.RecordsFromBlob("recent_searches",
		[]byte(`[{"label":"Transformers"},{"id":1712},"plain",{"label":"Transformers"}]`))
	assert.NilError(t, err)

	got := make([]string, len(records))
	for i, r := range records {
		got[i] = r.ID
	}
	assert.DeepEqual(t, got, []string{"Transformers", "1712", "2", "3"})
}

func TestRecordsFromBlob_Invalid(t *testing.T) {
	_, err := storage.RecordsFromBlob("papers", []byte(`not json`))
	assert.ErrorContains(t, err, "decode papers")

	_, err = storage.RecordsFromBlob("papers", nil)
	assert.ErrorContains(t, err, "empty blob")
}
