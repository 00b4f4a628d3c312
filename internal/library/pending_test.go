package library_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/nikbrunner/paperstack/internal/library"
	"github.com/nikbrunner/paperstack/internal/model"
	"github.com/nikbrunner/paperstack/internal/storage"
)

var errDiskFull = errors.New("disk full")

// flakyBackend fails every write while broken is set.
type flakyBackend struct {
	storage.Backend

	mu     sync.Mutex
	broken bool
}

func (f *flakyBackend) setBroken(v bool) {
	f.mu.Lock()
	f.broken = v
	f.mu.Unlock()
}

func (f *flakyBackend) Apply(ctx context.Context, ops ...storage.Op) (map[string]int64, error) {
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return nil, errDiskFull
	}
	return f.Backend.Apply(ctx, ops...)
}

func newFlakyStore(t *testing.T) (*library.Store, *flakyBackend, model.Paper) {
	t.Helper()
	inner := newBackend(t)
	flaky := &flakyBackend{Backend: inner}
	s := openStore(t, flaky)

	p, err := s.AddPaper(context.Background(), library.AddPaperParams{Title: "Fragile"})
	assert.NilError(t, err)
	return s, flaky, p
}

func TestPendingWrite_KeepsLocalChange(t *testing.T) {
	ctx := context.Background()
	s, flaky, p := newFlakyStore(t)

	flaky.setBroken(true)
	starred, err := s.ToggleStar(ctx, p.ID)
	assert.Assert(t, errors.Is(err, library.ErrStorage))
	assert.Assert(t, errors.Is(err, errDiskFull))
	assert.Equal(t, starred.Starred, true, "optimistic update is kept")

	pending := s.Pending()
	assert.Equal(t, len(pending), 1)
	assert.Equal(t, pending[0].Op, "toggle star")
	assert.DeepEqual(t, pending[0].Keys, []string{model.KeyPapers})
	assert.Equal(t, pending[0].Attempts, 1)
	assert.Assert(t, pending[0].ID != "")
	assert.Assert(t, s.HasUnsavedChanges())

	stored := openStore(t, flaky.Backend).Papers()
	assert.Equal(t, stored[0].Starred, false)

	flaky.setBroken(false)
	assert.NilError(t, s.Flush(ctx))
	assert.Assert(t, !s.HasUnsavedChanges())

	stored = openStore(t, flaky.Backend).Papers()
	assert.Equal(t, stored[0].Starred, true)
	assert.Equal(t, s.Papers()[0].Starred, true)
}

func TestPendingWrite_LaterChangesQueue(t *testing.T) {
	ctx := context.Background()
	s, flaky, p := newFlakyStore(t)

	flaky.setBroken(true)
	_, err := s.ToggleStar(ctx, p.ID)
	assert.Assert(t, errors.Is(err, errDiskFull))

	_, err = s.MoveToCollection(ctx, p.ID, "Work")
	assert.Assert(t, errors.Is(err, library.ErrUnsaved), "got %v", err)

	pending := s.Pending()
	assert.Equal(t, len(pending), 2)
	assert.Equal(t, pending[0].Attempts, 2, "auto sync retried the first write")

	// Reloading must not throw away unsaved changes.
	assert.NilError(t, s.Load(ctx, model.KeyPapers))
	assert.Equal(t, s.Papers()[0].Collection, "Work")

	flaky.setBroken(false)
	assert.NilError(t, s.Flush(ctx))

	stored := openStore(t, flaky.Backend).Papers()
	assert.Equal(t, stored[0].Starred, true)
	assert.Equal(t, stored[0].Collection, "Work")
}

func TestPendingWrite_FlushStillFailing(t *testing.T) {
	ctx := context.Background()
	s, flaky, p := newFlakyStore(t)

	flaky.setBroken(true)
	_, _ = s.ToggleStar(ctx, p.ID)

	err := s.Flush(ctx)
	assert.Assert(t, errors.Is(err, library.ErrStorage))
	assert.Equal(t, s.Pending()[0].Attempts, 2)
}

func TestPendingWrite_AutoSync(t *testing.T) {
	tests := []struct {
		name        string
		autoSync    bool
		wantPending int
	}{
		{"on retries on next change", true, 0},
		{"off waits for flush", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, flaky, p := newFlakyStore(t)

			if !tt.autoSync {
				on, err := s.ToggleSetting(ctx, model.KeyPrivacy, model.PrivacyAutoSync)
				assert.NilError(t, err)
				assert.Equal(t, on, false)
			}

			flaky.setBroken(true)
			_, err := s.ToggleStar(ctx, p.ID)
			assert.Assert(t, errors.Is(err, errDiskFull))

			flaky.setBroken(false)
			assert.NilError(t, s.PushRecentSearch(ctx, "graphs"))
			assert.Equal(t, len(s.Pending()), tt.wantPending)

			assert.NilError(t, s.Flush(ctx))
			assert.Equal(t, openStore(t, flaky.Backend).Papers()[0].Starred, true)
		})
	}
}

func TestDeleteAll_DiscardsPending(t *testing.T) {
	ctx := context.Background()
	s, flaky, p := newFlakyStore(t)

	flaky.setBroken(true)
	_, _ = s.ToggleStar(ctx, p.ID)
	flaky.setBroken(false)

	assert.NilError(t, s.DeleteAll(ctx))
	assert.Assert(t, !s.HasUnsavedChanges())
	assert.Equal(t, len(s.Papers()), 0)
}

func TestPendingWrite_FlushedMembershipKeepsCount(t *testing.T) {
	ctx := context.Background()
	inner, err := storage.NewFileBackend(t.TempDir())
	assert.NilError(t, err)
	flaky := &flakyBackend{Backend: inner}
	s := openStore(t, flaky)

	p, err := s.AddPaper(ctx, library.AddPaperParams{Title: "Fragile"})
	assert.NilError(t, err)

	flaky.setBroken(true)
	added, err := s.AddToFolder(ctx, p.ID, "1")
	assert.Assert(t, errors.Is(err, errDiskFull))
	assert.Equal(t, added, true)

	flaky.setBroken(false)
	assert.NilError(t, s.Flush(ctx))
	assert.Equal(t, s.HasUnsavedChanges(), false)

	stored := openStore(t, inner).Snapshot()
	assert.Equal(t, stored.GetPaperByID(p.ID).InFolder("1"), true)
	assert.Equal(t, stored.GetFolderByID("1").Count, 1)
	assert.Equal(t, len(stored.FolderCountMismatches()), 0)
}
