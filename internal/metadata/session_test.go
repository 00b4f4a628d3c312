package metadata_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"

	"github.com/nikbrunner/paperstack/internal/metadata"
)

type recorder struct {
	mu      sync.Mutex
	queries []string
	updates []metadata.Update
}

func (r *recorder) search(delay func(q string) time.Duration) metadata.SearchFunc {
	return func(ctx context.Context, q metadata.Query) (metadata.Results, error) {
		r.mu.Lock()
		r.queries = append(r.queries, q.Text)
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return metadata.Results{}, ctx.Err()
		case <-time.After(delay(q.Text)):
		}
		return metadata.Results{Query: q, Items: []metadata.Result{{Title: q.Text}}}, nil
	}
}

func (r *recorder) onUpdate(u metadata.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) snapshot() ([]string, []metadata.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...), append([]metadata.Update(nil), r.updates...)
}

func waitForUpdates(r *recorder, n int) poll.Check {
	return func(t poll.LogT) poll.Result {
		if _, updates := r.snapshot(); len(updates) >= n {
			return poll.Success()
		}
		return poll.Continue("waiting for %d updates", n)
	}
}

func TestSession_DebounceCoalesces(t *testing.T) {
	rec := &recorder{}
	s := metadata.NewSession(rec.search(func(string) time.Duration { return 0 }), 50*time.Millisecond, rec.onUpdate)
	defer s.Close()

	s.Set(metadata.Query{Text: "a"})
	s.Set(metadata.Query{Text: "at"})
	last := s.Set(metadata.Query{Text: "atten"})
	assert.Equal(t, s.State(), metadata.SessionDebouncing)

	poll.WaitOn(t, waitForUpdates(rec, 1), poll.WithTimeout(2*time.Second))
	time.Sleep(100 * time.Millisecond)

	queries, updates := rec.snapshot()
	assert.DeepEqual(t, queries, []string{"atten"})
	assert.Equal(t, len(updates), 1)
	assert.Equal(t, updates[0].Seq, last)
	assert.Equal(t, updates[0].Results.Items[0].Title, "atten")
	assert.Equal(t, s.State(), metadata.SessionReady)
}

func TestSession_StaleResponseDropped(t *testing.T) {
	rec := &recorder{}
	slowFirst := func(q string) time.Duration {
		if q == "slow" {
			return 300 * time.Millisecond
		}
		return 0
	}
	s := metadata.NewSession(rec.search(slowFirst), 10*time.Millisecond, rec.onUpdate)
	defer s.Close()

	s.Set(metadata.Query{Text: "slow"})
	poll.WaitOn(t, func(t poll.LogT) poll.Result {
		if queries, _ := rec.snapshot(); len(queries) == 1 {
			return poll.Success()
		}
		return poll.Continue("first search not started")
	}, poll.WithTimeout(2*time.Second))

	s.Set(metadata.Query{Text: "fast"})
	poll.WaitOn(t, waitForUpdates(rec, 1), poll.WithTimeout(2*time.Second))
	time.Sleep(400 * time.Millisecond)

	_, updates := rec.snapshot()
	assert.Equal(t, len(updates), 1)
	assert.Equal(t, updates[0].Results.Query.Text, "fast")

	latest, ok := s.Latest()
	assert.Assert(t, ok)
	assert.Equal(t, latest.Results.Query.Text, "fast")
}

func TestSession_BlankQueryIsIdle(t *testing.T) {
	rec := &recorder{}
	s := metadata.NewSession(rec.search(func(string) time.Duration { return 0 }), 20*time.Millisecond, rec.onUpdate)
	defer s.Close()

	s.Set(metadata.Query{Text: "graph"})
	s.Set(metadata.Query{Text: "   "})
	assert.Equal(t, s.State(), metadata.SessionIdle)

	time.Sleep(100 * time.Millisecond)
	queries, updates := rec.snapshot()
	assert.Equal(t, len(queries), 0)
	assert.Equal(t, len(updates), 0)
}

func TestSession_NoUpdateAfterClose(t *testing.T) {
	rec := &recorder{}
	s := metadata.NewSession(rec.search(func(string) time.Duration { return 0 }), 20*time.Millisecond, rec.onUpdate)

	s.Set(metadata.Query{Text: "graph"})
	s.Close()

	time.Sleep(100 * time.Millisecond)
	_, updates := rec.snapshot()
	assert.Equal(t, len(updates), 0)
}
