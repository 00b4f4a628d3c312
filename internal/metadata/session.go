package metadata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SessionState is where a search session is in its cycle.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionDebouncing
	SessionFetching
	SessionReady
	SessionError
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionDebouncing:
		return "debouncing"
	case SessionFetching:
		return "fetching"
	case SessionReady:
		return "ready"
	case SessionError:
		return "error"
	}
	return fmt.Sprintf("session(%d)", int(s))
}

// SearchFunc runs one search.
type SearchFunc func(ctx context.Context, q Query) (Results, error)

// Update is delivered once per query that survived its debounce window and
// was not superseded before its results arrived.
type Update struct {
	Seq     uint64
	Results Results
	Err     error
}

// Session debounces query edits. Each Set supersedes the previous query:
// its timer or in-flight request is cancelled and a late answer is dropped.
type Session struct {
	search   SearchFunc
	delay    time.Duration
	onUpdate func(Update)

	mu     sync.Mutex
	seq    uint64
	state  SessionState
	cancel context.CancelFunc
	latest *Update
	closed bool

	deliverMu sync.Mutex
}

// NewSession creates a Session. onUpdate is called from a background
// goroutine, one call at a time.
func NewSession(search SearchFunc, delay time.Duration, onUpdate func(Update)) *Session {
	return &Session{search: search, delay: delay, onUpdate: onUpdate}
}

// Set replaces the current query. Blank text returns the session to idle.
func (s *Session) Set(q Query) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.seq
	}

	s.seq++
	seq := s.seq
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if strings.TrimSpace(q.Text) == "" {
		s.state = SessionIdle
		return seq
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = SessionDebouncing
	go s.run(ctx, seq, q)
	return seq
}

func (s *Session) run(ctx context.Context, seq uint64, q Query) {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if !s.advance(seq, SessionFetching) {
		return
	}

	results, err := s.search(ctx, q)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if seq != s.seq || s.closed {
		s.mu.Unlock()
		return
	}
	u := Update{Seq: seq, Results: results, Err: err}
	s.latest = &u
	if err != nil {
		s.state = SessionError
	} else {
		s.state = SessionReady
	}
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(u)
	}
}

// advance moves to state if seq is still the current query.
func (s *Session) advance(seq uint64, state SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq || s.closed {
		return false
	}
	s.state = state
	return true
}

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Latest returns the most recent delivered update.
func (s *Session) Latest() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Update{}, false
	}
	return *s.latest, true
}

// Close cancels any pending query. No update is delivered afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
