package library

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PendingWrite is a mutation applied locally but not yet persisted.
type PendingWrite struct {
	ID       string
	Op       string
	Keys     []string
	Attempts int
	LastErr  error
	Queued   time.Time

	apply Mutation
}

type pendingQueue struct {
	writes []*PendingWrite
}

func (q *pendingQueue) len() int {
	return len(q.writes)
}

func (q *pendingQueue) add(op string, keys []string, fn Mutation, err error) *PendingWrite {
	pw := &PendingWrite{
		ID:       uuid.New().String(),
		Op:       op,
		Keys:     append([]string{}, keys...),
		Attempts: 1,
		LastErr:  err,
		Queued:   time.Now(),
		apply:    fn,
	}
	q.writes = append(q.writes, pw)
	return pw
}

// touches reports whether any pending write involves one of keys.
func (q *pendingQueue) touches(keys []string) bool {
	for _, pw := range q.writes {
		for _, k := range pw.Keys {
			for _, key := range keys {
				if k == key {
					return true
				}
			}
		}
	}
	return false
}

func (q *pendingQueue) keys() []string {
	seen := make(map[string]bool)
	var out []string
	for _, pw := range q.writes {
		for _, k := range pw.Keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// Pending returns the writes that are applied locally but not persisted,
// oldest first.
func (s *Store) Pending() []PendingWrite {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PendingWrite, len(s.pending.writes))
	for i, pw := range s.pending.writes {
		out[i] = *pw
		out[i].apply = nil
	}
	return out
}

// HasUnsavedChanges reports whether any pending write remains.
func (s *Store) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.len() > 0
}

// Flush retries every pending write in order against freshly loaded state.
// It stops at the first write that still fails; writes that no longer apply
// are dropped.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	keys := s.pending.keys()
	err := s.flushLocked(ctx)
	var events []Event
	if len(keys) > 0 {
		events = append(events, s.eventLocked(keys))
	}
	s.mu.Unlock()

	s.publish(events)
	return err
}

func (s *Store) flushLocked(ctx context.Context) error {
	if s.pending.len() == 0 {
		return nil
	}
	keys := s.pending.keys()

	base, err := s.fetchLocked(ctx, s.lib, keys)
	if err != nil {
		for _, pw := range s.pending.writes {
			pw.Attempts++
			pw.LastErr = err
		}
		return err
	}

	for len(s.pending.writes) > 0 {
		pw := s.pending.writes[0]
		log := s.log.WithFields(logrus.Fields{"op": pw.Op, "pending": pw.ID})

		next, _, err := s.persistLocked(ctx, base, pw.Keys, pw.apply)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				log.WithError(err).Warn("dropping pending write that no longer applies")
				s.pending.writes = s.pending.writes[1:]
				continue
			}
			pw.Attempts++
			pw.LastErr = err
			log.WithError(err).Warn("pending write still failing")
			return &StorageError{Key: joinKeys(pw.Keys), Op: pw.Op, Err: err}
		}
		base = next
		s.pending.writes = s.pending.writes[1:]
		log.Debug("pending write persisted")
	}

	// Everything is stored: the cache now mirrors storage for these keys.
	s.lib = replaceKeys(s.lib, base, keys)
	return nil
}
