// Package library keeps the in-memory library in sync with its persisted
// collections and exposes the operations a user can perform on it.
package library

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nikbrunner/paperstack/internal/logging"
	"github.com/nikbrunner/paperstack/internal/model"
	"github.com/nikbrunner/paperstack/internal/storage"
)

// DefaultConflictRetries bounds how often a mutation is re-applied after a
// concurrent writer changed the same key.
const DefaultConflictRetries = 3

// Mutation changes the library in place. It must be deterministic: it runs
// once on the cached state and again on freshly loaded state after a version
// conflict or when a pending write is flushed.
type Mutation func(lib *model.Library) error

// Event is published to subscribers after the cached library changed.
type Event struct {
	Keys    []string
	Library *model.Library
}

// Options configures a Store.
type Options struct {
	Logger          logrus.FieldLogger
	ConflictRetries int
	ShareBaseURL    string
}

// Store owns the cached library. Every view reads from it and every
// mutation goes through it, so subscribers see changes immediately.
type Store struct {
	backend storage.Backend
	log     logrus.FieldLogger
	retries int
	share   string

	mu       sync.Mutex
	lib      *model.Library
	versions map[string]int64
	loaded   map[string]bool
	pending  *pendingQueue

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// NewStore creates a Store over backend. Nothing is read until Load.
func NewStore(backend storage.Backend, opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	retries := opts.ConflictRetries
	if retries <= 0 {
		retries = DefaultConflictRetries
	}
	share := opts.ShareBaseURL
	if share == "" {
		share = storage.DefaultConfig().ShareBaseURL
	}
	return &Store{
		backend:  backend,
		log:      log,
		retries:  retries,
		share:    share,
		lib:      model.NewLibrary(),
		versions: make(map[string]int64),
		loaded:   make(map[string]bool),
		pending:  &pendingQueue{},
		subs:     make(map[int]func(Event)),
	}
}

// Snapshot returns a deep copy of the cached library.
func (s *Store) Snapshot() *model.Library {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lib.Clone()
}

// Version returns the last persisted version the store has seen for key.
func (s *Store) Version(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[key]
}

// Subscribe registers fn for every change. Callbacks run after the store
// lock is released and may call back into the Store.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(events []Event) {
	if len(events) == 0 {
		return
	}
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func (s *Store) eventLocked(keys []string) Event {
	return Event{Keys: append([]string{}, keys...), Library: s.lib.Clone()}
}

// Load reads keys from storage into the cache, replacing what was cached.
// Keys with unsaved changes keep their local state. With no keys, every
// collection is loaded.
func (s *Store) Load(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		keys = model.AllKeys
	}

	s.mu.Lock()
	var events []Event
	err := s.loadLocked(ctx, keys)
	if err == nil {
		events = append(events, s.eventLocked(keys))
	}
	s.mu.Unlock()

	s.publish(events)
	return err
}

func (s *Store) loadLocked(ctx context.Context, keys []string) error {
	if s.pending.len() > 0 && s.autoSyncLocked() {
		s.flushLocked(ctx)
	}

	var fresh []string
	for _, key := range keys {
		if s.pending.touches([]string{key}) {
			s.log.WithField("key", key).Debug("keeping unsaved changes over stored state")
			continue
		}
		fresh = append(fresh, key)
	}

	lib, err := s.fetchLocked(ctx, s.lib, fresh)
	if err != nil {
		return err
	}
	s.lib = lib
	return nil
}

// ensureLoadedLocked loads keys that were never read.
func (s *Store) ensureLoadedLocked(ctx context.Context, keys []string) error {
	var missing []string
	for _, key := range keys {
		if !s.loaded[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	lib, err := s.fetchLocked(ctx, s.lib, missing)
	if err != nil {
		return err
	}
	s.lib = lib
	return nil
}

// fetchLocked returns a copy of base with keys replaced by their stored
// content, and records the stored versions.
func (s *Store) fetchLocked(ctx context.Context, base *model.Library, keys []string) (*model.Library, error) {
	lib := base.Clone()
	versions := make(map[string]int64, len(keys))
	for _, key := range keys {
		snap, err := s.backend.Load(ctx, key)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			if key == model.KeyFolders {
				snap, err = s.seedFoldersLocked(ctx)
				if err != nil {
					return nil, &StorageError{Key: key, Op: "seed", Err: err}
				}
				break
			}
			snap.Records = nil
		case err != nil:
			return nil, &StorageError{Key: key, Op: "load", Err: err}
		}

		if err := decodeKey(lib, key, snap.Records); err != nil {
			return nil, &StorageError{Key: key, Op: "decode", Err: err}
		}
		versions[key] = snap.Version
	}
	for key, v := range versions {
		s.versions[key] = v
		s.loaded[key] = true
	}
	return lib, nil
}

// seedFoldersLocked writes the default folders into an empty folder
// collection. If another process seeded first, its content wins.
func (s *Store) seedFoldersLocked(ctx context.Context) (storage.Snapshot, error) {
	seed := model.NewLibrary()
	seed.Folders = model.DefaultFolders()
	records, err := encodeKey(seed, model.KeyFolders)
	if err != nil {
		return storage.Snapshot{}, err
	}

	versions, err := s.backend.Apply(ctx, storage.ReplaceOp(model.KeyFolders, 0, records))
	if errors.Is(err, storage.ErrConflict) {
		return s.backend.Load(ctx, model.KeyFolders)
	}
	if err != nil {
		return storage.Snapshot{}, err
	}
	s.log.WithField("key", model.KeyFolders).Info("seeded default folders")
	return storage.Snapshot{Key: model.KeyFolders, Version: versions[model.KeyFolders], Records: records}, nil
}

func (s *Store) autoSyncLocked() bool {
	return s.lib.Privacy[model.PrivacyAutoSync]
}

// mutate applies fn to the cache, publishes the result and persists the
// touched keys. A failed write keeps the local change and queues fn as a
// pending write.
func (s *Store) mutate(ctx context.Context, name string, keys []string, fn Mutation) error {
	s.mu.Lock()
	events, err := s.mutateLocked(ctx, name, keys, fn)
	s.mu.Unlock()

	s.publish(events)
	return err
}

func (s *Store) mutateLocked(ctx context.Context, name string, keys []string, fn Mutation) ([]Event, error) {
	if err := s.ensureLoadedLocked(ctx, keys); err != nil {
		return nil, err
	}
	if s.pending.len() > 0 && s.autoSyncLocked() {
		s.flushLocked(ctx)
	}

	before := s.lib
	next := before.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.lib = next
	events := []Event{s.eventLocked(keys)}
	log := s.log.WithFields(logrus.Fields{"op": name, "key": joinKeys(keys)})

	if s.pending.touches(keys) {
		pw := s.pending.add(name, keys, fn, ErrUnsaved)
		log.WithField("pending", pw.ID).Warn("queued behind unsaved changes")
		return events, &StorageError{Key: joinKeys(keys), Op: name, Err: ErrUnsaved, Pending: pw.ID}
	}

	persisted, retried, err := s.persistLocked(ctx, before, keys, fn)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			// The mutation no longer applies to the stored state.
			lib, ferr := s.fetchLocked(ctx, before, keys)
			if ferr == nil {
				s.lib = lib
				events = append(events, s.eventLocked(keys))
			}
			return events, err
		}
		pw := s.pending.add(name, keys, fn, err)
		log.WithError(err).WithField("pending", pw.ID).Warn("write failed, keeping local change")
		return events, &StorageError{Key: joinKeys(keys), Op: name, Err: err, Pending: pw.ID}
	}

	if retried {
		s.lib = persisted
		events = append(events, s.eventLocked(keys))
	}
	log.Debug("persisted")
	return events, nil
}

// persistLocked computes the ops turning base into fn(base) and applies
// them. On a version conflict it reloads keys, re-applies fn and tries again.
func (s *Store) persistLocked(ctx context.Context, base *model.Library, keys []string, fn Mutation) (*model.Library, bool, error) {
	retried := false
	for attempt := 0; ; attempt++ {
		next := base.Clone()
		if err := fn(next); err != nil {
			return nil, retried, err
		}

		ops, err := s.opsLocked(base, next, keys)
		if err != nil {
			return nil, retried, err
		}
		if len(ops) == 0 {
			return next, retried, nil
		}

		versions, err := s.backend.Apply(ctx, ops...)
		if err == nil {
			for key, v := range versions {
				s.versions[key] = v
			}
			return next, retried, nil
		}
		if !errors.Is(err, storage.ErrConflict) || attempt >= s.retries {
			return nil, retried, err
		}

		s.log.WithField("key", joinKeys(keys)).WithError(err).Debug("conflict, reloading")
		retried = true
		if base, err = s.fetchLocked(ctx, base, keys); err != nil {
			return nil, retried, err
		}
	}
}

func (s *Store) opsLocked(base, next *model.Library, keys []string) ([]storage.Op, error) {
	var ops []storage.Op
	for _, key := range keys {
		before, err := encodeKey(base, key)
		if err != nil {
			return nil, err
		}
		after, err := encodeKey(next, key)
		if err != nil {
			return nil, err
		}
		ops = append(ops, diffRecords(key, s.versions[key], before, after)...)
	}
	return ops, nil
}
