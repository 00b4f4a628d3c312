package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gosimple/slug"

	"github.com/nikbrunner/paperstack/internal/model"
	"github.com/nikbrunner/paperstack/internal/storage"
)

// AppVersion is written into data exports.
const AppVersion = "1.4.1"

// Export is the data export document.
type Export struct {
	ExportDate time.Time                  `json:"exportDate"`
	AppVersion string                     `json:"appVersion"`
	Data       map[string]json.RawMessage `json:"data"`
}

// ExportData collects every persisted collection as stored. Unsaved local
// changes are not included.
func (s *Store) ExportData(ctx context.Context) (*Export, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp := &Export{
		ExportDate: time.Now(),
		AppVersion: AppVersion,
		Data:       make(map[string]json.RawMessage),
	}
	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, &StorageError{Key: "*", Op: "export", Err: err}
	}
	for _, key := range keys {
		blob, err := storage.GetBlob(ctx, s.backend, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, &StorageError{Key: key, Op: "export", Err: err}
		}
		exp.Data[key] = blob
	}
	return exp, nil
}

// ExportFileName names an export file after its timestamp.
func ExportFileName(at time.Time) string {
	return slug.Make(fmt.Sprintf("paperstack_export_%d", at.UnixMilli())) + ".json"
}

// DeleteAll drops every persisted collection and resets the cache. Pending
// writes are discarded. The next Load seeds the default folders again.
func (s *Store) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	err := s.deleteAllLocked(ctx)
	var events []Event
	if err == nil {
		events = append(events, s.eventLocked(model.AllKeys))
	}
	s.mu.Unlock()

	s.publish(events)
	return err
}

func (s *Store) deleteAllLocked(ctx context.Context) error {
	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return &StorageError{Key: "*", Op: "delete all", Err: err}
	}
	if len(keys) > 0 {
		ops := make([]storage.Op, len(keys))
		for i, key := range keys {
			ops[i] = storage.DropOp(key)
		}
		if _, err := s.backend.Apply(ctx, ops...); err != nil {
			return &StorageError{Key: "*", Op: "delete all", Err: err}
		}
	}

	s.lib = model.NewLibrary()
	s.versions = make(map[string]int64)
	s.loaded = make(map[string]bool)
	s.pending = &pendingQueue{}
	s.log.WithField("keys", len(keys)).Info("deleted all data")
	return nil
}
