package library

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nikbrunner/paperstack/internal/model"
	"github.com/nikbrunner/paperstack/internal/storage"
)

// encodeKey turns one collection of the library into storage records.
func encodeKey(lib *model.Library, key string) ([]storage.Record, error) {
	var records []storage.Record
	add := func(id string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", key, id, err)
		}
		records = append(records, storage.Record{ID: id, Data: data})
		return nil
	}

	switch key {
	case model.KeyPapers:
		for _, p := range lib.Papers {
			if err := add(p.ID, p); err != nil {
				return nil, err
			}
		}
	case model.KeyFolders:
		for _, f := range lib.Folders {
			if err := add(f.ID, f); err != nil {
				return nil, err
			}
		}
	case model.KeyFavoriteAuthors:
		for _, a := range lib.FavoriteAuthors {
			if err := add(a.ID, a); err != nil {
				return nil, err
			}
		}
	case model.KeyFavoriteJournals:
		for _, j := range lib.FavoriteJournals {
			if err := add(j.ID, j); err != nil {
				return nil, err
			}
		}
	case model.KeyRecentSearches:
		for _, r := range lib.RecentSearches {
			if err := add(strings.ToLower(r.Label), r); err != nil {
				return nil, err
			}
		}
	case model.KeyPrivacy:
		if err := add(key, lib.Privacy); err != nil {
			return nil, err
		}
	case model.KeyNotifications:
		if err := add(key, lib.Notifications); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown collection %q", key)
	}
	return records, nil
}

// decodeKey replaces one collection of the library with the given records.
// A nil slice means the key was never written and resets it to defaults.
func decodeKey(lib *model.Library, key string, records []storage.Record) error {
	switch key {
	case model.KeyPapers:
		papers, err := decodeAll[model.Paper](key, records)
		if err != nil {
			return err
		}
		for i := range papers {
			if papers[i].Folders == nil {
				papers[i].Folders = []string{}
			}
		}
		lib.Papers = papers
	case model.KeyFolders:
		folders, err := decodeAll[model.Folder](key, records)
		if err != nil {
			return err
		}
		lib.Folders = folders
	case model.KeyFavoriteAuthors:
		authors, err := decodeAll[model.FavoriteAuthor](key, records)
		if err != nil {
			return err
		}
		lib.FavoriteAuthors = authors
	case model.KeyFavoriteJournals:
		journals, err := decodeAll[model.FavoriteJournal](key, records)
		if err != nil {
			return err
		}
		lib.FavoriteJournals = journals
	case model.KeyRecentSearches:
		recent, err := decodeAll[model.RecentSearch](key, records)
		if err != nil {
			return err
		}
		lib.RecentSearches = recent
	case model.KeyPrivacy:
		s, err := decodeSettings(key, records)
		if err != nil {
			return err
		}
		lib.Privacy = s.Merge(model.DefaultPrivacySettings())
	case model.KeyNotifications:
		s, err := decodeSettings(key, records)
		if err != nil {
			return err
		}
		lib.Notifications = s.Merge(model.DefaultNotificationSettings())
	default:
		return fmt.Errorf("unknown collection %q", key)
	}
	return nil
}

func decodeAll[T any](key string, records []storage.Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		var v T
		if err := json.Unmarshal(r.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", key, r.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeSettings(key string, records []storage.Record) (model.Settings, error) {
	s := model.Settings{}
	for _, r := range records {
		if r.ID != key {
			continue
		}
		if err := json.Unmarshal(r.Data, &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
	}
	return s, nil
}

// replaceKeys returns a copy of dst whose collections named by keys come
// from src.
func replaceKeys(dst, src *model.Library, keys []string) *model.Library {
	out := dst.Clone()
	from := src.Clone()
	for _, key := range keys {
		switch key {
		case model.KeyPapers:
			out.Papers = from.Papers
		case model.KeyFolders:
			out.Folders = from.Folders
		case model.KeyFavoriteAuthors:
			out.FavoriteAuthors = from.FavoriteAuthors
		case model.KeyFavoriteJournals:
			out.FavoriteJournals = from.FavoriteJournals
		case model.KeyRecentSearches:
			out.RecentSearches = from.RecentSearches
		case model.KeyPrivacy:
			out.Privacy = from.Privacy
		case model.KeyNotifications:
			out.Notifications = from.Notifications
		}
	}
	return out
}

func joinKeys(keys []string) string {
	return strings.Join(keys, ",")
}
