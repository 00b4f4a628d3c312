package library

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/nikbrunner/paperstack/internal/model"
)

// ToggleFavoriteAuthor follows or unfollows an author. Returns whether the
// author is a favorite afterwards.
func (s *Store) ToggleFavoriteAuthor(ctx context.Context, a model.FavoriteAuthor) (bool, error) {
	if strings.TrimSpace(a.ID) == "" {
		return false, invalid("author", "id required")
	}
	var now bool
	err := s.mutate(ctx, "toggle favorite author", []string{model.KeyFavoriteAuthors}, func(lib *model.Library) error {
		lib.FavoriteAuthors = model.ToggleFavoriteAuthor(lib.FavoriteAuthors, a)
		now = lib.IsFavoriteAuthor(a.ID)
		return nil
	})
	return now, err
}

// ToggleFavoriteJournal follows or unfollows a journal.
func (s *Store) ToggleFavoriteJournal(ctx context.Context, j model.FavoriteJournal) (bool, error) {
	if strings.TrimSpace(j.ID) == "" {
		return false, invalid("journal", "id required")
	}
	var now bool
	err := s.mutate(ctx, "toggle favorite journal", []string{model.KeyFavoriteJournals}, func(lib *model.Library) error {
		lib.FavoriteJournals = model.ToggleFavoriteJournal(lib.FavoriteJournals, j)
		now = lib.IsFavoriteJournal(j.ID)
		return nil
	})
	return now, err
}

// FavoriteAuthors returns the followed authors.
func (s *Store) FavoriteAuthors() []model.FavoriteAuthor {
	return s.Snapshot().FavoriteAuthors
}

// FavoriteJournals returns the followed journals.
func (s *Store) FavoriteJournals() []model.FavoriteJournal {
	return s.Snapshot().FavoriteJournals
}

// PushRecentSearch records a search label at the front of the recent list.
// Blank labels are ignored.
func (s *Store) PushRecentSearch(ctx context.Context, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil
	}
	entry := model.RecentSearch{Label: label, Color: searchColor(label)}
	return s.mutate(ctx, "push recent search", []string{model.KeyRecentSearches}, func(lib *model.Library) error {
		lib.RecentSearches = model.PushRecentSearch(lib.RecentSearches, entry)
		return nil
	})
}

// RecentSearches returns the recent search list, most recent first.
func (s *Store) RecentSearches() []model.RecentSearch {
	return s.Snapshot().RecentSearches
}

// Settings returns the switches stored under key (KeyPrivacy or
// KeyNotifications).
func (s *Store) Settings(key string) (model.Settings, error) {
	lib := s.Snapshot()
	switch key {
	case model.KeyPrivacy:
		return lib.Privacy, nil
	case model.KeyNotifications:
		return lib.Notifications, nil
	}
	return nil, invalid("settings", "unknown group "+key)
}

// ToggleSetting flips one switch and returns its new value.
func (s *Store) ToggleSetting(ctx context.Context, key, name string) (bool, error) {
	var defaults model.Settings
	switch key {
	case model.KeyPrivacy:
		defaults = model.DefaultPrivacySettings()
	case model.KeyNotifications:
		defaults = model.DefaultNotificationSettings()
	default:
		return false, invalid("settings", "unknown group "+key)
	}
	if _, ok := defaults[name]; !ok {
		return false, invalid("setting", "unknown switch "+name)
	}

	var value bool
	err := s.mutate(ctx, "toggle setting", []string{key}, func(lib *model.Library) error {
		if key == model.KeyPrivacy {
			lib.Privacy = model.ToggleSetting(lib.Privacy, name)
			value = lib.Privacy[name]
		} else {
			lib.Notifications = model.ToggleSetting(lib.Notifications, name)
			value = lib.Notifications[name]
		}
		return nil
	})
	return value, err
}

// searchColor gives each label a stable palette color.
func searchColor(label string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(label)))
	return model.FolderColors[h.Sum32()%uint32(len(model.FolderColors))]
}
