package library_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/nikbrunner/paperstack/internal/library"
	"github.com/nikbrunner/paperstack/internal/model"
)

func TestRecentSearches_CapAndDedup(t *testing.T) {
	ctx := context.Background()
	s, b := newStore(t)

	for i := 1; i <= 6; i++ {
		assert.NilError(t, s.PushRecentSearch(ctx, fmt.Sprintf("query %d", i)))
	}
	labels := func(list []model.RecentSearch) []string {
		out := make([]string, len(list))
		for i, r := range list {
			out[i] = r.Label
		}
		return out
	}
	assert.DeepEqual(t, labels(s.RecentSearches()),
		[]string{"query 6", "query 5", "query 4", "query 3", "query 2"})

	assert.NilError(t, s.PushRecentSearch(ctx, "query 4"))
	assert.DeepEqual(t, labels(s.RecentSearches()),
		[]string{"query 4", "query 6", "query 5", "query 3", "query 2"})

	assert.DeepEqual(t, labels(openStore(t, b).RecentSearches()),
		[]string{"query 4", "query 6", "query 5", "query 3", "query 2"})

	assert.NilError(t, s.PushRecentSearch(ctx, "  "))
	assert.Equal(t, len(s.RecentSearches()), 5)
}

func TestFavoriteAuthorsAndJournals(t *testing.T) {
	ctx := context.Background()
	s, b := newStore(t)

	author := model.FavoriteAuthor{ID: "hinton", Name: "Geoffrey Hinton", Affiliation: "University of Toronto"}
	on, err := s.ToggleFavoriteAuthor(ctx, author)
	assert.NilError(t, err)
	assert.Equal(t, on, true)
	assert.DeepEqual(t, openStore(t, b).FavoriteAuthors(), []model.FavoriteAuthor{author})

	on, err = s.ToggleFavoriteAuthor(ctx, author)
	assert.NilError(t, err)
	assert.Equal(t, on, false)
	assert.Equal(t, len(openStore(t, b).FavoriteAuthors()), 0)

	journal := model.FavoriteJournal{ID: "nature", Name: "Nature", Impact: "49.9"}
	on, err = s.ToggleFavoriteJournal(ctx, journal)
	assert.NilError(t, err)
	assert.Equal(t, on, true)
	assert.Equal(t, s.FavoriteJournals()[0].Name, "Nature")

	_, err = s.ToggleFavoriteAuthor(ctx, model.FavoriteAuthor{Name: "No ID"})
	assert.Assert(t, errors.Is(err, library.ErrValidation))
}

func TestToggleSetting(t *testing.T) {
	ctx := context.Background()
	s, b := newStore(t)

	on, err := s.ToggleSetting(ctx, model.KeyNotifications, model.NotifyReminders)
	assert.NilError(t, err)
	assert.Equal(t, on, true)

	stored, err := openStore(t, b).Settings(model.KeyNotifications)
	assert.NilError(t, err)
	assert.Equal(t, stored[model.NotifyReminders], true)
	assert.Equal(t, stored[model.NotifyNewPapers], true)

	_, err = s.ToggleSetting(ctx, model.KeyNotifications, "telepathy")
	assert.Assert(t, errors.Is(err, library.ErrValidation))
	_, err = s.ToggleSetting(ctx, "colors", model.NotifyReminders)
	assert.Assert(t, errors.Is(err, library.ErrValidation))
}

func TestExportAndDeleteAll(t *testing.T) {
	ctx := context.Background()
	s, b := newStore(t)

	_, err := s.AddPaper(ctx, library.AddPaperParams{Title: "Exported"})
	assert.NilError(t, err)

	exp, err := s.ExportData(ctx)
	assert.NilError(t, err)
	assert.Equal(t, exp.AppVersion, library.AppVersion)
	assert.Assert(t, strings.Contains(string(exp.Data[model.KeyPapers]), `"title":"Exported"`))
	assert.Assert(t, strings.Contains(string(exp.Data[model.KeyFolders]), `"Project Z"`))

	assert.NilError(t, s.DeleteAll(ctx))
	keys, err := b.Keys(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(keys), 0)
	assert.Equal(t, len(s.Papers()), 0)

	assert.NilError(t, s.Load(ctx))
	assert.Equal(t, len(s.Folders()), 2, "defaults are seeded again")
}

func TestExportFileName(t *testing.T) {
	name := library.ExportFileName(time.UnixMilli(1712345678901))
	assert.Assert(t, strings.HasPrefix(name, "paperstack"))
	assert.Assert(t, strings.HasSuffix(name, "1712345678901.json"))
}
