package library

import (
	"context"
	"errors"
	"strings"

	"github.com/nikbrunner/paperstack/internal/model"
)

// AddPaperParams describes a paper added by the user.
type AddPaperParams struct {
	Title      string
	Authors    string
	Source     string
	Year       string
	Pages      string
	DOI        string
	PDFURL     string
	LocalURI   string // path of an already copied upload
	Collection string
	Provenance model.Provenance
}

// AddPaper validates params and prepends a new paper to the library.
func (s *Store) AddPaper(ctx context.Context, params AddPaperParams) (model.Paper, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return model.Paper{}, invalid("title", "required")
	}

	p := model.NewPaper(model.NewPaperParams{
		Title:      title,
		Authors:    strings.TrimSpace(params.Authors),
		Source:     strings.TrimSpace(params.Source),
		Year:       strings.TrimSpace(params.Year),
		Pages:      strings.TrimSpace(params.Pages),
		DOI:        strings.TrimSpace(params.DOI),
		PDFURL:     optional(params.PDFURL),
		LocalURI:   optional(params.LocalURI),
		Collection: params.Collection,
		Provenance: params.Provenance,
	})

	err := s.mutate(ctx, "add paper", []string{model.KeyPapers}, func(lib *model.Library) error {
		if lib.HasDOI(p.DOI) {
			return invalid("doi", p.DOI+" is already in the library")
		}
		if p.PDFURL != nil && p.LocalURI == nil && lib.HasPaperURL(*p.PDFURL) {
			return invalid("pdfUrl", *p.PDFURL+" is already in the library")
		}
		lib.Papers = model.AddPaper(lib.Papers, p)
		return nil
	})
	if err != nil && !isQueued(err) {
		return model.Paper{}, err
	}
	return p, err
}

// Paper returns a copy of the paper with id.
func (s *Store) Paper(id string) (model.Paper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.lib.GetPaperByID(id)
	if p == nil {
		return model.Paper{}, invalid("paper", "no paper with id "+id)
	}
	return p.Clone(), nil
}

// Papers returns every paper, newest first.
func (s *Store) Papers() []model.Paper {
	return s.Snapshot().Papers
}

// ToggleStar flips the starred flag and returns the updated paper.
func (s *Store) ToggleStar(ctx context.Context, id string) (model.Paper, error) {
	return s.updatePaper(ctx, "toggle star", id, func(papers []model.Paper) []model.Paper {
		return model.ToggleStar(papers, id)
	})
}

// SetStarred sets the starred flag explicitly.
func (s *Store) SetStarred(ctx context.Context, id string, starred bool) (model.Paper, error) {
	return s.updatePaper(ctx, "set starred", id, func(papers []model.Paper) []model.Paper {
		return model.SetStarred(papers, id, starred)
	})
}

// Favorites returns the starred papers.
func (s *Store) Favorites() []model.Paper {
	return s.Snapshot().StarredPapers()
}

// OpenPaper returns the URI to open, preferring the local copy, and marks
// the paper read. A paper with neither a PDF URL nor a local copy is
// rejected.
func (s *Store) OpenPaper(ctx context.Context, id string) (string, error) {
	p, err := s.Paper(id)
	if err != nil {
		return "", err
	}
	if !p.CanOpen() {
		return "", invalid("pdfUrl", "paper has no PDF")
	}

	updated, err := s.SetReadStatus(ctx, id, model.Read)
	if err != nil && !isQueued(err) {
		return "", err
	}
	return updated.OpenURI(), err
}

// SetReadStatus marks a paper read or unread.
func (s *Store) SetReadStatus(ctx context.Context, id string, status model.ReadStatus) (model.Paper, error) {
	if status != model.Read && status != model.Unread {
		return model.Paper{}, invalid("readStatus", string(status))
	}
	return s.updatePaper(ctx, "set read status", id, func(papers []model.Paper) []model.Paper {
		return model.SetReadStatus(papers, id, status)
	})
}

// MoveToCollection files a paper under a named collection.
func (s *Store) MoveToCollection(ctx context.Context, id, collection string) (model.Paper, error) {
	return s.updatePaper(ctx, "move to collection", id, func(papers []model.Paper) []model.Paper {
		return model.MoveToCollection(papers, id, collection)
	})
}

// RecordDownload links a materialized file to its paper.
func (s *Store) RecordDownload(ctx context.Context, id, localURI string) (model.Paper, error) {
	if localURI == "" {
		return model.Paper{}, invalid("localUri", "required")
	}
	return s.updatePaper(ctx, "record download", id, func(papers []model.Paper) []model.Paper {
		return model.RecordDownload(papers, id, localURI)
	})
}

// SetPages records the page count of a paper.
func (s *Store) SetPages(ctx context.Context, id, pages string) (model.Paper, error) {
	return s.updatePaper(ctx, "set pages", id, func(papers []model.Paper) []model.Paper {
		return model.SetPages(papers, id, pages)
	})
}

// DeletePaper removes a paper and decrements the counts of its folders.
func (s *Store) DeletePaper(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete paper", []string{model.KeyPapers, model.KeyFolders}, func(lib *model.Library) error {
		if lib.GetPaperByID(id) == nil {
			return invalid("paper", "no paper with id "+id)
		}
		lib.Papers, lib.Folders = model.DeletePaper(lib.Papers, lib.Folders, id)
		return nil
	})
}

// updatePaper runs a single-paper mutator and returns the paper afterwards.
func (s *Store) updatePaper(ctx context.Context, name, id string, change func([]model.Paper) []model.Paper) (model.Paper, error) {
	err := s.mutate(ctx, name, []string{model.KeyPapers}, func(lib *model.Library) error {
		if lib.GetPaperByID(id) == nil {
			return invalid("paper", "no paper with id "+id)
		}
		lib.Papers = change(lib.Papers)
		return nil
	})
	if err != nil && !isQueued(err) {
		return model.Paper{}, err
	}
	p, perr := s.Paper(id)
	if perr != nil {
		return model.Paper{}, perr
	}
	return p, err
}

// isQueued reports whether err left the change applied locally.
func isQueued(err error) bool {
	var serr *StorageError
	return errors.As(err, &serr) && serr.Pending != ""
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
