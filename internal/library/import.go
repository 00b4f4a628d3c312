package library

import (
	"context"
	"strings"
	"time"

	"github.com/nikbrunner/paperstack/internal/model"
)

// ImportedPaper is a paper link read from an external file.
type ImportedPaper struct {
	Title     string
	URL       string
	Authors   string
	Source    string
	Year      string
	DOI       string
	Folders   []string // folder names
	AddedDate time.Time
}

// ImportSummary reports what ImportPapers did.
type ImportSummary struct {
	Added          int
	Skipped        int
	FoldersCreated int
}

// ImportPapers adds linked papers tagged Remote. Folders are matched by
// name and created when missing; papers whose URL is already in the
// library are skipped.
func (s *Store) ImportPapers(ctx context.Context, entries []ImportedPaper) (ImportSummary, error) {
	var sum ImportSummary
	err := s.mutate(ctx, "import papers", membershipKeys, func(lib *model.Library) error {
		sum = ImportSummary{}

		// a link listed under several folders is one paper in all of them
		imported := make(map[string]string)
		for _, e := range entries {
			url := strings.TrimSpace(e.URL)
			if id, ok := imported[url]; ok {
				addToFolders(lib, &sum, id, e.Folders)
				continue
			}
			if url == "" || lib.HasPaperURL(url) || lib.HasDOI(e.DOI) {
				sum.Skipped++
				continue
			}

			title := strings.TrimSpace(e.Title)
			if title == "" {
				title = url
			}
			p := model.NewPaper(model.NewPaperParams{
				Title:      title,
				Authors:    strings.TrimSpace(e.Authors),
				Source:     strings.TrimSpace(e.Source),
				Year:       strings.TrimSpace(e.Year),
				DOI:        strings.TrimSpace(e.DOI),
				PDFURL:     &url,
				Provenance: model.ProvenanceRemote,
			})
			if !e.AddedDate.IsZero() {
				p.AddedDate = e.AddedDate
			}
			lib.Papers = model.AddPaper(lib.Papers, p)
			imported[url] = p.ID
			addToFolders(lib, &sum, p.ID, e.Folders)
			sum.Added++
		}
		return nil
	})
	if err != nil && !isQueued(err) {
		return ImportSummary{}, err
	}
	return sum, err
}

func addToFolders(lib *model.Library, sum *ImportSummary, paperID string, names []string) {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		f := lib.GetFolderByName(name)
		if f == nil {
			lib.Folders = model.AddFolder(lib.Folders, model.NewFolder(model.NewFolderParams{
				Name:  name,
				Color: model.FolderColors[len(lib.Folders)%len(model.FolderColors)],
			}))
			sum.FoldersCreated++
			f = lib.GetFolderByName(name)
		}
		lib.Papers, lib.Folders, _ = model.AddPaperToFolder(lib.Papers, lib.Folders, paperID, f.ID)
	}
}
