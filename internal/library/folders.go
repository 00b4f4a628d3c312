package library

import (
	"context"
	"strings"

	"github.com/nikbrunner/paperstack/internal/model"
)

var membershipKeys = []string{model.KeyPapers, model.KeyFolders}

// Folders returns every folder.
func (s *Store) Folders() []model.Folder {
	return s.Snapshot().Folders
}

// Folder returns a copy of the folder with id.
func (s *Store) Folder(id string) (model.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.lib.GetFolderByID(id)
	if f == nil {
		return model.Folder{}, invalid("folder", "no folder with id "+id)
	}
	return *f, nil
}

// FindFolder resolves a folder by id, then by exact name.
func (s *Store) FindFolder(ref string) (model.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.lib.GetFolderByID(ref); f != nil {
		return *f, nil
	}
	if f := s.lib.GetFolderByName(ref); f != nil {
		return *f, nil
	}
	return model.Folder{}, invalid("folder", "no folder "+ref)
}

// CreateFolder adds a folder. The color defaults to the next palette entry.
func (s *Store) CreateFolder(ctx context.Context, name, color string) (model.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Folder{}, invalid("name", "required")
	}

	f := model.NewFolder(model.NewFolderParams{Name: name, Color: color})
	err := s.mutate(ctx, "create folder", []string{model.KeyFolders}, func(lib *model.Library) error {
		if color == "" {
			f.Color = model.FolderColors[len(lib.Folders)%len(model.FolderColors)]
		}
		lib.Folders = model.AddFolder(lib.Folders, f)
		return nil
	})
	if err != nil && !isQueued(err) {
		return model.Folder{}, err
	}
	return f, err
}

// RenameFolder changes a folder's name.
func (s *Store) RenameFolder(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("name", "required")
	}
	return s.mutate(ctx, "rename folder", []string{model.KeyFolders}, func(lib *model.Library) error {
		if lib.GetFolderByID(id) == nil {
			return invalid("folder", "no folder with id "+id)
		}
		lib.Folders = model.RenameFolder(lib.Folders, id, name)
		return nil
	})
}

// DeleteFolder removes a folder and its id from every member paper.
func (s *Store) DeleteFolder(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete folder", membershipKeys, func(lib *model.Library) error {
		if lib.GetFolderByID(id) == nil {
			return invalid("folder", "no folder with id "+id)
		}
		lib.Folders, lib.Papers = model.DeleteFolder(lib.Folders, lib.Papers, id)
		return nil
	})
}

// AddToFolder adds a paper to a folder. The paper's membership and the
// folder's count are persisted together. Returns false if the paper was
// already a member.
func (s *Store) AddToFolder(ctx context.Context, paperID, folderID string) (bool, error) {
	var added bool
	err := s.mutate(ctx, "add to folder", membershipKeys, func(lib *model.Library) error {
		if err := checkMembershipRefs(lib, paperID, folderID); err != nil {
			return err
		}
		lib.Papers, lib.Folders, added = model.AddPaperToFolder(lib.Papers, lib.Folders, paperID, folderID)
		return nil
	})
	return added, err
}

// RemoveFromFolder is the inverse of AddToFolder.
func (s *Store) RemoveFromFolder(ctx context.Context, paperID, folderID string) (bool, error) {
	var removed bool
	err := s.mutate(ctx, "remove from folder", membershipKeys, func(lib *model.Library) error {
		if err := checkMembershipRefs(lib, paperID, folderID); err != nil {
			return err
		}
		lib.Papers, lib.Folders, removed = model.RemovePaperFromFolder(lib.Papers, lib.Folders, paperID, folderID)
		return nil
	})
	return removed, err
}

// AddManyToFolder adds several papers in one write, skipping members.
// Returns how many were added.
func (s *Store) AddManyToFolder(ctx context.Context, folderID string, paperIDs []string) (int, error) {
	var added int
	err := s.mutate(ctx, "add many to folder", membershipKeys, func(lib *model.Library) error {
		added = 0
		for _, id := range paperIDs {
			if err := checkMembershipRefs(lib, id, folderID); err != nil {
				return err
			}
		}
		for _, id := range paperIDs {
			var ok bool
			lib.Papers, lib.Folders, ok = model.AddPaperToFolder(lib.Papers, lib.Folders, id, folderID)
			if ok {
				added++
			}
		}
		return nil
	})
	return added, err
}

// FolderPapers lists a folder's papers whose title or authors contain
// filter, case-insensitively.
func (s *Store) FolderPapers(folderID, filter string) ([]model.Paper, error) {
	lib := s.Snapshot()
	if lib.GetFolderByID(folderID) == nil {
		return nil, invalid("folder", "no folder with id "+folderID)
	}

	filter = strings.ToLower(strings.TrimSpace(filter))
	var out []model.Paper
	for _, p := range lib.PapersInFolder(folderID) {
		if filter == "" ||
			strings.Contains(strings.ToLower(p.Title), filter) ||
			strings.Contains(strings.ToLower(p.Authors), filter) {
			out = append(out, p)
		}
	}
	return out, nil
}

// RecountFolders repairs folder counts and drops dangling memberships.
func (s *Store) RecountFolders(ctx context.Context) error {
	return s.mutate(ctx, "recount folders", membershipKeys, func(lib *model.Library) error {
		lib.Papers, lib.Folders = model.RecountFolders(lib.Papers, lib.Folders)
		return nil
	})
}

// ShareLink returns the public link of a folder.
func (s *Store) ShareLink(folderID string) (string, error) {
	if _, err := s.Folder(folderID); err != nil {
		return "", err
	}
	return s.share + folderID, nil
}

func checkMembershipRefs(lib *model.Library, paperID, folderID string) error {
	if lib.GetPaperByID(paperID) == nil {
		return invalid("paper", "no paper with id "+paperID)
	}
	if lib.GetFolderByID(folderID) == nil {
		return invalid("folder", "no folder with id "+folderID)
	}
	return nil
}
