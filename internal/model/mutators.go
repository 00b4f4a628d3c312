package model

import (
	"strings"
	"time"
)

// Mutators take a collection and return a new one with a single change
// applied. The input is never modified, so a caller can keep the previous
// value around until the new one has been persisted.

func clonePapers(papers []Paper) []Paper {
	out := make([]Paper, len(papers))
	for i, p := range papers {
		out[i] = p.Clone()
	}
	return out
}

func indexOfPaper(papers []Paper, id string) int {
	for i := range papers {
		if papers[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfFolder(folders []Folder, id string) int {
	for i := range folders {
		if folders[i].ID == id {
			return i
		}
	}
	return -1
}

// AddPaper puts a new paper at the front of the list.
func AddPaper(papers []Paper, p Paper) []Paper {
	out := make([]Paper, 0, len(papers)+1)
	out = append(out, p.Clone())
	return append(out, clonePapers(papers)...)
}

// ToggleStar flips Starred on the matching paper. Unknown IDs are a no-op.
func ToggleStar(papers []Paper, id string) []Paper {
	out := clonePapers(papers)
	if i := indexOfPaper(out, id); i >= 0 {
		out[i].Starred = !out[i].Starred
	}
	return out
}

// SetStarred sets Starred on the matching paper to an explicit value.
func SetStarred(papers []Paper, id string, starred bool) []Paper {
	out := clonePapers(papers)
	if i := indexOfPaper(out, id); i >= 0 {
		out[i].Starred = starred
	}
	return out
}

// SetReadStatus marks the matching paper read or unread.
func SetReadStatus(papers []Paper, id string, status ReadStatus) []Paper {
	out := clonePapers(papers)
	if i := indexOfPaper(out, id); i >= 0 {
		out[i].ReadStatus = status
	}
	return out
}

// MoveToCollection overwrites the collection of the matching paper. The name
// is not validated.
func MoveToCollection(papers []Paper, id, collection string) []Paper {
	out := clonePapers(papers)
	if i := indexOfPaper(out, id); i >= 0 {
		out[i].Collection = collection
	}
	return out
}

// RecordDownload links a materialized local copy. PDFURL is left as is.
func RecordDownload(papers []Paper, id, localURI string) []Paper {
	out := clonePapers(papers)
	if i := indexOfPaper(out, id); i >= 0 {
		uri := localURI
		out[i].LocalURI = &uri
	}
	return out
}

// SetPages fills in the page count of the matching paper.
func SetPages(papers []Paper, id, pages string) []Paper {
	out := clonePapers(papers)
	if i := indexOfPaper(out, id); i >= 0 {
		out[i].Pages = pages
	}
	return out
}

// AddPaperToFolder appends folderID to the paper's membership set and bumps
// the folder's Count by one. Both collections change together or not at
// all: the call is a no-op when either side is missing or the paper is
// already a member. The bool result reports whether anything changed.
func AddPaperToFolder(papers []Paper, folders []Folder, paperID, folderID string) ([]Paper, []Folder, bool) {
	pi := indexOfPaper(papers, paperID)
	fi := indexOfFolder(folders, folderID)
	if pi < 0 || fi < 0 || papers[pi].InFolder(folderID) {
		return papers, folders, false
	}

	outPapers := clonePapers(papers)
	outFolders := append([]Folder{}, folders...)

	outPapers[pi].Folders = append(outPapers[pi].Folders, folderID)
	outFolders[fi].Count++
	outFolders[fi].Updated = time.Now()
	return outPapers, outFolders, true
}

// RemovePaperFromFolder is the inverse of AddPaperToFolder. Count never
// drops below zero.
func RemovePaperFromFolder(papers []Paper, folders []Folder, paperID, folderID string) ([]Paper, []Folder, bool) {
	pi := indexOfPaper(papers, paperID)
	if pi < 0 || !papers[pi].InFolder(folderID) {
		return papers, folders, false
	}

	outPapers := clonePapers(papers)
	outFolders := append([]Folder{}, folders...)

	outPapers[pi].Folders = removeString(outPapers[pi].Folders, folderID)
	if fi := indexOfFolder(outFolders, folderID); fi >= 0 {
		outFolders[fi].Count = max(outFolders[fi].Count-1, 0)
		outFolders[fi].Updated = time.Now()
	}
	return outPapers, outFolders, true
}

// DeletePaper removes the paper and decrements the count of every folder it
// belonged to, so folder counts stay exact.
func DeletePaper(papers []Paper, folders []Folder, id string) ([]Paper, []Folder) {
	pi := indexOfPaper(papers, id)
	if pi < 0 {
		return papers, folders
	}

	outFolders := append([]Folder{}, folders...)
	for _, folderID := range papers[pi].Folders {
		if fi := indexOfFolder(outFolders, folderID); fi >= 0 {
			outFolders[fi].Count = max(outFolders[fi].Count-1, 0)
			outFolders[fi].Updated = time.Now()
		}
	}

	outPapers := make([]Paper, 0, len(papers)-1)
	for i, p := range papers {
		if i != pi {
			outPapers = append(outPapers, p.Clone())
		}
	}
	return outPapers, outFolders
}

// AddFolder appends a folder to the list.
func AddFolder(folders []Folder, f Folder) []Folder {
	out := append([]Folder{}, folders...)
	return append(out, f)
}

// RenameFolder changes the display name of a folder.
func RenameFolder(folders []Folder, id, name string) []Folder {
	out := append([]Folder{}, folders...)
	if i := indexOfFolder(out, id); i >= 0 {
		out[i].Name = name
		out[i].Updated = time.Now()
	}
	return out
}

// DeleteFolder removes a folder and strips its ID from every paper.
func DeleteFolder(folders []Folder, papers []Paper, id string) ([]Folder, []Paper) {
	outFolders := make([]Folder, 0, len(folders))
	for _, f := range folders {
		if f.ID != id {
			outFolders = append(outFolders, f)
		}
	}
	outPapers := clonePapers(papers)
	for i := range outPapers {
		outPapers[i].Folders = removeString(outPapers[i].Folders, id)
	}
	return outFolders, outPapers
}

// RecountFolders recomputes every folder Count from paper membership and
// drops memberships that point at folders which no longer exist.
func RecountFolders(papers []Paper, folders []Folder) ([]Paper, []Folder) {
	known := make(map[string]bool, len(folders))
	for _, f := range folders {
		known[f.ID] = true
	}

	outPapers := clonePapers(papers)
	counts := make(map[string]int, len(folders))
	for i := range outPapers {
		var kept []string
		seen := make(map[string]bool)
		for _, id := range outPapers[i].Folders {
			if !known[id] || seen[id] {
				continue
			}
			seen[id] = true
			kept = append(kept, id)
			counts[id]++
		}
		if kept == nil {
			kept = []string{}
		}
		outPapers[i].Folders = kept
	}

	outFolders := append([]Folder{}, folders...)
	for i := range outFolders {
		outFolders[i].Count = counts[outFolders[i].ID]
	}
	return outPapers, outFolders
}

// ToggleFavoriteAuthor adds the author, or removes it when already present.
func ToggleFavoriteAuthor(authors []FavoriteAuthor, a FavoriteAuthor) []FavoriteAuthor {
	out := make([]FavoriteAuthor, 0, len(authors)+1)
	removed := false
	for _, existing := range authors {
		if existing.ID == a.ID {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	if !removed {
		out = append(out, a)
	}
	return out
}

// ToggleFavoriteJournal adds the journal, or removes it when already present.
func ToggleFavoriteJournal(journals []FavoriteJournal, j FavoriteJournal) []FavoriteJournal {
	out := make([]FavoriteJournal, 0, len(journals)+1)
	removed := false
	for _, existing := range journals {
		if existing.ID == j.ID {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	if !removed {
		out = append(out, j)
	}
	return out
}

// PushRecentSearch puts s at the front, dropping any earlier entry with the
// same label (case-insensitive) and capping the list at MaxRecentSearches.
func PushRecentSearch(list []RecentSearch, s RecentSearch) []RecentSearch {
	s.Label = strings.TrimSpace(s.Label)
	if s.Label == "" {
		return append([]RecentSearch{}, list...)
	}
	out := make([]RecentSearch, 0, MaxRecentSearches)
	out = append(out, s)
	for _, existing := range list {
		if len(out) == MaxRecentSearches {
			break
		}
		if strings.EqualFold(existing.Label, s.Label) {
			continue
		}
		out = append(out, existing)
	}
	return out
}

// ToggleSetting flips one switch.
func ToggleSetting(s Settings, key string) Settings {
	out := Settings{}.Merge(s)
	out[key] = !out[key]
	return out
}

func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
