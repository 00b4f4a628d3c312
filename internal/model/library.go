package model

import "strings"

// Collection keys under which the library is persisted.
const (
	KeyPapers           = "papers"
	KeyFolders          = "my_folders"
	KeyFavoriteAuthors  = "favorite_authors"
	KeyFavoriteJournals = "favorite_journals"
	KeyRecentSearches   = "recent_searches"
	KeyPrivacy          = "privacySettings"
	KeyNotifications    = "notificationSettings"
)

// AllKeys lists every collection key in load order.
var AllKeys = []string{
	KeyPapers,
	KeyFolders,
	KeyFavoriteAuthors,
	KeyFavoriteJournals,
	KeyRecentSearches,
	KeyPrivacy,
	KeyNotifications,
}

// Known collection names offered when filing a paper.
var Collections = []string{"All Papers", "Favorites", "Recent Reads", "Work", "Research"}

// Library holds every persisted collection.
type Library struct {
	Papers           []Paper           `json:"papers"`
	Folders          []Folder          `json:"my_folders"`
	FavoriteAuthors  []FavoriteAuthor  `json:"favorite_authors"`
	FavoriteJournals []FavoriteJournal `json:"favorite_journals"`
	RecentSearches   []RecentSearch    `json:"recent_searches"`
	Privacy          Settings          `json:"privacySettings"`
	Notifications    Settings          `json:"notificationSettings"`
}

// NewLibrary creates an empty Library with initialized collections.
func NewLibrary() *Library {
	return &Library{
		Papers:           []Paper{},
		Folders:          []Folder{},
		FavoriteAuthors:  []FavoriteAuthor{},
		FavoriteJournals: []FavoriteJournal{},
		RecentSearches:   []RecentSearch{},
		Privacy:          DefaultPrivacySettings(),
		Notifications:    DefaultNotificationSettings(),
	}
}

// Clone returns a deep copy of the library.
func (l *Library) Clone() *Library {
	c := &Library{
		Papers:           make([]Paper, len(l.Papers)),
		Folders:          append([]Folder{}, l.Folders...),
		FavoriteAuthors:  append([]FavoriteAuthor{}, l.FavoriteAuthors...),
		FavoriteJournals: append([]FavoriteJournal{}, l.FavoriteJournals...),
		RecentSearches:   append([]RecentSearch{}, l.RecentSearches...),
		Privacy:          Settings{}.Merge(l.Privacy),
		Notifications:    Settings{}.Merge(l.Notifications),
	}
	for i, p := range l.Papers {
		c.Papers[i] = p.Clone()
	}
	return c
}

// GetPaperByID finds a paper by ID, returns nil if not found.
func (l *Library) GetPaperByID(id string) *Paper {
	for i := range l.Papers {
		if l.Papers[i].ID == id {
			return &l.Papers[i]
		}
	}
	return nil
}

// GetFolderByID finds a folder by ID, returns nil if not found.
func (l *Library) GetFolderByID(id string) *Folder {
	for i := range l.Folders {
		if l.Folders[i].ID == id {
			return &l.Folders[i]
		}
	}
	return nil
}

// GetFolderByName finds a folder by exact name, returns nil if not found.
func (l *Library) GetFolderByName(name string) *Folder {
	for i := range l.Folders {
		if l.Folders[i].Name == name {
			return &l.Folders[i]
		}
	}
	return nil
}

// PapersInFolder returns the papers whose membership set contains folderID.
func (l *Library) PapersInFolder(folderID string) []Paper {
	var result []Paper
	for _, p := range l.Papers {
		if p.InFolder(folderID) {
			result = append(result, p)
		}
	}
	return result
}

// PapersInCollection returns the papers filed under the named collection.
func (l *Library) PapersInCollection(name string) []Paper {
	var result []Paper
	for _, p := range l.Papers {
		if p.Collection == name {
			result = append(result, p)
		}
	}
	return result
}

// StarredPapers returns the favorites list.
func (l *Library) StarredPapers() []Paper {
	var result []Paper
	for _, p := range l.Papers {
		if p.Starred {
			result = append(result, p)
		}
	}
	return result
}

// HasPaperURL checks if a paper with the given PDF URL already exists.
func (l *Library) HasPaperURL(url string) bool {
	for _, p := range l.Papers {
		if deref(p.PDFURL) == url {
			return true
		}
	}
	return false
}

// HasDOI checks if a paper with the given DOI already exists.
func (l *Library) HasDOI(doi string) bool {
	if doi == "" {
		return false
	}
	for _, p := range l.Papers {
		if p.DOI == doi {
			return true
		}
	}
	return false
}

// IsFavoriteAuthor reports whether the author is in favorite_authors.
func (l *Library) IsFavoriteAuthor(id string) bool {
	for _, a := range l.FavoriteAuthors {
		if a.ID == id {
			return true
		}
	}
	return false
}

// IsFavoriteJournal reports whether the journal is in favorite_journals.
func (l *Library) IsFavoriteJournal(id string) bool {
	for _, j := range l.FavoriteJournals {
		if j.ID == id {
			return true
		}
	}
	return false
}

// StarredKeys returns the IDs, DOIs and PDF URLs of every starred paper,
// used to annotate remote results with the local favorite state.
func (l *Library) StarredKeys() map[string]bool {
	keys := make(map[string]bool)
	for _, p := range l.Papers {
		if !p.Starred {
			continue
		}
		keys[p.ID] = true
		if p.DOI != "" {
			keys[strings.ToLower(p.DOI)] = true
		}
		if url := deref(p.PDFURL); url != "" {
			keys[url] = true
		}
	}
	return keys
}

// FolderCountMismatches returns, per folder ID, the actual membership count
// where it disagrees with the cached Count.
func (l *Library) FolderCountMismatches() map[string]int {
	actual := make(map[string]int, len(l.Folders))
	for _, p := range l.Papers {
		for _, id := range p.Folders {
			actual[id]++
		}
	}
	bad := make(map[string]int)
	for _, f := range l.Folders {
		if f.Count != actual[f.ID] {
			bad[f.ID] = actual[f.ID]
		}
	}
	return bad
}
