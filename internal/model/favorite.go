package model

// FavoriteAuthor is a followed author. Membership in the favorite_authors
// collection is the favorite flag.
type FavoriteAuthor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	Papers      int    `json:"papers,omitempty"`
	Citations   string `json:"citations,omitempty"`
}

// FavoriteJournal is a followed journal.
type FavoriteJournal struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Impact string `json:"impact,omitempty"`
	Papers int    `json:"papers,omitempty"`
}

// MaxRecentSearches caps the recent search list.
const MaxRecentSearches = 5

// RecentSearch is one entry of the recent search list.
type RecentSearch struct {
	Label string `json:"label"`
	Color string `json:"color"`
}
