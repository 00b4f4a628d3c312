package search

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/nikbrunner/paperstack/internal/model"
)

// Field selects which paper text a query is matched against.
type Field int

const (
	FieldTitle Field = iota
	FieldAuthor
	FieldJournal
	FieldAll // title, authors and journal
)

// ParseField maps the names used on the command line to a Field.
func ParseField(s string) (Field, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "title":
		return FieldTitle, true
	case "author", "authors":
		return FieldAuthor, true
	case "journal", "source":
		return FieldJournal, true
	case "all":
		return FieldAll, true
	}
	return FieldTitle, false
}

// SearchResult represents a fuzzy search match.
type SearchResult struct {
	Paper          *model.Paper
	MatchedIndexes []int // byte offsets into the matched text
	Score          int
}

// paperTexts implements fuzzy.Source over one field of the papers.
type paperTexts struct {
	papers []*model.Paper
	field  Field
}

func (pt paperTexts) String(i int) string {
	return text(pt.papers[i], pt.field)
}

func (pt paperTexts) Len() int {
	return len(pt.papers)
}

func text(p *model.Paper, field Field) string {
	switch field {
	case FieldAuthor:
		return p.Authors
	case FieldJournal:
		return p.Source
	case FieldAll:
		return p.Title + " " + p.Authors + " " + p.Source
	}
	return p.Title
}

// FuzzySearchPapers searches the papers using fuzzy matching on field.
// Returns results sorted by match score (best first).
func FuzzySearchPapers(papers []model.Paper, query string, field Field) []SearchResult {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	src := paperTexts{papers: make([]*model.Paper, len(papers)), field: field}
	for i := range papers {
		src.papers[i] = &papers[i]
	}

	matches := fuzzy.FindFrom(query, src)

	results := make([]SearchResult, len(matches))
	for i, m := range matches {
		results[i] = SearchResult{
			Paper:          src.papers[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	return results
}
