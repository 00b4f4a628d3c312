// Package metadata looks up bibliographic records on CrossRef and arXiv and
// normalizes them into Results.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNetwork     = errors.New("network request failed")
	ErrTimeout     = errors.New("request timed out")
	ErrDOINotFound = errors.New("DOI not found")
)

// Source names a metadata provider.
type Source string

const (
	SourceCrossref Source = "crossref"
	SourceArxiv    Source = "arxiv"
)

// Mode selects which field a query matches.
type Mode string

const (
	ModeTitle   Mode = "title"
	ModeAuthor  Mode = "author"
	ModeKeyword Mode = "keyword"
)

// ParseMode accepts a mode name, defaulting to keyword.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeTitle:
		return ModeTitle, nil
	case ModeAuthor:
		return ModeAuthor, nil
	case ModeKeyword, "":
		return ModeKeyword, nil
	}
	return "", fmt.Errorf("unknown search mode %q (want title, author or keyword)", s)
}

// DefaultLimit is the number of results requested per source.
const DefaultLimit = 10

// Query is one search request.
type Query struct {
	Text  string
	Mode  Mode
	Limit int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

// Result is a normalized search hit.
type Result struct {
	Source    Source
	DOI       string
	ArxivID   string
	Title     string
	Authors   string
	Journal   string
	Year      string
	URL       string
	PDFURL    string
	Published time.Time
	Starred   bool
}

// Key identifies a result across sources: the DOI when present, otherwise
// the arXiv id.
func (r Result) Key() string {
	if r.DOI != "" {
		return "doi:" + strings.ToLower(r.DOI)
	}
	if r.ArxivID != "" {
		return "arxiv:" + r.ArxivID
	}
	return "title:" + strings.ToLower(r.Title)
}

// Searcher is implemented by every source.
type Searcher interface {
	Source() Source
	Search(ctx context.Context, q Query) ([]Result, error)
}

// Annotate sets Starred on every result from the local favorites, matched
// by DOI or PDF URL. The local state always wins over whatever the result
// carried.
func Annotate(results []Result, starred map[string]bool) []Result {
	out := make([]Result, len(results))
	for i, r := range results {
		r.Starred = (r.DOI != "" && starred[strings.ToLower(r.DOI)]) ||
			(r.PDFURL != "" && starred[r.PDFURL])
		out[i] = r
	}
	return out
}

// dedupe keeps the first result for each Key.
func dedupe(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		k := r.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
