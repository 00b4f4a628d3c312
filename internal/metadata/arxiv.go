package metadata

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultArxivURL is the public arXiv query API.
const DefaultArxivURL = "http://export.arxiv.org/api/query"

var (
	versionSuffix = regexp.MustCompile(`v[0-9]+$`)
	queryTerms    = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

type arxivEntry struct {
	ID        string    `xml:"id"`
	Title     string    `xml:"title"`
	Summary   string    `xml:"summary"`
	Published time.Time `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		HRef  string `xml:"href,attr"`
		Type  string `xml:"type,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
	DOI        string `xml:"http://arxiv.org/schemas/atom doi"`
	JournalRef string `xml:"http://arxiv.org/schemas/atom journal_ref"`
}

type arxivFeed struct {
	Total struct {
		Value uint64 `xml:",chardata"`
	} `xml:"totalResults"`
	Entries []arxivEntry `xml:"entry"`
}

// ArxivClient queries the arXiv Atom API.
type ArxivClient struct {
	baseURL string
	fetch   fetcher
}

// NewArxivClient creates an arXiv client.
func NewArxivClient(opts ClientOptions) *ArxivClient {
	base := opts.BaseURL
	if base == "" {
		base = DefaultArxivURL
	}
	return &ArxivClient{baseURL: base, fetch: newFetcher(opts)}
}

func (c *ArxivClient) Source() Source { return SourceArxiv }

// Search queries arXiv by title (ti:), author (au:) or any field (all:),
// ordered by relevance.
func (c *ArxivClient) Search(ctx context.Context, q Query) ([]Result, error) {
	prefix := "all"
	switch q.Mode {
	case ModeTitle:
		prefix = "ti"
	case ModeAuthor:
		prefix = "au"
	}
	query := searchQuery(prefix, q.Text)
	if query == "" {
		return nil, nil
	}
	return c.query(ctx, c.craftURL(query, q.limit(), "relevance"))
}

// AuthorPapers returns the author's most recent submissions.
func (c *ArxivClient) AuthorPapers(ctx context.Context, name string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	query := searchQuery("au", name)
	if query == "" {
		return nil, nil
	}
	return c.query(ctx, c.craftURL(query, limit, "submittedDate"))
}

func (c *ArxivClient) query(ctx context.Context, u string) ([]Result, error) {
	body, err := c.fetch.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode arxiv feed: %w", err)
	}

	results := make([]Result, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if strings.Contains(entry.ID, "/api/errors") {
			return nil, fmt.Errorf("%w: arxiv rejected query: %s", ErrNetwork, collapseSpace(entry.Summary))
		}
		r, ok := entry.result()
		if !ok {
			c.fetch.log.WithFields(logrus.Fields{"source": SourceArxiv, "id": entry.ID}).Debug("skipping incomplete entry")
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// craftURL builds the query URL, newest first when sorting by date.
func (c *ArxivClient) craftURL(searchQuery string, limit int, sortBy string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		u = &url.URL{Path: c.baseURL}
	}
	query := u.Query()
	query.Set("search_query", searchQuery)
	query.Set("start", "0")
	query.Set("max_results", strconv.Itoa(limit))
	query.Set("sortBy", sortBy)
	query.Set("sortOrder", "descending")
	u.RawQuery = query.Encode()
	return u.String()
}

// searchQuery joins the words of text with AND under one field prefix.
func searchQuery(prefix, text string) string {
	words := queryTerms.FindAllString(text, -1)
	if len(words) == 0 {
		return ""
	}
	terms := make([]string, len(words))
	for i, w := range words {
		terms[i] = prefix + ":" + w
	}
	return strings.Join(terms, " AND ")
}

// result normalizes an entry. Entries without an id or title are dropped.
func (e arxivEntry) result() (Result, bool) {
	id := ArxivID(e.ID)
	title := collapseSpace(e.Title)
	if id == "" || title == "" {
		return Result{}, false
	}

	names := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if n := collapseSpace(a.Name); n != "" {
			names = append(names, n)
		}
	}

	r := Result{
		Source:    SourceArxiv,
		ArxivID:   id,
		DOI:       strings.TrimSpace(e.DOI),
		Title:     title,
		Authors:   strings.Join(names, ", "),
		Journal:   "arXiv",
		URL:       "https://arxiv.org/abs/" + id,
		PDFURL:    ArxivPDFURL(id),
		Published: e.Published,
	}
	if ref := collapseSpace(e.JournalRef); ref != "" {
		r.Journal = ref
	}
	if !e.Published.IsZero() {
		r.Year = strconv.Itoa(e.Published.Year())
	}
	return r, true
}

// ArxivID extracts the versionless identifier from an abstract URL such as
// http://arxiv.org/abs/2101.00001v2.
func ArxivID(raw string) string {
	raw = strings.TrimSpace(raw)
	i := strings.Index(raw, "/abs/")
	if i < 0 {
		return ""
	}
	return versionSuffix.ReplaceAllString(raw[i+len("/abs/"):], "")
}

// ArxivPDFURL derives the PDF location of an arXiv paper.
func ArxivPDFURL(id string) string {
	return "https://arxiv.org/pdf/" + id + ".pdf"
}
