package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultCrossrefURL is the public CrossRef REST API.
const DefaultCrossrefURL = "https://api.crossref.org"

var crossrefFields = []string{"DOI", "title", "author", "published-print", "published", "container-title", "URL", "link"}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

type crossrefDate struct {
	DateParts [][]int `json:"date-parts"`
}

func (d *crossrefDate) year() string {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return ""
	}
	return strconv.Itoa(d.DateParts[0][0])
}

type crossrefWork struct {
	DOI            string           `json:"DOI"`
	Title          []string         `json:"title"`
	Author         []crossrefAuthor `json:"author"`
	ContainerTitle []string         `json:"container-title"`
	Published      *crossrefDate    `json:"published"`
	PublishedPrint *crossrefDate    `json:"published-print"`
	URL            string           `json:"URL"`
	Link           []struct {
		URL         string `json:"URL"`
		ContentType string `json:"content-type"`
	} `json:"link"`
}

type crossrefWorkResponse struct {
	Status  string       `json:"status"`
	Message crossrefWork `json:"message"`
}

type crossrefSearchResponse struct {
	Status  string `json:"status"`
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

// CrossrefClient queries the CrossRef works API.
type CrossrefClient struct {
	baseURL string
	mailto  string
	fetch   fetcher
}

// NewCrossrefClient creates a CrossRef client.
func NewCrossrefClient(opts ClientOptions) *CrossrefClient {
	base := opts.BaseURL
	if base == "" {
		base = DefaultCrossrefURL
	}
	return &CrossrefClient{
		baseURL: strings.TrimSuffix(base, "/"),
		mailto:  opts.Mailto,
		fetch:   newFetcher(opts),
	}
}

func (c *CrossrefClient) Source() Source { return SourceCrossref }

// LookupDOI fetches a single work. Any non-OK answer is ErrDOINotFound.
func (c *CrossrefClient) LookupDOI(ctx context.Context, doi string) (Result, error) {
	doi = NormalizeDOI(doi)
	if doi == "" {
		return Result{}, fmt.Errorf("%w: empty DOI", ErrDOINotFound)
	}

	body, err := c.fetch.get(ctx, c.baseURL+(&url.URL{Path: "/works/" + doi}).EscapedPath())
	if err != nil {
		var serr *StatusError
		if errors.As(err, &serr) {
			return Result{}, fmt.Errorf("%w: %s (status %d)", ErrDOINotFound, doi, serr.Code)
		}
		return Result{}, err
	}

	var resp crossrefWorkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, fmt.Errorf("decode crossref work: %w", err)
	}
	r, ok := resp.Message.result()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s has no title", ErrDOINotFound, doi)
	}
	return r, nil
}

// Search queries works by title, author or keyword. Author searches issue
// both a query.author and a plain query request and merge them, first
// occurrence winning.
func (c *CrossrefClient) Search(ctx context.Context, q Query) ([]Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, nil
	}

	var params []string
	switch q.Mode {
	case ModeTitle:
		params = []string{"query.title"}
	case ModeAuthor:
		params = []string{"query.author", "query"}
	default:
		params = []string{"query"}
	}

	var all []Result
	for _, param := range params {
		results, err := c.search(ctx, param, text, q.limit())
		if err != nil {
			return nil, err
		}
		all = append(all, results...)
	}
	return dedupe(all), nil
}

func (c *CrossrefClient) search(ctx context.Context, param, text string, rows int) ([]Result, error) {
	body, err := c.fetch.get(ctx, c.searchURL(param, text, rows))
	if err != nil {
		return nil, err
	}

	var resp crossrefSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode crossref search: %w", err)
	}

	results := make([]Result, 0, len(resp.Message.Items))
	for _, item := range resp.Message.Items {
		if r, ok := item.result(); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func (c *CrossrefClient) searchURL(param, text string, rows int) string {
	query := url.Values{}
	query.Set(param, text)
	query.Set("rows", strconv.Itoa(rows))
	query.Set("select", strings.Join(crossrefFields, ","))
	if c.mailto != "" {
		query.Set("mailto", c.mailto)
	}
	return c.baseURL + "/works?" + query.Encode()
}

// result normalizes a work. Works without a title are dropped.
func (w crossrefWork) result() (Result, bool) {
	if len(w.Title) == 0 || strings.TrimSpace(w.Title[0]) == "" {
		return Result{}, false
	}

	names := make([]string, 0, len(w.Author))
	for _, a := range w.Author {
		name := strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family))
		if name == "" {
			name = strings.TrimSpace(a.Name)
		}
		if name != "" {
			names = append(names, name)
		}
	}

	r := Result{
		Source:  SourceCrossref,
		DOI:     w.DOI,
		Title:   collapseSpace(w.Title[0]),
		Authors: strings.Join(names, ", "),
		URL:     w.URL,
	}
	if len(w.ContainerTitle) > 0 {
		r.Journal = w.ContainerTitle[0]
	}
	if r.Year = w.Published.year(); r.Year == "" {
		r.Year = w.PublishedPrint.year()
	}
	for _, l := range w.Link {
		if l.ContentType == "application/pdf" {
			r.PDFURL = l.URL
			break
		}
	}
	return r, true
}

// NormalizeDOI strips resolver prefixes and whitespace.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(strings.ToLower(doi), prefix) {
			doi = doi[len(prefix):]
		}
	}
	return strings.TrimSpace(doi)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
