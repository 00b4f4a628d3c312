package metadata_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/nikbrunner/paperstack/internal/metadata"
)

func serveFile(t *testing.T, path string, seen *http.Request) *httptest.Server {
	t.Helper()
	data, err := os.ReadFile(path)
	assert.NilError(t, err)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = *r
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write(data)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestArxivClient_AuthorPapers(t *testing.T) {
	var req http.Request
	ts := serveFile(t, "testdata/arxiv_author.xml", &req)
	client := metadata.NewArxivClient(metadata.ClientOptions{BaseURL: ts.URL})

	results, err := client.AuthorPapers(context.Background(), "Geoffrey Hinton", 0)
	assert.NilError(t, err)

	q := req.URL.Query()
	assert.Equal(t, q.Get("search_query"), "au:Geoffrey AND au:Hinton")
	assert.Equal(t, q.Get("start"), "0")
	assert.Equal(t, q.Get("max_results"), "10")
	assert.Equal(t, q.Get("sortBy"), "submittedDate")
	assert.Equal(t, q.Get("sortOrder"), "descending")

	assert.Equal(t, len(results), 2, "entries without a title are skipped")

	first := results[0]
	assert.Equal(t, first.Source, metadata.SourceArxiv)
	assert.Equal(t, first.ArxivID, "2212.13345")
	assert.Equal(t, first.Title, "The Forward-Forward Algorithm: Some Preliminary Investigations")
	assert.Equal(t, first.PDFURL, "https://arxiv.org/pdf/2212.13345.pdf")
	assert.Equal(t, first.Year, "2022")
	assert.Equal(t, first.Journal, "arXiv")
	assert.Equal(t, first.DOI, "")

	second := results[1]
	assert.Equal(t, second.Authors, "Geoffrey Hinton, Oriol Vinyals, Jeff Dean")
	assert.Equal(t, second.DOI, "10.48550/arXiv.1503.02531")
	assert.Equal(t, second.Journal, "NIPS 2014 Deep Learning Workshop")
}

func TestArxivClient_SearchModes(t *testing.T) {
	tests := []struct {
		mode metadata.Mode
		want string
	}{
		{metadata.ModeTitle, "ti:attention AND ti:transformers"},
		{metadata.ModeAuthor, "au:attention AND au:transformers"},
		{metadata.ModeKeyword, "all:attention AND all:transformers"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			var req http.Request
			ts := serveFile(t, "testdata/arxiv_author.xml", &req)
			client := metadata.NewArxivClient(metadata.ClientOptions{BaseURL: ts.URL})

			_, err := client.Search(context.Background(), metadata.Query{Text: "attention, transformers!", Mode: tt.mode})
			assert.NilError(t, err)
			assert.Equal(t, req.URL.Query().Get("search_query"), tt.want)
			assert.Equal(t, req.URL.Query().Get("sortBy"), "relevance")
		})
	}
}

func TestArxivClient_ErrorFeed(t *testing.T) {
	ts := serveFile(t, "testdata/arxiv_error.xml", nil)
	client := metadata.NewArxivClient(metadata.ClientOptions{BaseURL: ts.URL})

	_, err := client.Search(context.Background(), metadata.Query{Text: "1234.12345"})
	assert.Assert(t, errors.Is(err, metadata.ErrNetwork))
	assert.ErrorContains(t, err, "incorrect id format")
}

func TestArxivClient_BlankQuery(t *testing.T) {
	client := metadata.NewArxivClient(metadata.ClientOptions{BaseURL: "http://127.0.0.1:0"})
	results, err := client.Search(context.Background(), metadata.Query{Text: " ?! "})
	assert.NilError(t, err)
	assert.Equal(t, len(results), 0)
}

func TestArxivID(t *testing.T) {
	tests := map[string]string{
		"http://arxiv.org/abs/2101.00001v2":   "2101.00001",
		"http://arxiv.org/abs/2101.00001":     "2101.00001",
		"http://arxiv.org/abs/hep-th/9901001": "hep-th/9901001",
		"https://example.org/other":           "",
	}
	for in, want := range tests {
		if got := metadata.ArxivID(in); got != want {
			t.Errorf("ArxivID(%q) = %q, want %q", in, got, want)
		}
	}
}
