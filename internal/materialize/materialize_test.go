package materialize_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/paperstack/internal/library"
	"github.com/nikbrunner/paperstack/internal/materialize"
	"github.com/nikbrunner/paperstack/internal/metadata"
	"github.com/nikbrunner/paperstack/internal/storage"
)

const fakePDF = "%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\n"

func newStore(t *testing.T) *library.Store {
	t.Helper()
	b, err := storage.NewSQLiteBackend(filepath.Join(t.TempDir(), "library.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { b.Close() })

	s := library.NewStore(b, library.Options{})
	assert.NilError(t, s.Load(context.Background()))
	return s
}

func pdfServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ".pdf"):
			w.Header().Set("Content-Type", "application/pdf")
			fmt.Fprint(w, fakePDF)
		case r.URL.Path == "/login":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<!DOCTYPE html><html><body>Please sign in</body></html>")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func documents(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	assert.NilError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownload_LinksPDF(t *testing.T) {
	ts := pdfServer(t)
	s := newStore(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "documents")

	p, err := s.AddPaper(ctx, library.AddPaperParams{Title: "Attention Is All You Need", PDFURL: ts.URL + "/attention.pdf"})
	assert.NilError(t, err)

	var progress []int64
	m := materialize.New(s, materialize.Options{Dir: dir})
	path, err := m.Download(ctx, ts.URL+"/attention.pdf", p.ID, func(written, total int64) {
		progress = append(progress, written)
	})
	assert.NilError(t, err)
	assert.Equal(t, path, filepath.Join(dir, "attention-is-all-you-need.pdf"))

	data, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Assert(t, strings.HasPrefix(string(data), "%PDF-"))
	assert.Assert(t, len(progress) > 0)
	assert.Equal(t, progress[len(progress)-1], int64(len(fakePDF)))

	got, err := s.Paper(p.ID)
	assert.NilError(t, err)
	assert.Equal(t, *got.LocalURI, path)
	assert.Equal(t, *got.PDFURL, ts.URL+"/attention.pdf")
	assert.DeepEqual(t, documents(t, dir), []string{"attention-is-all-you-need.pdf"})
}

func TestDownload_RejectsNonPDF(t *testing.T) {
	ts := pdfServer(t)
	s := newStore(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "documents")

	p, err := s.AddPaper(ctx, library.AddPaperParams{Title: "Paywalled", PDFURL: ts.URL + "/login"})
	assert.NilError(t, err)

	m := materialize.New(s, materialize.Options{Dir: dir})
	path, err := m.Download(ctx, ts.URL+"/login", p.ID, nil)
	assert.Equal(t, path, "")
	assert.Assert(t, errors.Is(err, materialize.ErrIntegrity))

	var ierr *materialize.IntegrityError
	assert.Assert(t, errors.As(err, &ierr))
	assert.Assert(t, is.Contains(ierr.Detected, "text/html"))

	got, err := s.Paper(p.ID)
	assert.NilError(t, err)
	assert.Assert(t, got.LocalURI == nil)
	assert.Equal(t, len(documents(t, dir)), 0)
}

func TestDownload_Failures(t *testing.T) {
	ts := pdfServer(t)
	s := newStore(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "documents")
	m := materialize.New(s, materialize.Options{Dir: dir})

	p, err := s.AddPaper(ctx, library.AddPaperParams{Title: "Gone", PDFURL: ts.URL + "/gone"})
	assert.NilError(t, err)

	_, err = m.Download(ctx, ts.URL+"/gone", p.ID, nil)
	var serr *metadata.StatusError
	assert.Assert(t, errors.As(err, &serr))
	assert.Equal(t, serr.Code, http.StatusNotFound)

	_, err = m.Download(ctx, ts.URL+"/x.pdf", "missing", nil)
	assert.Assert(t, errors.Is(err, library.ErrValidation))

	got, err := s.Paper(p.ID)
	assert.NilError(t, err)
	assert.Assert(t, got.LocalURI == nil)
	assert.Equal(t, len(documents(t, dir)), 0)
}

func TestImport(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	src := t.TempDir()
	dir := filepath.Join(t.TempDir(), "documents")
	m := materialize.New(s, materialize.Options{Dir: dir})

	pdfPath := filepath.Join(src, "Graph Networks.pdf")
	assert.NilError(t, os.WriteFile(pdfPath, []byte(fakePDF), 0644))

	p, err := m.Import(ctx, pdfPath, library.AddPaperParams{})
	assert.NilError(t, err)
	assert.Equal(t, p.Title, "Graph Networks")
	assert.Equal(t, string(p.Tag), "Local")
	assert.Equal(t, *p.LocalURI, filepath.Join(dir, "graph-networks.pdf"))
	assert.Equal(t, *p.PDFURL, *p.LocalURI)

	// A second copy of the same title gets its own file.
	again, err := m.Import(ctx, pdfPath, library.AddPaperParams{})
	assert.NilError(t, err)
	assert.Equal(t, *again.LocalURI, filepath.Join(dir, "graph-networks-2.pdf"))

	txtPath := filepath.Join(src, "notes.txt")
	assert.NilError(t, os.WriteFile(txtPath, []byte("just some notes"), 0644))
	_, err = m.Import(ctx, txtPath, library.AddPaperParams{Title: "Notes"})
	assert.Assert(t, errors.Is(err, materialize.ErrIntegrity))
	assert.Equal(t, len(s.Papers()), 2)
}

func TestDownloadAll(t *testing.T) {
	ts := pdfServer(t)
	s := newStore(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "documents")

	for i, path := range []string{"/a.pdf", "/b.pdf", "/login", "/c.pdf"} {
		_, err := s.AddPaper(ctx, library.AddPaperParams{Title: fmt.Sprintf("Paper %d", i), PDFURL: ts.URL + path})
		assert.NilError(t, err)
	}
	_, err := s.AddPaper(ctx, library.AddPaperParams{Title: "No link"})
	assert.NilError(t, err)

	var mu sync.Mutex
	var calls []int
	m := materialize.New(s, materialize.Options{Dir: dir, Concurrency: 2})
	results := m.DownloadAll(ctx, func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Check(t, total == 4)
		calls = append(calls, completed)
	})

	assert.Equal(t, len(results), 4)
	assert.DeepEqual(t, calls, []int{1, 2, 3, 4})

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			assert.Assert(t, errors.Is(r.Err, materialize.ErrIntegrity))
			assert.Equal(t, r.Paper.Title, "Paper 2")
		}
	}
	assert.Equal(t, failed, 1)
	assert.Equal(t, len(documents(t, dir)), 3)
	assert.Equal(t, len(materialize.Pending(s.Papers())), 1)

	// Nothing left to do except the rejected one.
	again := m.DownloadAll(ctx, nil)
	assert.Equal(t, len(again), 1)
}

func TestDownloadAll_SameTitleGetsDistinctFiles(t *testing.T) {
	ts := pdfServer(t)
	s := newStore(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "documents")

	const n = 8
	for i := 0; i < n; i++ {
		_, err := s.AddPaper(ctx, library.AddPaperParams{Title: "Deep Learning", PDFURL: fmt.Sprintf("%s/dl-%d.pdf", ts.URL, i)})
		assert.NilError(t, err)
	}

	m := materialize.New(s, materialize.Options{Dir: dir, Concurrency: n})
	results := m.DownloadAll(ctx, nil)
	assert.Equal(t, len(results), n)

	seen := make(map[string]bool)
	for _, p := range s.Papers() {
		assert.Assert(t, p.LocalURI != nil, p.ID)
		path := *p.LocalURI
		assert.Check(t, !seen[path], "%s linked twice", path)
		seen[path] = true

		data, err := os.ReadFile(path)
		assert.NilError(t, err)
		assert.Check(t, strings.HasPrefix(string(data), "%PDF-"), path)
	}
	assert.Check(t, is.Len(documents(t, dir), n))
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"Attention Is All You Need": "attention-is-all-you-need.pdf",
		"  ":                        "paper.pdf",
		"Graph Networks (2018)":     "graph-networks-2018.pdf",
	}
	for in, want := range tests {
		assert.Check(t, is.Equal(materialize.FileName(in), want), in)
	}
}
