package materialize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gosimple/slug"
	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"

	"github.com/nikbrunner/paperstack/internal/library"
	"github.com/nikbrunner/paperstack/internal/logging"
	"github.com/nikbrunner/paperstack/internal/metadata"
	"github.com/nikbrunner/paperstack/internal/model"
)

// pdfMagic is the signature every PDF starts with.
var pdfMagic = []byte("%PDF-")

// sniffLen is how much of a rejected file is kept for content detection.
const sniffLen = 3072

// DefaultTimeout bounds a single download.
const DefaultTimeout = 2 * time.Minute

// ErrIntegrity means the content is not a PDF.
var ErrIntegrity = errors.New("not a PDF")

// IntegrityError is a download or upload whose signature did not match.
type IntegrityError struct {
	URL      string
	Detected string // content type sniffed from the rejected bytes
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: content is %s, %v", e.URL, e.Detected, ErrIntegrity)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}

// Library is the part of the store the materializer links files into.
type Library interface {
	Paper(id string) (model.Paper, error)
	Papers() []model.Paper
	AddPaper(ctx context.Context, params library.AddPaperParams) (model.Paper, error)
	RecordDownload(ctx context.Context, id, localURI string) (model.Paper, error)
	SetPages(ctx context.Context, id, pages string) (model.Paper, error)
}

// ProgressFunc is called as bytes arrive. total is -1 when the server did
// not announce a length.
type ProgressFunc func(written, total int64)

// Options configures a Materializer.
type Options struct {
	Dir         string
	Timeout     time.Duration
	Concurrency int
	Logger      logrus.FieldLogger
	HTTPClient  *http.Client
}

// Materializer downloads PDFs into the documents directory and links them
// to their papers.
type Materializer struct {
	lib         Library
	dir         string
	client      *http.Client
	concurrency int
	log         logrus.FieldLogger
}

// New creates a Materializer writing into opts.Dir.
func New(lib Library, opts Options) *Materializer {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Materializer{
		lib:         lib,
		dir:         opts.Dir,
		client:      client,
		concurrency: max(opts.Concurrency, 1),
		log:         log,
	}
}

// Dir returns the documents directory.
func (m *Materializer) Dir() string {
	return m.dir
}

// Download fetches url and links the file to the paper. The paper is only
// linked when the body starts with the PDF signature; anything else is
// discarded and reported as an *IntegrityError.
func (m *Materializer) Download(ctx context.Context, url, paperID string, onProgress ProgressFunc) (string, error) {
	p, err := m.lib.Paper(paperID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("download %s: no URL", paperID)
	}
	log := m.log.WithFields(logrus.Fields{"paper": paperID, "url": url})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", metadata.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &metadata.StatusError{URL: url, Code: resp.StatusCode}
	}

	report := func(written int64) {
		log.WithFields(logrus.Fields{"written": written, "total": resp.ContentLength}).Debug("download progress")
		if onProgress != nil {
			onProgress(written, resp.ContentLength)
		}
	}

	path, err := m.store(resp.Body, url, p.Title, report)
	if err != nil {
		return "", err
	}
	log.WithField("path", path).Info("downloaded")

	return m.link(ctx, paperID, path)
}

// DownloadPaper downloads a paper from its PDF URL.
func (m *Materializer) DownloadPaper(ctx context.Context, paperID string, onProgress ProgressFunc) (string, error) {
	p, err := m.lib.Paper(paperID)
	if err != nil {
		return "", err
	}
	if p.PDFURL == nil || *p.PDFURL == "" {
		return "", fmt.Errorf("paper %s has no PDF URL", paperID)
	}
	return m.Download(ctx, *p.PDFURL, paperID, onProgress)
}

// link records path on the paper. The file is removed again when the
// paper did not end up pointing at it.
func (m *Materializer) link(ctx context.Context, paperID, path string) (string, error) {
	linked, err := m.lib.RecordDownload(ctx, paperID, path)
	if linked.LocalURI == nil || *linked.LocalURI != path {
		_ = os.Remove(path)
		return "", err
	}

	if pages, perr := countPages(path); perr != nil {
		m.log.WithError(perr).WithField("path", path).Debug("page count unavailable")
	} else if _, perr := m.lib.SetPages(ctx, paperID, strconv.Itoa(pages)); perr != nil {
		m.log.WithError(perr).WithField("paper", paperID).Warn("record page count")
	}
	return path, err
}

// Import copies a local PDF into the documents directory and adds it as a
// paper with both localUri and pdfUrl pointing at the copy.
func (m *Materializer) Import(ctx context.Context, src string, params library.AddPaperParams) (model.Paper, error) {
	f, err := os.Open(src)
	if err != nil {
		return model.Paper{}, fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()

	if strings.TrimSpace(params.Title) == "" {
		params.Title = strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	}

	path, err := m.store(f, src, params.Title, nil)
	if err != nil {
		return model.Paper{}, err
	}

	params.LocalURI = path
	params.PDFURL = path
	p, err := m.lib.AddPaper(ctx, params)
	if p.ID == "" {
		_ = os.Remove(path)
		return model.Paper{}, err
	}
	m.log.WithFields(logrus.Fields{"paper": p.ID, "path": path}).Info("imported")

	if pages, perr := countPages(path); perr == nil {
		if updated, perr := m.lib.SetPages(ctx, p.ID, strconv.Itoa(pages)); perr == nil {
			p = updated
		}
	}
	return p, err
}

// store checks the signature of r and writes it to a new file named after
// title. Nothing is left on disk when the check or the copy fails.
func (m *Materializer) store(r io.Reader, origin, title string, report func(int64)) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: read %s: %v", metadata.ErrNetwork, origin, err)
	}
	head = head[:n]
	if !bytes.HasPrefix(head, pdfMagic) {
		return "", &IntegrityError{URL: origin, Detected: mimetype.Detect(head).String()}
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", fmt.Errorf("create documents dir: %w", err)
	}
	tmp, err := os.CreateTemp(m.dir, ".download-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := &progressWriter{w: tmp, report: report}
	if _, err := w.Write(head); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("%w: read %s: %v", metadata.ErrNetwork, origin, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", tmp.Name(), err)
	}

	path, err := reserveName(m.dir, FileName(title))
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("rename download: %w", err)
	}
	return path, nil
}

// FileName returns the slugged file name for a paper title.
func FileName(title string) string {
	name := slug.Make(title)
	if len(name) > 80 {
		name = strings.TrimRight(name[:80], "-")
	}
	if name == "" {
		name = "paper"
	}
	return name + ".pdf"
}

// reserveName creates an empty file for the first free variant of name
// (name.pdf, name-2.pdf, ...) and returns its path. Concurrent callers
// never get the same path.
func reserveName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; i < 1000; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reserve %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("reserve %s: %w", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}

// countPages reads the page count of a PDF.
func countPages(path string) (n int, err error) {
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	return r.NumPage(), nil
}

type progressWriter struct {
	w       io.Writer
	written int64
	report  func(int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.report != nil && n > 0 {
		p.report(p.written)
	}
	return n, err
}
