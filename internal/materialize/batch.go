package materialize

import (
	"context"
	"sync"

	"github.com/nikbrunner/paperstack/internal/model"
)

// Result is the outcome of downloading one paper in a batch.
type Result struct {
	Paper model.Paper
	Path  string
	Err   error
}

// BatchProgressFunc is called after each paper is done.
type BatchProgressFunc func(completed, total int)

// Pending returns the papers with a PDF URL and no local copy.
func Pending(papers []model.Paper) []model.Paper {
	var out []model.Paper
	for _, p := range papers {
		if p.PDFURL != nil && *p.PDFURL != "" && p.LocalURI == nil {
			out = append(out, p)
		}
	}
	return out
}

// DownloadAll materializes every pending paper with a bounded number of
// workers. Results are in the order of the pending papers.
func (m *Materializer) DownloadAll(ctx context.Context, onProgress BatchProgressFunc) []Result {
	papers := Pending(m.lib.Papers())
	if len(papers) == 0 {
		return nil
	}

	results := make([]Result, len(papers))
	jobs := make(chan int, len(papers))
	var wg sync.WaitGroup

	var progressMu sync.Mutex
	completed := 0

	for w := 0; w < min(m.concurrency, len(papers)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				p := papers[idx]
				path, err := m.Download(ctx, *p.PDFURL, p.ID, nil)
				if err != nil {
					m.log.WithError(err).WithField("paper", p.ID).Warn("download failed")
				}
				results[idx] = Result{Paper: p, Path: path, Err: err}

				if onProgress != nil {
					progressMu.Lock()
					completed++
					onProgress(completed, len(papers))
					progressMu.Unlock()
				}
			}
		}()
	}

	for i := range papers {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	return results
}
