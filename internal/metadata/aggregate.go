package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nikbrunner/paperstack/internal/logging"
)

// Results is the merged answer of every source.
type Results struct {
	Query  Query
	Items  []Result
	Failed map[Source]error
}

// Aggregator searches several sources concurrently. A failing source only
// loses its own results.
type Aggregator struct {
	sources []Searcher
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewAggregator creates an Aggregator. Results are merged in source order.
func NewAggregator(log logrus.FieldLogger, timeout time.Duration, sources ...Searcher) *Aggregator {
	if log == nil {
		log = logging.Discard()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Aggregator{sources: sources, timeout: timeout, log: log}
}

// Search queries every source, drops duplicates (first occurrence wins) and
// marks results starred from the local favorites. It fails only when every
// source failed.
func (a *Aggregator) Search(ctx context.Context, q Query, starred map[string]bool) (Results, error) {
	type answer struct {
		results []Result
		err     error
	}
	answers := make([]answer, len(a.sources))

	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src Searcher) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			results, err := src.Search(ctx, q)
			if err != nil && errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			answers[i] = answer{results: results, err: err}
		}(i, src)
	}
	wg.Wait()

	out := Results{Query: q, Failed: make(map[Source]error)}
	var merged []Result
	var errs []error
	for i, ans := range answers {
		src := a.sources[i].Source()
		if ans.err != nil {
			a.log.WithError(ans.err).WithField("source", src).Warn("search source failed")
			out.Failed[src] = ans.err
			errs = append(errs, fmt.Errorf("%s: %w", src, ans.err))
			continue
		}
		merged = append(merged, ans.results...)
	}

	if err := ctx.Err(); err != nil {
		return out, err
	}
	if len(a.sources) > 0 && len(errs) == len(a.sources) {
		return out, fmt.Errorf("every source failed: %w", errors.Join(errs...))
	}

	out.Items = Annotate(dedupe(merged), starred)
	return out, nil
}
