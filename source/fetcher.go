// source/fetcher.go
package source

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/petshop/backend/errors"
	"github.com/petshop/backend/models"
	"github.com/petshop/backend/utils"
)

// Fetcher splits a month into windows and concatenates the per-window counts
// of a CountSource in split order. A name can appear in several windows.
type Fetcher struct {
	source          CountSource
	numberOfSplits  int
	parallelWindows int
	logger          *log.Logger
}

// NewFetcher returns a Fetcher. With parallelWindows > 1 up to that many
// window queries run ahead of the consumer.
func NewFetcher(src CountSource, numberOfSplits, parallelWindows int, logger *log.Logger) *Fetcher {
	return &Fetcher{
		source:          src,
		numberOfSplits:  numberOfSplits,
		parallelWindows: max(parallelWindows, 1),
		logger:          logger.WithPrefix("fetch"),
	}
}

// SourceName names the underlying count source, e.g. "bigquery".
func (f *Fetcher) SourceName() string { return f.source.Name() }

// FetchMonth returns the count records of every window of the month. Window
// failures surface as SOURCE_QUERY_FAILURE errors through the sequence and
// end it; the month must then be re-run as a whole.
func (f *Fetcher) FetchMonth(ctx context.Context, year int, month time.Month) (iter.Seq2[models.CountRecord, error], error) {
	windows, err := utils.SplitMonth(year, month, f.numberOfSplits)
	if err != nil {
		return nil, err
	}
	if f.parallelWindows > 1 && len(windows) > 1 {
		return f.prefetched(ctx, windows), nil
	}
	return f.sequential(ctx, windows), nil
}

func (f *Fetcher) sequential(ctx context.Context, windows []utils.Window) iter.Seq2[models.CountRecord, error] {
	return func(yield func(models.CountRecord, error) bool) {
		for i, w := range windows {
			f.logger.Info("querying window", "window", fmt.Sprintf("%d/%d", i+1, len(windows)), "range", w)
			records, err := f.source.CountByName(ctx, w.Start, w.End)
			if err != nil {
				yield(models.CountRecord{}, f.windowError(w, err))
				return
			}
			if !f.drain(w, records, yield) {
				return
			}
		}
	}
}

type windowResult struct {
	records iter.Seq2[models.CountRecord, error]
	err     error
	done    chan struct{}
}

// prefetched submits window queries concurrently, bounded by parallelWindows,
// and still yields records strictly in window order. The first failing window
// cancels the queries that are still running.
func (f *Fetcher) prefetched(ctx context.Context, windows []utils.Window) iter.Seq2[models.CountRecord, error] {
	return func(yield func(models.CountRecord, error) bool) {
		ctx, cancel := context.WithCancelCause(ctx)

		results := make([]*windowResult, len(windows))
		for i := range results {
			results[i] = &windowResult{done: make(chan struct{})}
		}

		var g errgroup.Group
		g.SetLimit(f.parallelWindows)
		launched := make(chan struct{})
		go func() {
			defer close(launched)
			for i, w := range windows {
				r := results[i]
				if ctx.Err() != nil {
					r.err = context.Cause(ctx)
					close(r.done)
					continue
				}
				g.Go(func() error {
					defer close(r.done)
					f.logger.Info("querying window", "window", fmt.Sprintf("%d/%d", i+1, len(windows)), "range", w)
					r.records, r.err = f.source.CountByName(ctx, w.Start, w.End)
					if r.err != nil {
						r.err = f.windowError(w, r.err)
						cancel(r.err)
					}
					return r.err
				})
			}
		}()
		defer func() {
			cancel(context.Canceled)
			<-launched
			_ = g.Wait()
		}()

		for i, w := range windows {
			r := results[i]
			select {
			case <-r.done:
			case <-ctx.Done():
				yield(models.CountRecord{}, context.Cause(ctx))
				return
			}
			if r.err != nil {
				yield(models.CountRecord{}, r.err)
				return
			}
			if !f.drain(w, r.records, func(rec models.CountRecord, err error) bool {
				if err != nil && ctx.Err() != nil {
					err = context.Cause(ctx)
				}
				return yield(rec, err)
			}) {
				return
			}
		}
	}
}

// drain forwards one window's records and reports whether to continue.
func (f *Fetcher) drain(w utils.Window, records iter.Seq2[models.CountRecord, error], yield func(models.CountRecord, error) bool) bool {
	n := 0
	for rec, err := range records {
		if err != nil {
			yield(models.CountRecord{}, f.windowError(w, err))
			return false
		}
		n++
		if !yield(rec, nil) {
			return false
		}
	}
	f.logger.Debug("window done", "range", w, "rows", n)
	return true
}

func (f *Fetcher) windowError(w utils.Window, err error) error {
	if apperrors.Is(err, apperrors.ErrCodeSourceQuery) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrCodeSourceQuery, err, "%s window %s", f.source.Name(), w)
}
