package source

import (
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// fetchPages fetches pageCount pages in batches of batchSize: concurrent
// within a batch, serial across batches, so results keep pagination order.
// A batch fails as a unit when any page exhausts its retries. stopAfter, when
// set, is consulted with each completed batch and ends pagination early.
func fetchPages[T any](ctx domain.Context, pageCount, batchSize int, fetch func(domain.Context, int) (T, error), stopAfter func(batch []T) bool) ([]T, error) {
	if batchSize < 1 {
		batchSize = 1
	}
	results := make([]T, pageCount)
	for start := 0; start < pageCount; start += batchSize {
		end := min(start+batchSize, pageCount)
		g, gctx := errgroup.WithContext(ctx)
		for page := start; page < end; page++ {
			g.Go(func() error {
				res, err := fetch(gctx, page)
				if err != nil {
					return err
				}
				results[page] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if stopAfter != nil && stopAfter(results[start:end]) {
			return results[:end], nil
		}
	}
	return results, nil
}
