package internal

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ProcessJobs runs job for every index in [0, n) with at most workers jobs
// in flight and returns the results in index order, whatever order the jobs
// finish in.
//
// The first error cancels the context passed to the remaining jobs, and jobs
// that have not started yet are skipped.
func ProcessJobs[T any](
	ctx context.Context,
	workers int,
	n int,
	job func(ctx context.Context, i int) (T, error),
) ([]T, error) {
	if workers <= 0 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make([]T, n)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("processing canceled: %w", err)
			}
			res, err := job(ctx, i)
			if err != nil {
				return err
			}
			// Each job owns its own slot.
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("running job: %w", err)
	}
	return results, nil
}
