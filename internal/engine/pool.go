package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// runBounded calls fn for every index in [0, n) on at most limit goroutines.
// A limit <= 0 runs every index at once. The first error cancels the
// context handed to calls still running and stops new ones from starting;
// it is the error returned.
func runBounded(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Go may hand out a slot freed by the call that failed.
			if gctx.Err() != nil {
				return nil
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
