// Package batch runs item-level API operations over unbounded item lists.
//
// The API accepts at most 1000 items per request. This package splits a list
// into ordered chunks, drives each chunk through a request function on a fixed
// pool of workers, and folds the per-chunk outcomes into one result.
//
// Example usage:
//
//	outcomes, err := batch.Run(ctx, items, batch.DefaultConfig(), func(ctx context.Context, chunk batch.ChunkOf[Item]) client.Outcome {
//	    return c.Execute(ctx, buildRequest(chunk.Items))
//	})
//	if err != nil {
//	    return err // usage error, nothing was sent
//	}
//	result, err := batch.Aggregate(outcomes, parseItems)
//
// The runner:
//   - Keeps result[i] aligned with chunk i regardless of completion order
//   - Dispatches every chunk at once when there are no more chunks than workers
//   - Otherwise drains chunks with exactly MaxWorkers goroutines
//   - Never cancels remaining chunks because one of them failed
//
// Aggregate returns a *PartialFailureError when any chunk failed. The error
// carries everything that did succeed so callers can retry only the failed part.
package batch
