package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/cognitedata/pygen-sub000/pkg/client"
)

// Prometheus metrics for batch execution.
var (
	dmBatchChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_batch_chunks_total",
		Help: "Total chunks processed by result",
	}, []string{"result"})

	dmBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dm_batch_duration_seconds",
		Help:    "Duration of a batch call across all chunks",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

// Config holds batch runner configuration.
type Config struct {
	// ChunkSize is the number of items per request (capped at MaxChunkSize).
	ChunkSize int

	// MaxWorkers is the number of chunks in flight at once.
	MaxWorkers int
}

// DefaultConfig returns the default batch configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:  MaxChunkSize,
		MaxWorkers: 5,
	}
}

// WorkFunc sends one chunk and returns its terminal outcome.
type WorkFunc[T any] func(ctx context.Context, chunk ChunkOf[T]) client.Outcome

// Run splits items into chunks and runs work over them with bounded
// parallelism. The returned slice holds one outcome per chunk in chunk order.
// Every chunk is attempted; an error is returned only for invalid config.
func Run[T any](ctx context.Context, items []T, cfg Config, work WorkFunc[T]) ([]client.Outcome, error) {
	if cfg.MaxWorkers <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, cfg.MaxWorkers)
	}
	size := min(cfg.ChunkSize, MaxChunkSize)

	chunks, err := Chunk(items, size)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		dmBatchDuration.Observe(time.Since(start).Seconds())
	}()

	results := make([]client.Outcome, len(chunks))
	if len(chunks) == 0 {
		return results, nil
	}

	log.Debug().
		Int("items", len(items)).
		Int("chunks", len(chunks)).
		Int("workers", cfg.MaxWorkers).
		Msg("Starting batch")

	var g errgroup.Group

	if len(chunks) <= cfg.MaxWorkers {
		for _, chunk := range chunks {
			g.Go(func() error {
				results[chunk.Index] = runChunk(ctx, chunk, work)
				return nil
			})
		}
		_ = g.Wait()
		return results, nil
	}

	queue := make(chan int, len(chunks))
	for i := range chunks {
		queue <- i
	}
	close(queue)

	for workerID := 0; workerID < cfg.MaxWorkers; workerID++ {
		g.Go(func() error {
			processed := 0
			for idx := range queue {
				results[idx] = runChunk(ctx, chunks[idx], work)
				processed++
			}
			log.Debug().
				Int("worker_id", workerID).
				Int("chunks_processed", processed).
				Msg("Worker completed")
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// runChunk runs one unit of work. A nil outcome is recorded as a failed request.
func runChunk[T any](ctx context.Context, chunk ChunkOf[T], work WorkFunc[T]) client.Outcome {
	outcome := work(ctx, chunk)
	if outcome == nil {
		outcome = &client.FailedRequest{Message: fmt.Sprintf("chunk %d produced no outcome", chunk.Index)}
	}

	switch outcome.(type) {
	case *client.Success:
		dmBatchChunksTotal.WithLabelValues("success").Inc()
	case *client.FailedResponse:
		dmBatchChunksTotal.WithLabelValues("failed_response").Inc()
		log.Warn().Int("chunk", chunk.Index).Str("error_class", string(client.ClassifyOutcome(outcome))).Msg("Chunk failed")
	case *client.FailedRequest:
		dmBatchChunksTotal.WithLabelValues("failed_request").Inc()
		log.Warn().Int("chunk", chunk.Index).Msg("Chunk request failed")
	}
	return outcome
}
