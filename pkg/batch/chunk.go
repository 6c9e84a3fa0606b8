package batch

import (
	"fmt"
)

// MaxChunkSize is the API ceiling for items per request.
const MaxChunkSize = 1000

// ChunkOf is an ordered slice of the input with its position among all chunks.
type ChunkOf[T any] struct {
	Index int
	Items []T
}

// Chunk splits items into consecutive chunks of size items; only the last
// chunk may be shorter. Concatenating the chunks reconstructs items.
// An empty input yields no chunks.
func Chunk[T any](items []T, size int) ([]ChunkOf[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, size)
	}

	chunks := make([]ChunkOf[T], 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, ChunkOf[T]{
			Index: len(chunks),
			Items: items[start:end:end],
		})
	}
	return chunks, nil
}
