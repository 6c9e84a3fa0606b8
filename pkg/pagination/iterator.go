package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// MaxPageSize is the API ceiling for items per page.
const MaxPageSize = 1000

// Prometheus metrics for pagination.
var (
	dmPagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_pages_fetched_total",
		Help: "Total number of pages fetched",
	})

	dmPageItemsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_page_items_total",
		Help: "Total number of items received in pages",
	})
)

// ErrInvalidLimit is returned for a total limit <= 0.
var ErrInvalidLimit = errors.New("limit must be > 0")

// RangeError reports a page size outside [1, MaxPageSize].
type RangeError struct {
	PageSize int
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("page size %d out of range [1, %d]", e.PageSize, MaxPageSize)
}

// Page is one page of results.
type Page[T any] struct {
	Items []T

	// NextCursor is empty on the last page.
	NextCursor string

	Typing json.RawMessage
	Debug  json.RawMessage
}

// HasMore reports whether another page exists.
func (p *Page[T]) HasMore() bool {
	return p.NextCursor != ""
}

// PageFetcher fetches a single page. An empty cursor requests the first page.
type PageFetcher[T any] func(ctx context.Context, cursor string, pageSize int) (*Page[T], error)

// Iterator threads cursors through a PageFetcher.
type Iterator[T any] struct {
	fetch  PageFetcher[T]
	logger zerolog.Logger
}

// NewIterator creates an iterator over fetch.
func NewIterator[T any](fetch PageFetcher[T], logger zerolog.Logger) *Iterator[T] {
	return &Iterator[T]{
		fetch:  fetch,
		logger: logger,
	}
}

// FetchPage fetches one page. pageSize must be in [1, MaxPageSize].
func (it *Iterator[T]) FetchPage(ctx context.Context, cursor string, pageSize int) (*Page[T], error) {
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, &RangeError{PageSize: pageSize}
	}

	page, err := it.fetch(ctx, cursor, pageSize)
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = &Page[T]{}
	}

	dmPagesFetchedTotal.Inc()
	dmPageItemsTotal.Add(float64(len(page.Items)))

	it.logger.Debug().
		Int("page_size", pageSize).
		Int("items", len(page.Items)).
		Bool("has_more", page.HasMore()).
		Msg("Fetched page")

	return page, nil
}

// ListAll fetches every page and returns the concatenated items.
func (it *Iterator[T]) ListAll(ctx context.Context) ([]T, error) {
	return it.collect(it.AllPages(ctx))
}

// ListLimit fetches pages until limit items are collected or the data ends.
func (it *Iterator[T]) ListLimit(ctx context.Context, limit int) ([]T, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	return it.collect(it.Pages(ctx, limit))
}

func (it *Iterator[T]) collect(pages iter.Seq2[*Page[T], error]) ([]T, error) {
	var items []T
	for page, err := range pages {
		if err != nil {
			return items, err
		}
		items = append(items, page.Items...)
	}

	it.logger.Debug().Int("items", len(items)).Msg("Listing complete")
	return items, nil
}

// Pages lazily yields pages until the data ends or limit items have been
// yielded. A limit of 0 or below yields a single ErrInvalidLimit.
func (it *Iterator[T]) Pages(ctx context.Context, limit int) iter.Seq2[*Page[T], error] {
	if limit <= 0 {
		return func(yield func(*Page[T], error) bool) {
			yield(nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit))
		}
	}
	return it.pages(ctx, limit)
}

// AllPages lazily yields pages until the server reports no further cursor.
func (it *Iterator[T]) AllPages(ctx context.Context) iter.Seq2[*Page[T], error] {
	return it.pages(ctx, 0)
}

// pages drives FetchPage; limit 0 means no bound.
func (it *Iterator[T]) pages(ctx context.Context, limit int) iter.Seq2[*Page[T], error] {
	bounded := limit > 0
	return func(yield func(*Page[T], error) bool) {
		cursor := ""
		collected := 0
		for {
			pageSize := MaxPageSize
			if bounded {
				pageSize = min(limit-collected, MaxPageSize)
			}

			page, err := it.FetchPage(ctx, cursor, pageSize)
			if err != nil {
				yield(nil, err)
				return
			}

			// Servers may ignore the page size; never hand out more than the limit.
			if bounded && collected+len(page.Items) > limit {
				page.Items = page.Items[:limit-collected]
			}
			collected += len(page.Items)

			if !yield(page, nil) {
				return
			}
			if !page.HasMore() || (bounded && collected >= limit) {
				return
			}
			cursor = page.NextCursor
		}
	}
}

// Items lazily yields up to limit items across pages, bounded like Pages.
func (it *Iterator[T]) Items(ctx context.Context, limit int) iter.Seq2[T, error] {
	return flatten(it.Pages(ctx, limit))
}

// AllItems lazily yields every item across pages.
func (it *Iterator[T]) AllItems(ctx context.Context) iter.Seq2[T, error] {
	return flatten(it.AllPages(ctx))
}

func flatten[T any](pages iter.Seq2[*Page[T], error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for page, err := range pages {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}
