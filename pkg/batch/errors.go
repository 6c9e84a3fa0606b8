package batch

import (
	"errors"
	"fmt"

	"github.com/cognitedata/pygen-sub000/pkg/client"
)

// Usage errors, returned before any request is sent.
var (
	// ErrInvalidChunkSize is returned for a chunk size <= 0.
	ErrInvalidChunkSize = errors.New("chunk size must be > 0")

	// ErrInvalidWorkers is returned for a worker count <= 0.
	ErrInvalidWorkers = errors.New("max workers must be > 0")
)

// PartialFailureError reports a batch call where at least one chunk failed.
// Partial holds everything the successful chunks returned.
type PartialFailureError[T, D any] struct {
	FailedResponses []*client.FailedResponse
	FailedRequests  []*client.FailedRequest
	Partial         Result[T, D]
}

// Error implements the error interface.
func (e *PartialFailureError[T, D]) Error() string {
	msg := fmt.Sprintf("batch partially failed: %d failed responses, %d failed requests, %d items succeeded",
		len(e.FailedResponses), len(e.FailedRequests), len(e.Partial.Items)+len(e.Partial.DeletedIDs))
	if len(e.FailedResponses) > 0 {
		first := e.FailedResponses[0].Error
		msg += fmt.Sprintf(": first error: %s", first.Error())
	} else if len(e.FailedRequests) > 0 {
		msg += fmt.Sprintf(": first error: %s", e.FailedRequests[0].Message)
	}
	return msg
}

// Unwrap exposes every chunk failure for errors.Is/As.
func (e *PartialFailureError[T, D]) Unwrap() []error {
	errs := make([]error, 0, len(e.FailedResponses)+len(e.FailedRequests))
	for _, f := range e.FailedResponses {
		errs = append(errs, client.OutcomeError(f))
	}
	for _, f := range e.FailedRequests {
		errs = append(errs, client.OutcomeError(f))
	}
	return errs
}

// RateLimited returns the failed responses with status 429.
func (e *PartialFailureError[T, D]) RateLimited() []*client.FailedResponse {
	return e.byClass(client.ErrorClassRateLimit)
}

// ServerErrors returns the failed responses with a 5xx status.
func (e *PartialFailureError[T, D]) ServerErrors() []*client.FailedResponse {
	return e.byClass(client.ErrorClassServer)
}

// ClientErrors returns the failed responses with a 4xx status other than 429.
func (e *PartialFailureError[T, D]) ClientErrors() []*client.FailedResponse {
	return e.byClass(client.ErrorClassClient)
}

func (e *PartialFailureError[T, D]) byClass(class client.ErrorClass) []*client.FailedResponse {
	var out []*client.FailedResponse
	for _, f := range e.FailedResponses {
		if client.ClassifyStatus(f.StatusCode) == class {
			out = append(out, f)
		}
	}
	return out
}
