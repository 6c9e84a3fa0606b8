package batch

import (
	"fmt"

	"github.com/cognitedata/pygen-sub000/pkg/client"
)

// Result is the merged content of every successful chunk.
type Result[T, D any] struct {
	Items      []T
	DeletedIDs []D
}

// Len returns the number of items and deleted ids.
func (r Result[T, D]) Len() int {
	return len(r.Items) + len(r.DeletedIDs)
}

// ParseFunc decodes a successful response body into items and deleted ids.
type ParseFunc[T, D any] func(body []byte) (items []T, deleted []D, err error)

// Aggregate folds outcomes in order. Successful bodies are parsed and
// appended; failures are collected unparsed. If any outcome failed, the
// merged result is returned together with a *PartialFailureError carrying it.
//
// A body the parser rejects counts as a failed response with a synthesized
// error {code: status, message: parse error}.
func Aggregate[T, D any](outcomes []client.Outcome, parse ParseFunc[T, D]) (Result[T, D], error) {
	var (
		result          Result[T, D]
		failedResponses []*client.FailedResponse
		failedRequests  []*client.FailedRequest
	)

	for i, outcome := range outcomes {
		switch o := outcome.(type) {
		case *client.Success:
			items, deleted, err := parse(o.Body)
			if err != nil {
				failedResponses = append(failedResponses, &client.FailedResponse{
					StatusCode: o.StatusCode,
					Header:     o.Header,
					Body:       o.Body,
					Error: client.APIError{
						Code:    o.StatusCode,
						Message: fmt.Sprintf("parse chunk %d response: %v", i, err),
					},
				})
				continue
			}
			result.Items = append(result.Items, items...)
			result.DeletedIDs = append(result.DeletedIDs, deleted...)
		case *client.FailedResponse:
			failedResponses = append(failedResponses, o)
		case *client.FailedRequest:
			failedRequests = append(failedRequests, o)
		default:
			failedRequests = append(failedRequests, &client.FailedRequest{
				Message: fmt.Sprintf("chunk %d: unknown outcome %T", i, outcome),
			})
		}
	}

	if len(failedResponses) > 0 || len(failedRequests) > 0 {
		return result, &PartialFailureError[T, D]{
			FailedResponses: failedResponses,
			FailedRequests:  failedRequests,
			Partial:         result,
		}
	}
	return result, nil
}
