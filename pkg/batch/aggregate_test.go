package batch

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/cognitedata/pygen-sub000/pkg/client"
)

type testID struct {
	Space      string `json:"space"`
	ExternalID string `json:"externalId"`
}

// parseTestBody decodes {"items": [...], "deleted": [...]}.
func parseTestBody(body []byte) ([]string, []testID, error) {
	var payload struct {
		Items   []string `json:"items"`
		Deleted []testID `json:"deleted"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, err
	}
	return payload.Items, payload.Deleted, nil
}

func success(body string) *client.Success {
	return &client.Success{StatusCode: 200, Body: []byte(body)}
}

func TestAggregate_AllSuccess(t *testing.T) {
	outcomes := []client.Outcome{
		success(`{"items": ["a", "b"]}`),
		success(`{"items": ["c"], "deleted": [{"space": "s", "externalId": "x"}]}`),
	}

	result, err := Aggregate(outcomes, parseTestBody)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	if !reflect.DeepEqual(result.Items, []string{"a", "b", "c"}) {
		t.Errorf("Items = %v", result.Items)
	}
	if !reflect.DeepEqual(result.DeletedIDs, []testID{{Space: "s", ExternalID: "x"}}) {
		t.Errorf("DeletedIDs = %v", result.DeletedIDs)
	}
	if result.Len() != 4 {
		t.Errorf("Len() = %d, want 4", result.Len())
	}
}

func TestAggregate_MiddleChunkFails(t *testing.T) {
	outcomes := []client.Outcome{
		success(`{"items": ["a", "b"]}`),
		&client.FailedResponse{
			StatusCode: 400,
			Body:       []byte(`{"error": {"code": 400, "message": "Invalid"}}`),
			Error:      client.APIError{Code: 400, Message: "Invalid"},
		},
		success(`{"items": ["e"]}`),
	}

	result, err := Aggregate(outcomes, parseTestBody)

	var partial *PartialFailureError[string, testID]
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want *PartialFailureError", err)
	}
	if !reflect.DeepEqual(partial.Partial.Items, []string{"a", "b", "e"}) {
		t.Errorf("Partial.Items = %v, want [a b e]", partial.Partial.Items)
	}
	if len(partial.FailedResponses) != 1 || partial.FailedResponses[0] != outcomes[1] {
		t.Errorf("FailedResponses = %v, want exactly chunk 2's failure", partial.FailedResponses)
	}
	if len(partial.FailedRequests) != 0 {
		t.Errorf("FailedRequests = %v, want none", partial.FailedRequests)
	}
	if !reflect.DeepEqual(result, partial.Partial) {
		t.Error("returned result should equal the partial result")
	}
	if len(partial.ClientErrors()) != 1 || len(partial.ServerErrors()) != 0 {
		t.Error("chunk 2's failure should be classified as a client error")
	}
	if !client.IsClientError(err) {
		t.Error("client.IsClientError should see through PartialFailureError")
	}
}

func TestAggregate_FailedRequestsKeptSeparately(t *testing.T) {
	outcomes := []client.Outcome{
		&client.FailedRequest{Message: "connection refused"},
		&client.FailedResponse{StatusCode: 503, Error: client.APIError{Code: 503, Message: "down"}},
		&client.FailedResponse{StatusCode: 429, Error: client.APIError{Code: 429, Message: "slow"}},
	}

	_, err := Aggregate(outcomes, parseTestBody)

	var partial *PartialFailureError[string, testID]
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want *PartialFailureError", err)
	}
	if len(partial.FailedRequests) != 1 || len(partial.FailedResponses) != 2 {
		t.Errorf("failures = %d requests, %d responses; want 1, 2",
			len(partial.FailedRequests), len(partial.FailedResponses))
	}
	if len(partial.RateLimited()) != 1 || len(partial.ServerErrors()) != 1 {
		t.Error("taxonomy helpers misclassified failures")
	}
	if partial.Partial.Len() != 0 {
		t.Errorf("Partial.Len() = %d, want 0", partial.Partial.Len())
	}
	if !client.IsTransportError(err) || !client.IsRateLimit(err) || !client.IsServerError(err) {
		t.Error("Unwrap should expose every failure")
	}
}

func TestAggregate_ClassPredicatesSeeLaterChunks(t *testing.T) {
	outcomes := []client.Outcome{
		&client.FailedResponse{StatusCode: 503, Error: client.APIError{Code: 503, Message: "down"}},
		success(`{"items": ["a"]}`),
		&client.FailedResponse{StatusCode: 429, Error: client.APIError{Code: 429, Message: "slow"}},
	}

	_, err := Aggregate(outcomes, parseTestBody)
	if err == nil {
		t.Fatal("Aggregate() error = nil, want *PartialFailureError")
	}
	if !client.IsServerError(err) {
		t.Error("IsServerError() = false, want true")
	}
	if !client.IsRateLimit(err) {
		t.Error("IsRateLimit() = false, want true for the 429 in the last chunk")
	}
	if client.IsTransportError(err) {
		t.Error("IsTransportError() = true, want false")
	}
}

func TestAggregate_ParseErrorBecomesFailedResponse(t *testing.T) {
	outcomes := []client.Outcome{
		success(`{"items": ["a"]}`),
		success(`not json`),
	}

	_, err := Aggregate(outcomes, parseTestBody)

	var partial *PartialFailureError[string, testID]
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want *PartialFailureError", err)
	}
	if len(partial.FailedResponses) != 1 {
		t.Fatalf("FailedResponses = %d, want 1", len(partial.FailedResponses))
	}
	fr := partial.FailedResponses[0]
	if fr.Error.Code != 200 || !strings.Contains(fr.Error.Message, "parse chunk 1") {
		t.Errorf("synthesized error = %+v", fr.Error)
	}
	if !reflect.DeepEqual(partial.Partial.Items, []string{"a"}) {
		t.Errorf("Partial.Items = %v", partial.Partial.Items)
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	outcomes := []client.Outcome{
		success(`{"items": ["a"], "deleted": [{"space": "s", "externalId": "1"}]}`),
		&client.FailedRequest{Message: "timeout"},
		success(`{"items": ["b", "c"]}`),
	}

	first, err1 := Aggregate(outcomes, parseTestBody)
	second, err2 := Aggregate(outcomes, parseTestBody)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ: %v vs %v", first, second)
	}
	if err1 == nil || err2 == nil || err1.Error() != err2.Error() {
		t.Errorf("errors differ: %v vs %v", err1, err2)
	}
}

func TestAggregate_Empty(t *testing.T) {
	result, err := Aggregate[string, testID](nil, parseTestBody)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if result.Len() != 0 {
		t.Errorf("Len() = %d, want 0", result.Len())
	}
}

func TestRunThenAggregate(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e", "f"}
	cfg := Config{ChunkSize: 2, MaxWorkers: 3}

	outcomes, err := Run(context.Background(), items, cfg, func(_ context.Context, chunk ChunkOf[string]) client.Outcome {
		if chunk.Index == 1 {
			return &client.FailedResponse{StatusCode: 400, Error: client.APIError{Code: 400, Message: "bad chunk"}}
		}
		body, _ := json.Marshal(map[string][]string{"items": chunk.Items})
		return &client.Success{StatusCode: 200, Body: body}
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	_, err = Aggregate(outcomes, parseTestBody)

	var partial *PartialFailureError[string, testID]
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want *PartialFailureError", err)
	}
	if !reflect.DeepEqual(partial.Partial.Items, []string{"a", "b", "e", "f"}) {
		t.Errorf("Partial.Items = %v, want [a b e f]", partial.Partial.Items)
	}
	if !strings.Contains(err.Error(), "bad chunk") {
		t.Errorf("Error() = %q, should mention the first failure", err.Error())
	}
}
