package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected ErrorClass
	}{
		{name: "429 is rate limit", status: 429, expected: ErrorClassRateLimit},
		{name: "400 is client", status: 400, expected: ErrorClassClient},
		{name: "404 is client", status: 404, expected: ErrorClassClient},
		{name: "499 is client", status: 499, expected: ErrorClassClient},
		{name: "500 is server", status: 500, expected: ErrorClassServer},
		{name: "503 is server", status: 503, expected: ErrorClassServer},
		{name: "599 is server", status: 599, expected: ErrorClassServer},
		{name: "200 is not an error", status: 200, expected: ""},
		{name: "600 is not classified", status: 600, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyStatus(tt.status); got != tt.expected {
				t.Errorf("ClassifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name     string
		outcome  Outcome
		expected ErrorClass
	}{
		{name: "success", outcome: &Success{StatusCode: 200}, expected: ""},
		{name: "rate limited", outcome: &FailedResponse{StatusCode: 429}, expected: ErrorClassRateLimit},
		{name: "server error", outcome: &FailedResponse{StatusCode: 502}, expected: ErrorClassServer},
		{name: "client error", outcome: &FailedResponse{StatusCode: 422}, expected: ErrorClassClient},
		{name: "transport failure", outcome: &FailedRequest{Message: "dial tcp"}, expected: ErrorClassNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyOutcome(tt.outcome); got != tt.expected {
				t.Errorf("ClassifyOutcome() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	rateLimited := OutcomeError(&FailedResponse{StatusCode: 429, Error: APIError{Code: 429, Message: "slow down"}})
	server := OutcomeError(&FailedResponse{StatusCode: 503, Error: APIError{Code: 503, Message: "unavailable"}})
	clientErr := OutcomeError(&FailedResponse{StatusCode: 400, Error: APIError{Code: 400, Message: "bad"}})
	transport := OutcomeError(&FailedRequest{Message: "timeout", Err: errors.New("i/o timeout")})

	if !IsRateLimit(rateLimited) {
		t.Error("IsRateLimit should match 429")
	}
	if !IsClientError(rateLimited) {
		t.Error("IsClientError should match 429")
	}
	if !IsServerError(server) || IsClientError(server) {
		t.Error("503 should be a server error only")
	}
	if !IsClientError(clientErr) || IsRateLimit(clientErr) {
		t.Error("400 should be a client error and not a rate limit")
	}
	if !IsTransportError(transport) || IsServerError(transport) {
		t.Error("transport failure should only match IsTransportError")
	}

	wrapped := fmt.Errorf("upsert chunk: %w", server)
	if !IsServerError(wrapped) {
		t.Error("predicates should see through wrapping")
	}
}

func TestErrorPredicates_SearchEveryJoinedError(t *testing.T) {
	server := OutcomeError(&FailedResponse{StatusCode: 503, Error: APIError{Code: 503, Message: "unavailable"}})
	rateLimited := OutcomeError(&FailedResponse{StatusCode: 429, Error: APIError{Code: 429, Message: "slow down"}})
	transport := OutcomeError(&FailedRequest{Message: "connection reset"})

	tests := []struct {
		name              string
		err               error
		expectRateLimit   bool
		expectServerError bool
		expectClientError bool
	}{
		{
			name:              "server error first",
			err:               errors.Join(server, rateLimited),
			expectRateLimit:   true,
			expectServerError: true,
			expectClientError: true,
		},
		{
			name:              "transport failure first",
			err:               errors.Join(transport, fmt.Errorf("chunk 3: %w", rateLimited)),
			expectRateLimit:   true,
			expectClientError: true,
		},
		{
			name:              "nested join",
			err:               fmt.Errorf("upsert: %w", errors.Join(transport, errors.Join(server))),
			expectServerError: true,
		},
		{
			name: "nil",
			err:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimit(tt.err); got != tt.expectRateLimit {
				t.Errorf("IsRateLimit() = %v, want %v", got, tt.expectRateLimit)
			}
			if got := IsServerError(tt.err); got != tt.expectServerError {
				t.Errorf("IsServerError() = %v, want %v", got, tt.expectServerError)
			}
			if got := IsClientError(tt.err); got != tt.expectClientError {
				t.Errorf("IsClientError() = %v, want %v", got, tt.expectClientError)
			}
		})
	}
}

func TestOutcomeError_Success(t *testing.T) {
	if err := OutcomeError(&Success{StatusCode: 200}); err != nil {
		t.Errorf("OutcomeError(Success) = %v, want nil", err)
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	wrappedErr := errors.New("connection refused")
	err := &TransportError{Message: "dial", Err: wrappedErr}

	if !errors.Is(err, wrappedErr) {
		t.Error("errors.Is should work with wrapped error")
	}
	if got, want := err.Error(), "transport failure: dial: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name            string
		status          int
		body            string
		expectedCode    int
		expectedMessage string
		expectedMissing int
		expectedDups    int
	}{
		{
			name:            "well formed error",
			status:          400,
			body:            `{"error": {"code": 400, "message": "Invalid filter"}}`,
			expectedCode:    400,
			expectedMessage: "Invalid filter",
		},
		{
			name:            "missing and duplicated",
			status:          422,
			body:            `{"error": {"code": 422, "message": "Not found", "missing": [{"space": "s", "externalId": "a"}], "duplicated": [{"space": "s", "externalId": "b"}, {"space": "s", "externalId": "c"}]}}`,
			expectedCode:    422,
			expectedMessage: "Not found",
			expectedMissing: 1,
			expectedDups:    2,
		},
		{
			name:            "not json",
			status:          502,
			body:            `<html>Bad Gateway</html>`,
			expectedCode:    502,
			expectedMessage: `<html>Bad Gateway</html>`,
		},
		{
			name:            "json without error object",
			status:          500,
			body:            `{"detail": "boom"}`,
			expectedCode:    500,
			expectedMessage: `{"detail": "boom"}`,
		},
		{
			name:            "error object without code",
			status:          409,
			body:            `{"error": {"message": "conflict"}}`,
			expectedCode:    409,
			expectedMessage: "conflict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := ParseAPIError(tt.status, []byte(tt.body))
			if apiErr.Code != tt.expectedCode {
				t.Errorf("Code = %d, want %d", apiErr.Code, tt.expectedCode)
			}
			if apiErr.Message != tt.expectedMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.expectedMessage)
			}
			if len(apiErr.Missing) != tt.expectedMissing {
				t.Errorf("len(Missing) = %d, want %d", len(apiErr.Missing), tt.expectedMissing)
			}
			if len(apiErr.Duplicated) != tt.expectedDups {
				t.Errorf("len(Duplicated) = %d, want %d", len(apiErr.Duplicated), tt.expectedDups)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: 400, Message: "bad request"}
	if got, want := err.Error(), "API error (status 400): bad request"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
