package client

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Outcome is the terminal result of one logical request: *Success,
// *FailedResponse or *FailedRequest.
type Outcome interface {
	isOutcome()
}

// Success is a 2xx response.
type Success struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// FailedResponse is a response with a permanent failure status, either
// non-retryable or with retries exhausted.
type FailedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Error      APIError
}

// FailedRequest means no response was ever received.
type FailedRequest struct {
	Message string
	Err     error
}

func (*Success) isOutcome()        {}
func (*FailedResponse) isOutcome() {}
func (*FailedRequest) isOutcome()  {}

// APIError is the error object returned by the API:
//
//	{"error": {"code": 400, "message": "...", "missing": [...], "duplicated": [...]}}
type APIError struct {
	Code       int               `json:"code"`
	Message    string            `json:"message"`
	Missing    []json.RawMessage `json:"missing,omitempty"`
	Duplicated []json.RawMessage `json:"duplicated,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error (status %d): %s", e.Code, e.Message)
	if len(e.Missing) > 0 {
		msg += fmt.Sprintf(" (%d missing)", len(e.Missing))
	}
	if len(e.Duplicated) > 0 {
		msg += fmt.Sprintf(" (%d duplicated)", len(e.Duplicated))
	}
	return msg
}

// Class returns the error class for the status code.
func (e *APIError) Class() ErrorClass {
	return ClassifyStatus(e.Code)
}

// ParseAPIError decodes an error body. Bodies that are not of the expected
// shape are synthesized as {code: statusCode, message: rawBody}.
func ParseAPIError(statusCode int, body []byte) APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return APIError{Code: statusCode, Message: string(body)}
	}
	if envelope.Error.Code == 0 {
		envelope.Error.Code = statusCode
	}
	return *envelope.Error
}

// TransportError is the error form of a FailedRequest.
type TransportError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport failure: %s: %v", e.Message, e.Err)
	}
	return "transport failure: " + e.Message
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// OutcomeError converts a failed outcome into an error. It returns nil for *Success.
func OutcomeError(o Outcome) error {
	switch v := o.(type) {
	case *Success:
		return nil
	case *FailedResponse:
		apiErr := v.Error
		return &apiErr
	case *FailedRequest:
		return &TransportError{Message: v.Message, Err: v.Err}
	default:
		return fmt.Errorf("unknown outcome %T", o)
	}
}
