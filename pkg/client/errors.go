package client

import (
	"errors"
)

// Common errors returned by the client.
var (
	// ErrMissingBaseURL is returned by New when no base URL is configured.
	ErrMissingBaseURL = errors.New("base url is required")

	// ErrMissingProject is returned by New when no project is configured.
	ErrMissingProject = errors.New("project is required")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents failures without any response.
	ErrorClassNetwork ErrorClass = "network"
)

// ClassifyStatus maps an HTTP status code to an error class.
// It returns "" for statuses outside 400-599.
func ClassifyStatus(code int) ErrorClass {
	switch {
	case code == 429:
		return ErrorClassRateLimit
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500 && code < 600:
		return ErrorClassServer
	default:
		return ""
	}
}

// ClassifyOutcome returns the error class of a failed outcome, or "" on success.
func ClassifyOutcome(o Outcome) ErrorClass {
	switch v := o.(type) {
	case *FailedResponse:
		return ClassifyStatus(v.StatusCode)
	case *FailedRequest:
		return ErrorClassNetwork
	default:
		return ""
	}
}

// IsRateLimit reports whether err holds an API error with status 429.
// Joined and batch errors are searched in full.
func IsRateLimit(err error) bool {
	return hasAPIError(err, func(e *APIError) bool { return e.Class() == ErrorClassRateLimit })
}

// IsServerError reports whether err holds an API error with a 5xx status.
func IsServerError(err error) bool {
	return hasAPIError(err, func(e *APIError) bool { return e.Class() == ErrorClassServer })
}

// IsClientError reports whether err holds an API error with a 4xx status.
// 429 counts as a client error as well.
func IsClientError(err error) bool {
	return hasAPIError(err, func(e *APIError) bool { return e.Code >= 400 && e.Code < 500 })
}

// hasAPIError walks the whole error tree, unlike errors.As which stops at
// the first *APIError.
func hasAPIError(err error, match func(*APIError) bool) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := err.(*APIError); ok && match(apiErr) {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return hasAPIError(u.Unwrap(), match)
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if hasAPIError(inner, match) {
				return true
			}
		}
	}
	return false
}

// IsTransportError reports whether err carries no HTTP status at all.
func IsTransportError(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}
