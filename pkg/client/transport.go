package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request describes a single logical API request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Endpoint is a low-cardinality label for metrics and logs (e.g. "instances/list").
	Endpoint string
}

// Response is a fully read transport response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ErrInvalidRequest marks a request that could not be built at all, such as
// a malformed method or URL. The executor never retries it.
var ErrInvalidRequest = errors.New("invalid request")

// Transport sends one request and returns the response.
// Implementations return an error only when no response was received, and
// wrap ErrInvalidRequest when the request could not be sent in any form.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Authenticator decorates a request with credentials before each attempt.
type Authenticator interface {
	Authorize(ctx context.Context, req *Request) error
}

// StaticToken authorizes requests with a fixed bearer token.
type StaticToken string

// Authorize implements Authenticator.
func (t StaticToken) Authorize(_ context.Context, req *Request) error {
	if t == "" {
		return fmt.Errorf("static token is empty")
	}
	req.Header.Set("Authorization", "Bearer "+string(t))
	return nil
}

// HTTPTransport sends requests with a net/http client.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport creates a transport backed by the given client.
// A nil client falls back to a client without its own timeout; the executor
// bounds every call with a context deadline instead.
func NewHTTPTransport(c *http.Client) *HTTPTransport {
	if c == nil {
		c = &http.Client{}
	}
	return &HTTPTransport{Client: c}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Clock abstracts sleeping so tests can observe backoff without waiting.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
