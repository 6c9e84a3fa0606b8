package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTransport_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("X-Test"); got != "value" {
			t.Errorf("X-Test = %q, want value", got)
		}
		w.Header().Set("X-Echo", "1")
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	}))
	defer server.Close()

	transport := NewHTTPTransport(nil)
	resp, err := transport.Send(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    server.URL,
		Header: http.Header{"X-Test": []string{"value"}},
		Body:   []byte(`{"hello": "world"}`),
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
	if string(resp.Body) != `{"hello": "world"}` {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.Header.Get("X-Echo") != "1" {
		t.Error("response headers not propagated")
	}
}

func TestHTTPTransport_TimeoutClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewHTTPTransport(nil).Send(ctx, &Request{Method: http.MethodGet, URL: server.URL, Header: http.Header{}})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if kind := classifyTransportError(err); kind != FailureTimeout {
		t.Errorf("classifyTransportError() = %v, want FailureTimeout", kind)
	}
}

func TestHTTPTransport_ConnectionClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPTransport(nil).Send(context.Background(), &Request{Method: http.MethodGet, URL: url, Header: http.Header{}})
	if err == nil {
		t.Fatal("expected a connection error")
	}
	if kind := classifyTransportError(err); kind != FailureConnection {
		t.Errorf("classifyTransportError() = %v, want FailureConnection", kind)
	}
}

func TestStaticToken_Authorize(t *testing.T) {
	req := &Request{Header: http.Header{}}
	if err := StaticToken("abc").Authorize(context.Background(), req); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer abc" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer abc")
	}
}

func TestHTTPTransport_InvalidRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := server.URL
	server.Close()

	tests := []struct {
		name          string
		req           *Request
		expectInvalid bool
	}{
		{name: "bad method", req: &Request{Method: "BAD METHOD", URL: "http://localhost/"}, expectInvalid: true},
		{name: "bad url", req: &Request{Method: http.MethodGet, URL: "http://x\x7f/"}, expectInvalid: true},
		{name: "connection refused", req: &Request{Method: http.MethodGet, URL: closedURL}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHTTPTransport(nil).Send(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Send() error = nil")
			}
			if got := errors.Is(err, ErrInvalidRequest); got != tt.expectInvalid {
				t.Errorf("errors.Is(err, ErrInvalidRequest) = %v, want %v (err = %v)", got, tt.expectInvalid, err)
			}
		})
	}
}
