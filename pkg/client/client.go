// Package client provides the request executor for the data modeling API:
// one logical request in, one Outcome out, with classified retries and backoff.
package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for request execution.
var (
	dmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_requests_total",
		Help: "Total API attempts by endpoint and status",
	}, []string{"endpoint", "status"})

	dmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dm_request_duration_seconds",
		Help:    "Duration of a logical request including retries, by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})

	dmErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_errors_total",
		Help: "Total failed attempts by error class",
	}, []string{"class"})

	dmRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_retries_total",
		Help: "Total number of retry attempts by failure kind",
	}, []string{"failure_kind"})

	dmRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dm_retry_backoff_seconds",
		Help:    "Backoff duration for retries by failure kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"failure_kind"})

	dmRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_retry_exhausted_total",
		Help: "Total number of requests that ran out of retries by failure kind",
	}, []string{"failure_kind"})
)

// MaxRetryAfter bounds a server-supplied Retry-After.
const MaxRetryAfter = time.Hour

// CooldownGate coordinates server-imposed cooldowns between clients.
// It is satisfied by *ratelimit.Tracker.
type CooldownGate interface {
	Remaining(ctx context.Context) (time.Duration, error)
	RecordRetryAfter(ctx context.Context, d time.Duration) error
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API cluster, e.g. "https://api.cognitedata.com".
	BaseURL string `yaml:"base_url"`

	// Project is the project every request is scoped to.
	Project string `yaml:"project"`

	// UserAgent header sent with every request.
	UserAgent string `yaml:"user_agent"`

	// Timeout bounds each individual transport call.
	Timeout time.Duration `yaml:"timeout"`

	// MaxWorkers is the number of concurrent chunk requests per batch call.
	MaxWorkers int `yaml:"max_workers"`

	// Retry configures the retry policy.
	Retry RetryConfig `yaml:"retry"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers"`

	// Transport sends requests (default: HTTPTransport over http.Client).
	Transport Transport `yaml:"-"`

	// Auth decorates requests with credentials (optional).
	Auth Authenticator `yaml:"-"`

	// Cooldown shares Retry-After cooldowns between clients (optional).
	Cooldown CooldownGate `yaml:"-"`

	// Clock is used for backoff sleeps (default: real time).
	Clock Clock `yaml:"-"`

	// Logger overrides the component logger.
	Logger *zerolog.Logger `yaml:"-"`
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, project string) Config {
	return Config{
		BaseURL:    baseURL,
		Project:    project,
		UserAgent:  "dm-client-go/0.1.0",
		Timeout:    30 * time.Second,
		MaxWorkers: 5,
		Retry:      DefaultRetryConfig(),
	}
}

// Client executes API requests.
type Client struct {
	transport Transport
	policy    *Policy
	clock     Clock
	config    Config
	logger    zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.Project == "" {
		return nil, ErrMissingProject
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.MaxWorkers <= 0 {
		return nil, fmt.Errorf("max_workers must be > 0 (got %d)", cfg.MaxWorkers)
	}
	if cfg.Retry.BaseBackoff <= 0 || cfg.Retry.MaxBackoff <= 0 {
		return nil, fmt.Errorf("retry backoff must be > 0")
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	logger := log.With().Str("component", "dm-client").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	transport := cfg.Transport
	if transport == nil {
		transport = NewHTTPTransport(nil)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	return &Client{
		transport: transport,
		policy:    NewPolicy(cfg.Retry),
		clock:     clock,
		config:    cfg,
		logger:    logger,
	}, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// Logger returns the client logger.
func (c *Client) Logger() zerolog.Logger {
	return c.logger
}

// URL builds a project-scoped URL, e.g. URL("models/instances/list").
func (c *Client) URL(path string) string {
	return fmt.Sprintf("%s/api/v1/projects/%s/%s", c.config.BaseURL, c.config.Project, strings.TrimLeft(path, "/"))
}

// NewRequest builds a request for a project-scoped path.
func (c *Client) NewRequest(method, path string, body []byte) *Request {
	return &Request{
		Method:   method,
		URL:      c.URL(path),
		Header:   http.Header{},
		Body:     body,
		Endpoint: strings.TrimLeft(path, "/"),
	}
}

// Execute runs one logical request to completion. Ordinary failures are
// returned as *FailedResponse or *FailedRequest, never as a Go error.
func (c *Client) Execute(ctx context.Context, req *Request) Outcome {
	if req == nil || req.URL == "" {
		panic("client: Execute called with an empty request")
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = req.Method
	}

	startTime := time.Now()
	defer func() {
		dmRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.prepareHeaders(req)
	state := &AttemptState{Request: req}
	logger := c.logger.With().
		Str("endpoint", endpoint).
		Str("request_id", req.Header.Get("X-Request-Id")).
		Logger()

	for {
		if err := c.waitCooldown(ctx, logger); err != nil {
			logger.Warn().Err(err).Msg("Context cancelled during shared cooldown")
			return &FailedRequest{Message: "context cancelled during shared cooldown", Err: err}
		}

		if c.config.Auth != nil {
			if err := c.config.Auth.Authorize(ctx, req); err != nil {
				logger.Error().Err(err).Msg("Authorization failed")
				return &FailedRequest{Message: "authorize request", Err: err}
			}
		}

		logger.Debug().
			Str("method", req.Method).
			Int("attempt", state.Total()+1).
			Msg("Executing request")

		resp, err := c.send(ctx, req)

		var failure Failure
		if errors.Is(err, ErrInvalidRequest) {
			dmRequestsTotal.WithLabelValues(endpoint, "invalid_request").Inc()
			logger.Error().Err(err).Msg("Request cannot be sent")
			return &FailedRequest{Message: err.Error(), Err: err}
		}
		if err != nil {
			failure = Failure{Kind: classifyTransportError(err)}
			dmErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			dmRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			logger.Warn().Err(err).Str("failure_kind", failure.Kind.String()).Msg("Transport call failed")
		} else {
			dmRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				if state.Total() > 0 {
					logger.Info().Int("attempt", state.Total()+1).Msg("Request succeeded after retry")
				}
				return &Success{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}
			}

			retryAfter, hasRetryAfter := parseRetryAfter(resp.Header)
			failure = c.policy.Classify(resp.StatusCode, retryAfter, hasRetryAfter)
			class := ClassifyStatus(resp.StatusCode)
			dmErrorsTotal.WithLabelValues(string(class)).Inc()
			logger.Warn().
				Int("status_code", resp.StatusCode).
				Str("error_class", string(class)).
				Msg("API request error")

			if failure.Kind == FailureRateLimited && failure.HasRetryAfter && c.config.Cooldown != nil {
				if err := c.config.Cooldown.RecordRetryAfter(ctx, failure.RetryAfter); err != nil {
					logger.Warn().Err(err).Msg("Failed to record shared cooldown")
				}
			}
		}

		state.record(failure.Kind)
		decision := c.policy.Decide(failure, state)
		if decision.Action == ActionStop {
			return c.finalize(logger, failure, state, resp, err)
		}

		dmRetriesTotal.WithLabelValues(failure.Kind.String()).Inc()
		dmRetryBackoffSeconds.WithLabelValues(failure.Kind.String()).Observe(decision.Backoff.Seconds())
		logger.Debug().
			Str("failure_kind", failure.Kind.String()).
			Int("attempt", state.Total()).
			Dur("backoff", decision.Backoff).
			Msg("Retrying request after backoff")

		if err := c.clock.Sleep(ctx, decision.Backoff); err != nil {
			logger.Warn().Err(err).Msg("Context cancelled during retry backoff")
			return &FailedRequest{Message: "context cancelled during retry backoff", Err: err}
		}
	}
}

// send performs one transport call bounded by the configured timeout.
func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	return c.transport.Send(callCtx, req)
}

// finalize turns the last failure into a terminal outcome.
func (c *Client) finalize(logger zerolog.Logger, f Failure, state *AttemptState, resp *Response, sendErr error) Outcome {
	exhausted := f.Kind != FailureNonRetryableStatus
	if exhausted {
		dmRetryExhaustedTotal.WithLabelValues(f.Kind.String()).Inc()
		logger.Error().
			Str("failure_kind", f.Kind.String()).
			Int("attempts", state.Total()).
			Msg("Retry attempts exhausted")
	}

	if resp == nil {
		msg := "request failed"
		if sendErr != nil {
			msg = sendErr.Error()
		}
		return &FailedRequest{Message: msg, Err: sendErr}
	}

	return &FailedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		Error:      ParseAPIError(resp.StatusCode, resp.Body),
	}
}

// waitCooldown blocks while a shared cooldown is active. Store errors are
// logged and ignored; only a cancelled context is returned.
func (c *Client) waitCooldown(ctx context.Context, logger zerolog.Logger) error {
	if c.config.Cooldown == nil {
		return nil
	}
	remaining, err := c.config.Cooldown.Remaining(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Cooldown check failed")
		return nil
	}
	if remaining <= 0 {
		return nil
	}
	logger.Info().Dur("wait", remaining).Msg("Waiting for shared cooldown")
	return c.clock.Sleep(ctx, remaining)
}

func (c *Client) prepareHeaders(req *Request) {
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	if req.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("X-Request-Id") == "" {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}
}

// classifyTransportError separates timeouts from connection failures.
func classifyTransportError(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureConnection
}

// parseRetryAfter reads a Retry-After header given in (possibly fractional)
// seconds. Values above MaxRetryAfter are clamped to it.
func parseRetryAfter(h http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(secs) || secs < 0 {
		return 0, false
	}
	if secs >= MaxRetryAfter.Seconds() {
		return MaxRetryAfter, true
	}
	return time.Duration(secs * float64(time.Second)), true
}
