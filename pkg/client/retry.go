package client

import (
	"math"
	"math/rand/v2"
	"time"
)

// FailureKind classifies a failed attempt for the retry policy.
type FailureKind int

const (
	// FailureTimeout is a transport call that exceeded its deadline.
	FailureTimeout FailureKind = iota

	// FailureConnection is a transport call that failed before a response arrived.
	FailureConnection

	// FailureRateLimited is an HTTP 429 response.
	FailureRateLimited

	// FailureRetryableStatus is a response whose status is in the retry set.
	FailureRetryableStatus

	// FailureNonRetryableStatus is a response whose status is not in the retry set.
	FailureNonRetryableStatus
)

// String returns the metric label for the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureConnection:
		return "connection"
	case FailureRateLimited:
		return "rate_limited"
	case FailureRetryableStatus:
		return "retryable_status"
	case FailureNonRetryableStatus:
		return "non_retryable_status"
	default:
		return "unknown"
	}
}

// Failure describes one failed attempt.
type Failure struct {
	Kind       FailureKind
	StatusCode int

	// RetryAfter is the server-provided delay; only meaningful if HasRetryAfter.
	RetryAfter    time.Duration
	HasRetryAfter bool
}

// Action is the retry policy verdict.
type Action int

const (
	// ActionStop finalizes the request.
	ActionStop Action = iota

	// ActionRetry sleeps for Decision.Backoff and tries again.
	ActionRetry
)

// Decision is the result of Policy.Decide.
type Decision struct {
	Action  Action
	Backoff time.Duration
}

// AttemptState tracks the failure counters of one logical request.
// It is owned by a single Execute call and never shared.
type AttemptState struct {
	Request *Request

	ConnectAttempts int
	ReadAttempts    int
	StatusAttempts  int
}

// Total returns the number of failed attempts recorded so far.
func (s *AttemptState) Total() int {
	return s.ConnectAttempts + s.ReadAttempts + s.StatusAttempts
}

// record increments the counter that belongs to the failure kind.
func (s *AttemptState) record(kind FailureKind) {
	switch kind {
	case FailureTimeout:
		s.ReadAttempts++
	case FailureConnection:
		s.ConnectAttempts++
	case FailureRateLimited, FailureRetryableStatus:
		s.StatusAttempts++
	}
}

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxConnectRetries caps connection failures.
	MaxConnectRetries int `yaml:"max_connect_retries"`

	// MaxReadRetries caps timeouts.
	MaxReadRetries int `yaml:"max_read_retries"`

	// MaxStatusRetries caps retryable HTTP statuses, including 429.
	MaxStatusRetries int `yaml:"max_status_retries"`

	// BaseBackoff is the base of the exponential backoff.
	BaseBackoff time.Duration `yaml:"base_backoff"`

	// MaxBackoff caps the computed backoff (not an explicit Retry-After).
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// RetryStatusCodes lists the statuses that may be retried.
	RetryStatusCodes []int `yaml:"retry_status_codes"`
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxConnectRetries: 10,
		MaxReadRetries:    10,
		MaxStatusRetries:  10,
		BaseBackoff:       500 * time.Millisecond,
		MaxBackoff:        60 * time.Second,
		RetryStatusCodes:  []int{408, 429, 502, 503, 504},
	}
}

// Policy decides whether a failed attempt is retried and for how long to wait.
// Policy performs no I/O and is safe for concurrent use.
type Policy struct {
	config    RetryConfig
	retryable map[int]struct{}
	random    func() float64
}

// NewPolicy creates a policy from the configuration.
func NewPolicy(cfg RetryConfig) *Policy {
	retryable := make(map[int]struct{}, len(cfg.RetryStatusCodes))
	for _, code := range cfg.RetryStatusCodes {
		retryable[code] = struct{}{}
	}
	return &Policy{
		config:    cfg,
		retryable: retryable,
		random:    rand.Float64,
	}
}

// IsRetryableStatus reports whether the status code is in the retry set.
func (p *Policy) IsRetryableStatus(code int) bool {
	_, ok := p.retryable[code]
	return ok
}

// Classify turns a response status into a failure description.
func (p *Policy) Classify(statusCode int, retryAfter time.Duration, hasRetryAfter bool) Failure {
	f := Failure{StatusCode: statusCode}
	switch {
	case !p.IsRetryableStatus(statusCode):
		f.Kind = FailureNonRetryableStatus
	case statusCode == 429:
		f.Kind = FailureRateLimited
		f.RetryAfter = retryAfter
		f.HasRetryAfter = hasRetryAfter
	default:
		f.Kind = FailureRetryableStatus
	}
	return f
}

// Decide returns the verdict for a failure. The failure must already be
// recorded in st, so the relevant counter includes the current attempt.
func (p *Policy) Decide(f Failure, st *AttemptState) Decision {
	var used, limit int
	switch f.Kind {
	case FailureTimeout:
		used, limit = st.ReadAttempts, p.config.MaxReadRetries
	case FailureConnection:
		used, limit = st.ConnectAttempts, p.config.MaxConnectRetries
	case FailureRateLimited, FailureRetryableStatus:
		used, limit = st.StatusAttempts, p.config.MaxStatusRetries
	default:
		return Decision{Action: ActionStop}
	}

	if used >= limit {
		return Decision{Action: ActionStop}
	}

	if f.Kind == FailureRateLimited && f.HasRetryAfter {
		return Decision{Action: ActionRetry, Backoff: f.RetryAfter}
	}

	return Decision{Action: ActionRetry, Backoff: p.backoff(st.Total() - 1)}
}

// backoff computes min(base * 2^n, cap) * random(0,1).
func (p *Policy) backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	ceiling := float64(p.config.MaxBackoff)
	d := float64(p.config.BaseBackoff) * math.Pow(2, float64(n))
	if d > ceiling || math.IsInf(d, 1) {
		d = ceiling
	}
	return time.Duration(d * p.random())
}
