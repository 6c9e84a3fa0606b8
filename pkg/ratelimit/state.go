// Package ratelimit shares server-imposed cooldowns between clients.
// When the API answers 429 with a Retry-After header, the cooldown is stored in
// Redis so that every client talking to the same project holds off until it ends.
package ratelimit

import (
	"time"
)

// Redis key prefixes for cooldown state storage. The scope (usually the
// project name) is appended.
const (
	RedisKeyCooldownUntil = "dm:rate_limit:cooldown_until:"
	RedisKeyLastUpdate    = "dm:rate_limit:last_update:"
)

// MaxCooldown caps a single recorded cooldown. Longer Retry-After values are
// still honored by the request that received them.
const MaxCooldown = 5 * time.Minute

// CooldownState represents the current shared cooldown for a scope.
type CooldownState struct {
	// Scope identifies the rate-limited resource, e.g. the project.
	Scope string `json:"scope"`

	// Until is when the cooldown ends. Zero means no cooldown.
	Until time.Time `json:"until"`

	// LastUpdate is when a cooldown was last recorded.
	LastUpdate time.Time `json:"last_update"`
}

// Active reports whether the cooldown is still running at now.
func (s *CooldownState) Active(now time.Time) bool {
	return now.Before(s.Until)
}

// Remaining returns how long is left at now, or 0.
func (s *CooldownState) Remaining(now time.Time) time.Duration {
	d := s.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsStale reports whether the state was last recorded more than maxAge
// before now. A state that was never recorded is stale.
func (s *CooldownState) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}
