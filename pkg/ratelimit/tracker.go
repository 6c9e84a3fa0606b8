package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for cooldown tracking.
var (
	dmCooldownsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_rate_limit_cooldowns_recorded_total",
		Help: "Total number of Retry-After cooldowns recorded in the shared store",
	})

	dmCooldownWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_rate_limit_cooldown_waits_total",
		Help: "Total number of requests delayed by an active shared cooldown",
	})

	dmCooldownRemainingSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dm_rate_limit_cooldown_remaining_seconds",
		Help: "Remaining seconds of the last observed shared cooldown",
	})
)

// recordCooldown extends the stored deadline only if the new one ends later,
// in a single round trip so concurrent recorders cannot shorten a cooldown.
// KEYS: cooldown until, last update. ARGV: deadline ms, ttl ms, now ms.
var recordCooldown = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local deadline = tonumber(ARGV[1])
if deadline <= current then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SET', KEYS[2], ARGV[3])
return 1
`)

// Tracker stores and reads shared cooldowns in Redis.
type Tracker struct {
	redis  *redis.Client
	scope  string
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new cooldown tracker for a scope.
func NewTracker(redisClient *redis.Client, scope string, logger zerolog.Logger) *Tracker {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Tracker{
		redis:  redisClient,
		scope:  scope,
		logger: logger.With().Str("scope", scope).Logger(),
		now:    time.Now,
	}
}

func (t *Tracker) untilKey() string {
	return RedisKeyCooldownUntil + t.scope
}

func (t *Tracker) lastUpdateKey() string {
	return RedisKeyLastUpdate + t.scope
}

// GetState retrieves the current cooldown state from Redis.
// Returns an empty state if no cooldown is stored.
func (t *Tracker) GetState(ctx context.Context) (*CooldownState, error) {
	state := &CooldownState{Scope: t.scope}

	untilMs, err := t.redis.Get(ctx, t.untilKey()).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get cooldown until: %w", err)
	}
	if err == nil {
		state.Until = time.UnixMilli(untilMs)
	}

	lastMs, err := t.redis.Get(ctx, t.lastUpdateKey()).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}
	if err == nil {
		state.LastUpdate = time.UnixMilli(lastMs)
	}

	return state, nil
}

// Remaining returns how long callers must wait before the next request.
// State last recorded more than MaxCooldown ago is ignored, which also
// discards deadlines written by a host whose clock runs ahead.
func (t *Tracker) Remaining(ctx context.Context) (time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return 0, err
	}

	now := t.now()
	if state.IsStale(now, MaxCooldown) {
		if state.Active(now) {
			t.logger.Warn().
				Time("until", state.Until).
				Time("last_update", state.LastUpdate).
				Msg("Ignoring stale shared cooldown")
		}
		dmCooldownRemainingSeconds.Set(0)
		return 0, nil
	}

	remaining := state.Remaining(now)
	dmCooldownRemainingSeconds.Set(remaining.Seconds())
	if remaining > 0 {
		dmCooldownWaitsTotal.Inc()
		t.logger.Debug().
			Dur("remaining", remaining).
			Msg("Shared cooldown active")
	}
	return remaining, nil
}

// RecordRetryAfter stores a cooldown of d starting now. An existing cooldown
// that ends later is kept.
func (t *Tracker) RecordRetryAfter(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if d > MaxCooldown {
		d = MaxCooldown
	}

	now := t.now()
	until := now.Add(d)
	ttl := max(d.Milliseconds(), 1)

	keys := []string{t.untilKey(), t.lastUpdateKey()}
	stored, err := recordCooldown.Run(ctx, t.redis, keys, until.UnixMilli(), ttl, now.UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("store cooldown in redis: %w", err)
	}
	if stored == 0 {
		return nil
	}

	dmCooldownsRecordedTotal.Inc()
	dmCooldownRemainingSeconds.Set(d.Seconds())

	t.logger.Warn().
		Dur("cooldown", d).
		Time("until", until).
		Msg("Shared cooldown recorded")

	return nil
}

// Reset removes any stored cooldown.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.redis.Del(ctx, t.untilKey(), t.lastUpdateKey()).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	dmCooldownRemainingSeconds.Set(0)
	return nil
}
