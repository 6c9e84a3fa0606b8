// Package logging sets up the zerolog logger shared by the client, the batch
// runner and dmctl.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a minimum severity as written in dmctl.yaml.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var levels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// Valid reports whether l names a known level. Matching is case-insensitive.
func (l LogLevel) Valid() bool {
	_, ok := levels[l.normalize()]
	return ok
}

// Zerolog returns the zerolog level for l. Unknown names map to info.
func (l LogLevel) Zerolog() zerolog.Level {
	if level, ok := levels[l.normalize()]; ok {
		return level
	}
	return zerolog.InfoLevel
}

func (l LogLevel) normalize() LogLevel {
	return LogLevel(strings.ToLower(strings.TrimSpace(string(l))))
}

// Config holds logger configuration.
type Config struct {
	Level LogLevel `yaml:"level"`

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool `yaml:"pretty"`

	// Project is attached to every entry when set.
	Project string `yaml:"-"`

	// Output defaults to os.Stderr.
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns JSON logging at info level.
func DefaultConfig() Config {
	return Config{Level: LevelInfo}
}

// Setup installs the global logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.Zerolog())

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Project != "" {
		ctx = ctx.Str("project", cfg.Project)
	}
	log.Logger = ctx.Logger()

	return log.Logger
}

// NewLogger derives a component logger from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level guidelines
//
// Debug: chunk dispatch and completion, page fetches, shared cooldown checks.
// Info: finished dmctl commands, requests that succeeded after a retry,
// metrics server start and stop.
// Warn: retry attempts, recorded Retry-After cooldowns, batch calls that
// partially failed.
// Error: requests that exhausted their retries, authorization failures.
//
// Fields
//
//	project       project every request is scoped to
//	component     dm-client, batch, pagination, ratelimit, dmctl
//	endpoint      API path relative to the project
//	request_id    X-Request-Id sent with the request
//	status_code   HTTP status of the final response
//	attempt       attempt number within one logical request
//	failure_kind  timeout, connection, rate_limited, retryable_status, non_retryable_status
//	backoff       sleep before the next attempt
//	error_class   client, server, rate_limit, network
//	chunk         chunk index within a batch call
