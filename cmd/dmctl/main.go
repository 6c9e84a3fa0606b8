// Package main provides the dmctl CLI for the data modeling instances API.
//
// Usage:
//
//	dmctl [--config dmctl.yaml] <command> [options]
//
// Commands:
//   - list:   list instances as JSON lines
//   - upsert: write instances from a JSON file
//   - delete: delete instances by external id
//   - serve:  serve /metrics and /health until interrupted
//
// Exit codes:
//   - 0: success
//   - 1: usage or configuration error, or the call failed completely
//   - 2: the call partially failed
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/cognitedata/pygen-sub000/internal/config"
	"github.com/cognitedata/pygen-sub000/pkg/client"
	"github.com/cognitedata/pygen-sub000/pkg/instances"
	"github.com/cognitedata/pygen-sub000/pkg/logging"
	"github.com/cognitedata/pygen-sub000/pkg/metrics"
	"github.com/cognitedata/pygen-sub000/pkg/ratelimit"
)

const version = "0.1.0"

// Exit codes.
const (
	exitFailure        = 1
	exitPartialFailure = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(os.Stderr)
	if err := app.RunContext(ctx, os.Args); err != nil {
		os.Exit(exitFailure)
	}
}

// env holds everything a command needs. It is built in the app's Before hook.
type env struct {
	config *config.Config
	api    *instances.API
	logger zerolog.Logger

	redis         *redis.Client
	metricsServer *http.Server
}

func (e *env) close(ctx context.Context) {
	if e.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := e.metricsServer.Shutdown(shutdownCtx); err != nil {
			e.logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	if e.redis != nil {
		e.redis.Close()
	}
}

func newApp(logOutput io.Writer) *cli.App {
	var e env

	return &cli.App{
		Name:    "dmctl",
		Usage:   "Batch and paginate data modeling instances",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				Value:   "dmctl.yaml",
				EnvVars: []string{"DMCTL_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Optional .env file loaded before the config is expanded",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level: debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve /metrics on this address while the command runs",
			},
		},
		Before: func(c *cli.Context) error {
			return e.setup(c, logOutput)
		},
		After: func(c *cli.Context) error {
			e.close(c.Context)
			return nil
		},
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			listCommand(&e),
			upsertCommand(&e),
			deleteCommand(&e),
			serveCommand(&e),
		},
	}
}

func (e *env) setup(c *cli.Context, logOutput io.Writer) error {
	if err := godotenv.Load(c.String("env-file")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cli.Exit(fmt.Sprintf("load env file: %v", err), exitFailure)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = logging.LogLevel(level)
	}
	if addr := c.String("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), exitFailure)
	}
	e.config = cfg

	logCfg := cfg.Logging
	logCfg.Output = logOutput
	logCfg.Project = cfg.Client.Project
	logging.Setup(logCfg)
	e.logger = logging.NewLogger("dmctl")

	clientLogger := logging.NewLogger("dm-client")
	cfg.Client.Logger = &clientLogger
	if cfg.Token != "" {
		cfg.Client.Auth = client.StaticToken(cfg.Token)
	}

	if cfg.Redis.Addr != "" {
		e.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := e.redis.Ping(c.Context).Err(); err != nil {
			return cli.Exit(fmt.Sprintf("connect to redis at %s: %v", cfg.Redis.Addr, err), exitFailure)
		}
		cfg.Client.Cooldown = ratelimit.NewTracker(e.redis, cfg.Redis.Scope, logging.NewLogger("ratelimit"))
		e.logger.Debug().Str("addr", cfg.Redis.Addr).Msg("Shared cooldown enabled")
	}

	dm, err := client.New(cfg.Client)
	if err != nil {
		return cli.Exit(fmt.Sprintf("create client: %v", err), exitFailure)
	}
	e.api = instances.NewAPI(dm)

	if cfg.Metrics.Addr != "" {
		e.metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           newMetricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := e.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("Metrics server failed")
			}
		}()
		e.logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Serving metrics")
	}

	return nil
}

func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// exitErrHandler prints the error and exits with the code carried by cli.Exit.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}

	code := exitFailure
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code = exitCoder.ExitCode()
	}
	if msg := err.Error(); msg != "" && msg != fmt.Sprintf("exit status %d", code) {
		fmt.Fprintf(c.App.ErrWriter, "Error: %s\n", msg)
	}
	os.Exit(code)
}
