package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognitedata/pygen-sub000/pkg/client"
	"github.com/cognitedata/pygen-sub000/pkg/logging"
)

// Config is the dmctl configuration file.
//
//	client:
//	  base_url: https://api.example.com
//	  project: my-project
//	  max_workers: 8
//	  retry:
//	    max_status_retries: 5
//	    max_backoff: 30s
//	token: ${DM_TOKEN:?set DM_TOKEN to an API token}
//	redis:
//	  addr: localhost:6379
//	logging:
//	  level: debug
//	metrics:
//	  addr: :9090
type Config struct {
	Client  client.Config  `yaml:"client"`
	Token   string         `yaml:"token"`
	Redis   RedisConfig    `yaml:"redis"`
	Logging logging.Config `yaml:"logging"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

// RedisConfig enables the shared Retry-After cooldown when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Scope defaults to the project.
	Scope string `yaml:"scope"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	return Config{
		Client:  client.DefaultConfig("", ""),
		Logging: logging.DefaultConfig(),
	}
}

// Load reads a YAML config file, expands environment variables, and decodes
// it over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded, err := ExpandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return Parse([]byte(expanded))
}

// Parse decodes YAML over Default. No environment expansion is done.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if cfg.Redis.Scope == "" {
		cfg.Redis.Scope = cfg.Client.Project
	}
	return &cfg, nil
}

// Validate checks the values the client cannot check itself.
func (c *Config) Validate() error {
	var errs []error
	if c.Client.BaseURL == "" {
		errs = append(errs, client.ErrMissingBaseURL)
	}
	if c.Client.Project == "" {
		errs = append(errs, client.ErrMissingProject)
	}
	if c.Logging.Level != "" && !c.Logging.Level.Valid() {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis db must be >= 0 (got %d)", c.Redis.DB))
	}
	return errors.Join(errs...)
}
