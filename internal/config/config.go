// Package config loads lotledger settings from the environment.
//
// Every value has a default suited to a single-host deployment next to the
// legacy files; command-line flags override what is loaded here.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/lotledger/internal/store"
)

// Timeouts used outside of lock acquisition.
const (
	// PublishTimeout bounds one notify publish.
	PublishTimeout = 5 * time.Second
	// ShutdownTimeout bounds the metrics server shutdown.
	ShutdownTimeout = 5 * time.Second
	// ReadHeaderTimeout is the metrics server's header read timeout.
	ReadHeaderTimeout = 5 * time.Second
)

// Lock backends.
const (
	LockFile  = "file"
	LockRedis = "redis"
)

// Config is the environment configuration.
type Config struct {
	EventsPath string `env:"LOTLEDGER_EVENTS" envDefault:"Eventos.csv"`
	LotsPath   string `env:"LOTLEDGER_LOTS" envDefault:"Parqueos.csv"`
	Backend    string `env:"LOTLEDGER_BACKEND" envDefault:"csv"`

	// LockPath defaults to the events path with ".lock" appended.
	LockPath       string        `env:"LOTLEDGER_LOCK_FILE"`
	LockTimeout    time.Duration `env:"LOTLEDGER_LOCK_TIMEOUT" envDefault:"4s"`
	LockRetry      time.Duration `env:"LOTLEDGER_LOCK_RETRY" envDefault:"80ms"`
	LockStaleAfter time.Duration `env:"LOTLEDGER_LOCK_STALE_AFTER" envDefault:"0s"`
	LockBackend    string        `env:"LOTLEDGER_LOCK_BACKEND" envDefault:"file"`
	LockKey        string        `env:"LOTLEDGER_LOCK_KEY" envDefault:"lotledger:events"`
	RedisURL       string        `env:"LOTLEDGER_REDIS_URL"`

	AMQPURL   string `env:"LOTLEDGER_AMQP_URL"`
	AMQPQueue string `env:"LOTLEDGER_AMQP_QUEUE" envDefault:"lotledger.events"`

	SweepInterval time.Duration `env:"LOTLEDGER_SWEEP_INTERVAL" envDefault:"1m"`
	MetricsAddr   string        `env:"LOTLEDGER_METRICS_ADDR" envDefault:":9090"`

	Source     string `env:"LOTLEDGER_SOURCE" envDefault:"cli"`
	AppVersion string `env:"LOTLEDGER_APP_VERSION" envDefault:"v2"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env cannot check by type alone.
func (c Config) Validate() error {
	var errs []error
	if c.EventsPath == "" {
		errs = append(errs, errors.New("LOTLEDGER_EVENTS must not be empty"))
	}
	if _, err := store.ParseBackend(c.Backend); err != nil {
		errs = append(errs, fmt.Errorf("LOTLEDGER_BACKEND: %w", err))
	}
	switch c.LockBackend {
	case LockFile:
	case LockRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("LOTLEDGER_REDIS_URL is required when LOTLEDGER_LOCK_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("LOTLEDGER_LOCK_BACKEND: unknown lock backend %q", c.LockBackend))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("LOTLEDGER_LOCK_TIMEOUT must be positive"))
	}
	if c.LockRetry <= 0 {
		errs = append(errs, errors.New("LOTLEDGER_LOCK_RETRY must be positive"))
	}
	if c.LockStaleAfter < 0 {
		errs = append(errs, errors.New("LOTLEDGER_LOCK_STALE_AFTER must not be negative"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("LOTLEDGER_SWEEP_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// LockFilePath returns the lock file path for the file lock backend.
func (c Config) LockFilePath() string {
	if c.LockPath != "" {
		return c.LockPath
	}
	return c.EventsPath + ".lock"
}

// Defaults returns the configuration an empty environment yields.
func Defaults() Config {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		// The envDefault tags above are constants.
		panic(err)
	}
	return cfg
}
