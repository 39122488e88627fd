package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dataproduct/journeys"
	"github.com/dataproduct/journeys/internal/persistence"
	"github.com/dataproduct/journeys/pkg/journey"
)

const (
	defaultLogLevel            = "info"
	defaultLogFormat           = "json"
	defaultStoreBackend        = "memory"
	defaultPollInterval        = journey.DefaultPollInterval
	defaultMaxPolls            = 0
	defaultConsumerConcurrency = journey.DefaultConsumerConcurrency
	defaultRetryInterval       = journey.DefaultRetryInterval
	defaultExecutionTimeout    = 0
)

type Config struct {
	LogLevel            string
	LogFormat           string
	StoreBackend        string
	StoreDSN            string
	PollInterval        time.Duration
	MaxPolls            int
	ConsumerConcurrency int
	RetryInterval       time.Duration
	ExecutionTimeout    time.Duration
	Version             string
}

func LoadFromEnv() (Config, error) {
	pollInterval, err := parseEnvDuration("JOURNEYS_POLL_INTERVAL", defaultPollInterval)
	if err != nil {
		return Config{}, err
	}
	retryInterval, err := parseEnvDuration("JOURNEYS_RETRY_INTERVAL", defaultRetryInterval)
	if err != nil {
		return Config{}, err
	}
	timeout, err := parseEnvDurationAllowZero("JOURNEYS_EXECUTION_TIMEOUT", defaultExecutionTimeout)
	if err != nil {
		return Config{}, err
	}
	maxPolls, err := parseEnvInt("JOURNEYS_MAX_POLLS", defaultMaxPolls)
	if err != nil {
		return Config{}, err
	}
	concurrency, err := parseEnvInt("JOURNEYS_CONSUMER_CONCURRENCY", defaultConsumerConcurrency)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:            getEnv("JOURNEYS_LOG_LEVEL", defaultLogLevel),
		LogFormat:           getEnv("JOURNEYS_LOG_FORMAT", defaultLogFormat),
		StoreBackend:        getEnv("JOURNEYS_STORE_BACKEND", defaultStoreBackend),
		StoreDSN:            getEnv("JOURNEYS_STORE_DSN", ""),
		PollInterval:        pollInterval,
		MaxPolls:            maxPolls,
		ConsumerConcurrency: concurrency,
		RetryInterval:       retryInterval,
		ExecutionTimeout:    timeout,
		Version:             getEnv("JOURNEYS_VERSION", ""),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	b, err := persistence.ParseBackend(c.StoreBackend)
	if err != nil {
		return err
	}
	if b != persistence.BackendMemory && c.StoreDSN == "" {
		return fmt.Errorf("store dsn cannot be empty for backend %q", b)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.RetryInterval <= 0 {
		return errors.New("retry interval must be positive")
	}
	if c.MaxPolls < 0 {
		return errors.New("max polls must be >= 0")
	}
	if c.ConsumerConcurrency < 1 {
		return errors.New("consumer concurrency must be >= 1")
	}
	if c.ExecutionTimeout < 0 {
		return errors.New("execution timeout must be >= 0")
	}
	return nil
}

// JourneyOptions returns the build options for the built-in journeys.
func (c Config) JourneyOptions() journey.Options {
	return journey.Options{
		PollInterval:        c.PollInterval,
		MaxPolls:            c.MaxPolls,
		ConsumerConcurrency: c.ConsumerConcurrency,
		RetryInterval:       c.RetryInterval,
		Version:             c.Version,
	}
}

// EngineConfig returns the store and limits for journeys.OpenEngine.
func (c Config) EngineConfig(obs journeys.Observer) journeys.EngineConfig {
	return journeys.EngineConfig{
		Backend:  c.StoreBackend,
		DSN:      c.StoreDSN,
		Observer: obs,
		Timeout:  c.ExecutionTimeout,
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// Durations are Go duration strings ("30s", "2m"). A bare integer is read
// as seconds.
func parseDuration(key, v string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func parseEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := parseDuration(key, v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return d, nil
}

func parseEnvDurationAllowZero(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := parseDuration(key, v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be >= 0", key)
	}
	return d, nil
}

func parseEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return out, nil
}
