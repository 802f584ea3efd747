package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/outpost-run/outpost-go/pkg/retry"
	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the API endpoint used when none is configured.
const DefaultBaseURL = "https://api.outpost.run"

var (
	// ErrNilConfig is returned when a nil config is passed to a function.
	ErrNilConfig = errors.New("nil config")

	// ErrInvalidBaseURL is returned when the base URL is not an absolute URL.
	ErrInvalidBaseURL = errors.New("invalid base url")
)

// TimeoutConfig holds the network timeouts, in seconds. Zero disables a
// timeout.
type TimeoutConfig struct {
	// Connect bounds dialing and the TLS handshake.
	Connect float64 `env:"CONNECT" yaml:"connect"`

	// Read bounds the wait for response headers once a request is written.
	Read float64 `env:"READ" yaml:"read"`

	// Write bounds sending the request.
	Write float64 `env:"WRITE" yaml:"write"`

	// Pool bounds how long a request waits for a free connection.
	Pool float64 `env:"POOL" yaml:"pool"`

	// Idle is how long an unused keep-alive connection is kept.
	Idle float64 `env:"IDLE" yaml:"idle"`
}

// RetryConfig is the retry policy applied to idempotent API calls.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int `env:"MAX_ATTEMPTS" yaml:"max_attempts"`

	// BackoffFactor is the base of the exponential backoff, in seconds.
	BackoffFactor float64 `env:"BACKOFF_FACTOR" yaml:"backoff_factor"`

	// JitterRatio is the symmetric jitter applied to the backoff.
	// Valid values are within [0, 0.5].
	JitterRatio float64 `env:"JITTER_RATIO" yaml:"jitter_ratio"`

	// MaxBackoffWait caps the computed wait, in seconds.
	MaxBackoffWait float64 `env:"MAX_BACKOFF_WAIT" yaml:"max_backoff_wait"`

	// ConnectionErrors retries network failures that happen before any
	// response is received.
	ConnectionErrors bool `env:"CONNECTION_ERRORS" yaml:"connection_errors"`
}

// LFSConfig is the Git LFS client configuration.
type LFSConfig struct {
	// URL is the LFS server. Defaults to the API base URL.
	URL string `env:"URL" yaml:"url"`

	// TransferAdapters is the ordered list of accepted transfer adapters.
	TransferAdapters []string `env:"TRANSFER_ADAPTERS" envSeparator:"," yaml:"transfer_adapters"`
}

// LogConfig is the logger configuration.
type LogConfig struct {
	// Format is the format of the logs.
	// Valid values are "json", "logfmt", and "text".
	Format string `env:"FORMAT" yaml:"format"`

	// Level is the minimum level logged.
	// Valid values are "debug", "info", "warn" and "error".
	Level string `env:"LEVEL" yaml:"level"`

	// Time format for the log `ts` field.
	// Format must be described in Golang's time format.
	TimeFormat string `env:"TIME_FORMAT" yaml:"time_format"`

	// Path to a file to write logs to.
	// If not set, logs will be written to stderr.
	Path string `env:"PATH" yaml:"path"`
}

// Config is the configuration for the Outpost client.
type Config struct {
	// APIToken is sent as a bearer token when not empty.
	APIToken string `env:"API_TOKEN" yaml:"api_token"`

	// BaseURL is the API endpoint.
	BaseURL string `env:"BASE_URL" yaml:"base_url"`

	// PollInterval is the delay between status checks, in seconds.
	PollInterval float64 `env:"POLL_INTERVAL" yaml:"poll_interval"`

	// Timeout is the network timeout configuration.
	Timeout TimeoutConfig `envPrefix:"TIMEOUT_" yaml:"timeout"`

	// Retry is the retry policy configuration.
	Retry RetryConfig `envPrefix:"RETRY_" yaml:"retry"`

	// LFS is the Git LFS configuration.
	LFS LFSConfig `envPrefix:"LFS_" yaml:"lfs"`

	// Log is the logger configuration.
	Log LogConfig `envPrefix:"LOG_" yaml:"log"`

	// Location is the path of the YAML configuration file.
	Location string `env:"CONFIG_LOCATION" yaml:"-"`
}

// Environ returns the config as a list of environment variables.
// The API token is never included.
func (c *Config) Environ() []string {
	if c == nil {
		return nil
	}

	return []string{
		fmt.Sprintf("OUTPOST_BASE_URL=%s", c.BaseURL),
		fmt.Sprintf("OUTPOST_POLL_INTERVAL=%v", c.PollInterval),
		fmt.Sprintf("OUTPOST_TIMEOUT_CONNECT=%v", c.Timeout.Connect),
		fmt.Sprintf("OUTPOST_TIMEOUT_READ=%v", c.Timeout.Read),
		fmt.Sprintf("OUTPOST_TIMEOUT_WRITE=%v", c.Timeout.Write),
		fmt.Sprintf("OUTPOST_TIMEOUT_POOL=%v", c.Timeout.Pool),
		fmt.Sprintf("OUTPOST_TIMEOUT_IDLE=%v", c.Timeout.Idle),
		fmt.Sprintf("OUTPOST_RETRY_MAX_ATTEMPTS=%d", c.Retry.MaxAttempts),
		fmt.Sprintf("OUTPOST_RETRY_BACKOFF_FACTOR=%v", c.Retry.BackoffFactor),
		fmt.Sprintf("OUTPOST_RETRY_JITTER_RATIO=%v", c.Retry.JitterRatio),
		fmt.Sprintf("OUTPOST_RETRY_MAX_BACKOFF_WAIT=%v", c.Retry.MaxBackoffWait),
		fmt.Sprintf("OUTPOST_RETRY_CONNECTION_ERRORS=%t", c.Retry.ConnectionErrors),
		fmt.Sprintf("OUTPOST_LFS_URL=%s", c.LFS.URL),
		fmt.Sprintf("OUTPOST_LFS_TRANSFER_ADAPTERS=%s", strings.Join(c.LFS.TransferAdapters, ",")),
		fmt.Sprintf("OUTPOST_LOG_FORMAT=%s", c.Log.Format),
		fmt.Sprintf("OUTPOST_LOG_LEVEL=%s", c.Log.Level),
		fmt.Sprintf("OUTPOST_LOG_TIME_FORMAT=%s", c.Log.TimeFormat),
		fmt.Sprintf("OUTPOST_LOG_PATH=%s", c.Log.Path),
	}
}

// IsDebug returns true if debug logging was requested.
func IsDebug() bool {
	debug, _ := strconv.ParseBool(os.Getenv("OUTPOST_DEBUG"))
	return debug
}

// parseFile parses the given file as a configuration file.
// The file must be in YAML format.
func parseFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer f.Close() // nolint: errcheck
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	return cfg.Validate()
}

// ParseFile parses the config from its file location.
// This also calls Validate() on the config.
func (c *Config) ParseFile() error {
	return parseFile(c, c.ConfigPath())
}

// parseEnv parses the environment variables as a configuration file.
func parseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{
		Prefix: "OUTPOST_",
	}); err != nil {
		return fmt.Errorf("parse environment variables: %w", err)
	}

	return cfg.Validate()
}

// ParseEnv parses the config from the environment variables.
// This also calls Validate() on the config.
func (c *Config) ParseEnv() error {
	return parseEnv(c)
}

// Parse parses the config file, when it exists, and then the environment
// variables. This also calls Validate() on the config.
func (c *Config) Parse() error {
	if c.Exist() {
		if err := c.ParseFile(); err != nil {
			return err
		}
	}

	return c.ParseEnv()
}

// writeConfig writes the configuration to the given file.
func writeConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(newConfigFile(cfg)), 0o600) // nolint: gosec
}

// WriteConfig writes the configuration to its file location.
func (c *Config) WriteConfig() error {
	return writeConfig(c, c.ConfigPath())
}

// DefaultConfigPath returns the default location of the config file. It uses
// OUTPOST_CONFIG_LOCATION when set, otherwise "outpost/config.yaml" under the
// user config directory.
func DefaultConfigPath() string {
	if p := os.Getenv("OUTPOST_CONFIG_LOCATION"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "outpost", "config.yaml")
}

// ConfigPath returns the path to the config file.
func (c *Config) ConfigPath() string { // nolint:revive
	if c.Location != "" {
		return c.Location
	}
	return DefaultConfigPath()
}

// Exist returns true if the config file exists.
func (c *Config) Exist() bool {
	_, err := os.Stat(c.ConfigPath())
	return err == nil
}

// DefaultConfig returns the default Config.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      DefaultBaseURL,
		PollInterval: 0.5,
		Timeout: TimeoutConfig{
			Connect: 5,
			Read:    30,
			Write:   30,
			Pool:    10,
			Idle:    90,
		},
		Retry: RetryConfig{
			MaxAttempts:    retry.DefaultMaxAttempts,
			BackoffFactor:  retry.DefaultBackoffFactor.Seconds(),
			JitterRatio:    retry.DefaultJitterRatio,
			MaxBackoffWait: retry.DefaultMaxBackoffWait.Seconds(),
		},
		LFS: LFSConfig{
			TransferAdapters: []string{"multipart-basic", "basic"},
		},
		Log: LogConfig{
			Format:     "text",
			Level:      "info",
			TimeFormat: time.DateTime,
		},
		Location: os.Getenv("OUTPOST_CONFIG_LOCATION"),
	}
}

// Validate validates the configuration and normalizes URLs and adapter names.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}

	c.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL)
	}

	c.LFS.URL = strings.TrimSuffix(strings.TrimSpace(c.LFS.URL), "/")

	adapters := make([]string, 0, len(c.LFS.TransferAdapters))
	for _, a := range c.LFS.TransferAdapters {
		if a = strings.TrimSpace(a); a != "" {
			adapters = append(adapters, a)
		}
	}
	c.LFS.TransferAdapters = adapters

	if c.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative, actual %v", c.PollInterval)
	}

	for name, v := range map[string]float64{
		"connect": c.Timeout.Connect,
		"read":    c.Timeout.Read,
		"write":   c.Timeout.Write,
		"pool":    c.Timeout.Pool,
		"idle":    c.Timeout.Idle,
	} {
		if v < 0 {
			return fmt.Errorf("%s timeout must not be negative, actual %v", name, v)
		}
	}

	if _, err := c.Retry.Policy(); err != nil {
		return err
	}

	return nil
}

// Policy builds the retry policy described by the configuration.
func (r RetryConfig) Policy() (*retry.Policy, error) {
	opts := []retry.Option{
		retry.WithJitterRatio(r.JitterRatio),
	}
	if r.MaxAttempts > 0 {
		opts = append(opts, retry.WithMaxAttempts(r.MaxAttempts))
	}
	if r.BackoffFactor > 0 {
		opts = append(opts, retry.WithBackoffFactor(Seconds(r.BackoffFactor)))
	}
	if r.MaxBackoffWait > 0 {
		opts = append(opts, retry.WithMaxBackoffWait(Seconds(r.MaxBackoffWait)))
	}
	if r.ConnectionErrors {
		opts = append(opts, retry.WithConnectionErrors())
	}
	return retry.NewPolicy(opts...)
}

// Seconds converts a number of seconds to a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
