// Package config loads the poller configuration from defaults, an optional
// YAML file and AOC_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "AOC_"

// MinPollInterval is the shortest interval the provider tolerates between
// leaderboard requests.
const MinPollInterval = 15 * time.Minute

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Port is the HTTP listen port.
	Port string `koanf:"port"`

	// Year is the event year of the private leaderboard.
	Year int `koanf:"year"`

	// BoardID identifies the private leaderboard; 0 disables private polling.
	BoardID uint64 `koanf:"board_id"`

	// Session is the provider session cookie.
	Session string `koanf:"session"`

	// BaseURL of the leaderboard provider.
	BaseURL string `koanf:"base_url"`

	// StorageBucket selects Cloud Storage; LocalStorage a local directory instead.
	StorageBucket string `koanf:"storage_bucket"`
	LocalStorage  string `koanf:"local_storage"`

	// SlackWebhook receives notifications when set.
	SlackWebhook string `koanf:"slack_webhook"`

	// NotifyEmail receives notifications through Gmail when no webhook is set.
	NotifyEmail string `koanf:"notify_email"`

	// GoogleCredentialsJSON holds explicit Gmail credentials.
	GoogleCredentialsJSON string `koanf:"google_credentials_json"`

	// PollInterval between ticker-driven poll cycles; 0 disables the ticker.
	PollInterval time.Duration `koanf:"poll_interval"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:     "info",
		Port:         "8080",
		Year:         time.Now().Year(),
		BaseURL:      "https://adventofcode.com",
		PollInterval: MinPollInterval,
	}
}

// Load builds a Config by layering defaults, the YAML file at path (if not
// empty) and environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// AOC_BOARD_ID -> board_id
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Port == "" {
		return fmt.Errorf("%w: port must not be empty", ErrInvalidConfig)
	}
	if c.Year < 2015 {
		return fmt.Errorf("%w: year %d predates the event", ErrInvalidConfig, c.Year)
	}
	if c.BoardID != 0 && c.Session == "" {
		return fmt.Errorf("%w: session is required with board_id", ErrInvalidConfig)
	}
	if c.PollInterval != 0 && c.PollInterval < MinPollInterval {
		return fmt.Errorf("%w: poll_interval %s is below %s", ErrInvalidConfig, c.PollInterval, MinPollInterval)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return level, nil
}
