// Package config loads discordant's process configuration.
//
// Sources, lowest priority first:
//  1. Built-in defaults
//  2. An optional YAML file (--config)
//  3. The process environment
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ErrMissingToken is returned when no Discord token is configured.
var ErrMissingToken = errors.New("config: DISCORD_TOKEN is not set")

type Config struct {
	// Token authenticates the gateway session. Always carries the "Bot " prefix
	// after Load.
	Token string `yaml:"token" env:"DISCORD_TOKEN"`

	QueueCapacity int           `yaml:"queue_capacity" env:"DISCORDANT_QUEUE_CAPACITY"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" env:"DISCORDANT_FETCH_TIMEOUT"`
	AwaitTimeout  time.Duration `yaml:"await_timeout" env:"DISCORDANT_AWAIT_TIMEOUT"`
	MemberLimit   int           `yaml:"member_limit" env:"DISCORDANT_MEMBER_LIMIT"`
	// ImageFetches caps image downloads in flight at once.
	ImageFetches int `yaml:"image_fetches" env:"DISCORDANT_IMAGE_FETCHES"`

	LogLevel  string `yaml:"log_level" env:"DISCORDANT_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"DISCORDANT_LOG_FORMAT"`
	Console   bool   `yaml:"console" env:"DISCORDANT_CONSOLE"`
}

// Default returns the built-in configuration. It has no token.
func Default() Config {
	return Config{
		QueueCapacity: 100,
		FetchTimeout:  10 * time.Second,
		AwaitTimeout:  15 * time.Second,
		MemberLimit:   1000,
		ImageFetches:  16,
		LogLevel:      "info",
		LogFormat:     "console",
		Console:       true,
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the process environment.
func Load(path string) (*Config, error) {
	return load(path, env.Options{})
}

func load(path string, opts env.Options) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// No envDefault tags: unset variables leave file and default values alone.
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: YAML parse error in %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() error {
	c.Token = strings.TrimSpace(c.Token)
	if c.Token == "" {
		return ErrMissingToken
	}
	if !strings.HasPrefix(c.Token, "Bot ") {
		c.Token = "Bot " + c.Token
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("config: queue_capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.ImageFetches <= 0 {
		return fmt.Errorf("config: image_fetches must be positive, got %d", c.ImageFetches)
	}
	if c.MemberLimit <= 0 || c.MemberLimit > 1000 {
		return fmt.Errorf("config: member_limit must be in 1..1000, got %d", c.MemberLimit)
	}
	return nil
}
