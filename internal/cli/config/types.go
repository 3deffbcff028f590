// Package config loads the Pine CLI configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/pine/internal/client"
	"github.com/leapstack-labs/pine/internal/evaluate"
)

// UIConfig holds configuration for the session API server.
type UIConfig struct {
	Port     int  `koanf:"port"`
	AutoOpen bool `koanf:"auto_open"`
	// SessionSecret signs the cookie binding a browser to its session.
	// A random secret is generated when empty.
	SessionSecret string `koanf:"session_secret"`
}

// DefaultUIConfig returns a UIConfig with default values.
func DefaultUIConfig() *UIConfig {
	return &UIConfig{
		Port: DefaultUIPort,
	}
}

// GetUIConfig returns the UI config with defaults applied for any unset values.
func (c *Config) GetUIConfig() *UIConfig {
	if c.UI == nil {
		return DefaultUIConfig()
	}
	ui := c.UI
	if ui.Port == 0 {
		ui.Port = DefaultUIPort
	}
	return ui
}

// Config holds all CLI configuration options.
type Config struct {
	GatewayURL     string        `koanf:"gateway_url"`
	GatewayTimeout time.Duration `koanf:"gateway_timeout"`
	Debounce       time.Duration `koanf:"debounce"`
	DeleteLimit    int           `koanf:"delete_limit"`
	DeleteDepth    int           `koanf:"delete_depth"`
	DeleteDryRun   bool          `koanf:"delete_dry_run"`
	StatePath      string        `koanf:"state_path"`
	Verbose        bool          `koanf:"verbose"`
	LogLevel       string        `koanf:"log_level"`
	OutputFormat   string        `koanf:"output"`
	UI             *UIConfig     `koanf:"ui"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultGatewayURL  = client.DefaultBaseURL
	DefaultDebounce    = 150 * time.Millisecond
	DefaultDeleteLimit = evaluate.DefaultDeleteLimit
	DefaultDeleteDepth = evaluate.DefaultDeleteDepth
	DefaultStateFile   = ".pine/state.db"
	DefaultLogLevel    = "info"
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultUIPort      = 33334
)

// Validate checks values that cannot be expressed by the config types.
func (c *Config) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("gateway_url is required")
	}
	if !strings.HasPrefix(c.GatewayURL, "http://") && !strings.HasPrefix(c.GatewayURL, "https://") {
		return fmt.Errorf("gateway_url must be an http(s) URL, got %q", c.GatewayURL)
	}
	if c.DeleteLimit <= 0 {
		return fmt.Errorf("delete_limit must be positive, got %d", c.DeleteLimit)
	}
	if c.DeleteDepth <= 0 {
		return fmt.Errorf("delete_depth must be positive, got %d", c.DeleteDepth)
	}
	if c.Debounce < 0 || c.GatewayTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a log level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", s)
	}
	return level, nil
}

// Level returns the effective log level. Verbose forces debug.
func (c *Config) Level() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// EvaluationOptions returns the dispatcher options from this config.
func (c *Config) EvaluationOptions() evaluate.Options {
	return evaluate.Options{
		DeleteLimit: c.DeleteLimit,
		DeleteDepth: c.DeleteDepth,
		DryRun:      c.DeleteDryRun,
	}
}

// Default returns the configuration used when nothing was loaded.
func Default() *Config {
	return &Config{
		GatewayURL:   DefaultGatewayURL,
		Debounce:     DefaultDebounce,
		DeleteLimit:  DefaultDeleteLimit,
		DeleteDepth:  DefaultDeleteDepth,
		StatePath:    DefaultStateFile,
		LogLevel:     DefaultLogLevel,
		OutputFormat: DefaultOutput,
		UI:           DefaultUIConfig(),
	}
}
