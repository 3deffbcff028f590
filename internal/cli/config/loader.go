package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix prefixes every environment variable read by the loader.
const EnvPrefix = "PINE_"

var configFileNames = []string{"pine.yaml", "pine.yml"}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"gateway": "gateway_url",
	"state":   "state_path",
}

// configExistsIn returns the config file in dir, if any.
func configExistsIn(dir string) string {
	for _, name := range configFileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// findConfigUpward searches upward from startDir for a pine config file.
func findConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if p := configExistsIn(dir); p != "" {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// envKey maps PINE_UI_PORT to ui.port and PINE_GATEWAY_URL to gateway_url.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if rest, ok := strings.CutPrefix(key, "ui_"); ok {
		return "ui." + rest
	}
	return key
}

// LoadConfig loads configuration from defaults, file, environment variables
// and flags. Precedence (highest to lowest): flags > env vars > config file > defaults.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")
	configFileUsed = ""

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"gateway_url":       DefaultGatewayURL,
		"gateway_timeout":   "0s",
		"debounce":          DefaultDebounce.String(),
		"delete_limit":      DefaultDeleteLimit,
		"delete_depth":      DefaultDeleteDepth,
		"delete_dry_run":    false,
		"state_path":        DefaultStateFile,
		"verbose":           false,
		"log_level":         DefaultLogLevel,
		"output":            DefaultOutput,
		"ui.port":           DefaultUIPort,
		"ui.auto_open":      false,
		"ui.session_secret": "",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file: explicit path, else searched upward from the working directory
	if cfgFile != "" {
		configFileUsed = cfgFile
	} else {
		configFileUsed = findConfigUpward(cwd)
	}
	projectRoot := cwd
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
		if abs, err := filepath.Abs(configFileUsed); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	// 3. Environment variables (PINE_ prefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set
	var flagStatePath string
	if flags != nil {
		if flags.Changed("state") {
			if v, _ := flags.GetString("state"); v != "" && v != ":memory:" {
				flagStatePath, _ = filepath.Abs(v)
			}
		}
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[key]; ok {
				key = mapped
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.ProjectRoot = projectRoot
	if flagStatePath != "" {
		cfg.StatePath = flagStatePath
	} else {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	}
	cfg.GatewayURL = strings.TrimSuffix(cfg.GatewayURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the configuration from the last LoadConfig call.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.New(slog.DiscardHandler)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
