// Package config loads the optional audioperm configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/audioperm/internal/domain"
	"github.com/eliteGoblin/audioperm/internal/emulator"
)

// PlatformAuto selects the platform from the running host.
const PlatformAuto = "auto"

// Config is the audioperm configuration.
type Config struct {
	Platform string         `yaml:"platform" toml:"platform"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Emulator EmulatorConfig `yaml:"emulator" toml:"emulator"`
}

type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"`
}

// EmulatorConfig configures the emulated native platform.
type EmulatorConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	DataDir    string `yaml:"data_dir" toml:"data_dir"`
	Consent    string `yaml:"consent" toml:"consent"`
	APILevel   int    `yaml:"api_level" toml:"api_level"`
	Encrypted  bool   `yaml:"encrypted" toml:"encrypted"`
	Microphone bool   `yaml:"microphone" toml:"microphone"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Platform: PlatformAuto,
		Logging: LoggingConfig{
			Level: "info",
		},
		Emulator: EmulatorConfig{
			Consent:    string(emulator.ConsentGrant),
			Encrypted:  true,
			Microphone: true,
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "audioperm", "config.yaml")
}

// DefaultDataDir returns the per-user emulator state directory.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "audioperm", "emulator")
}

// LoadOptional reads path on top of Default. A missing file (or empty path)
// yields the defaults. The format follows the extension: .toml is TOML,
// anything else YAML.
func LoadOptional(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects unknown platforms, consent policies and log levels.
func (c *Config) Validate() error {
	if _, _, err := c.ResolvePlatform(); err != nil {
		return err
	}
	if _, err := emulator.ParseConsentPolicy(c.Emulator.Consent); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	if c.Emulator.APILevel < 0 {
		return fmt.Errorf("api_level must not be negative")
	}
	return nil
}

// ResolvePlatform returns the forced platform. ok is false for auto detection.
func (c *Config) ResolvePlatform() (p domain.Platform, ok bool, err error) {
	name := strings.TrimSpace(c.Platform)
	if name == "" || strings.EqualFold(name, PlatformAuto) {
		return "", false, nil
	}
	p, err = domain.ParsePlatform(name)
	if err != nil {
		return "", false, err
	}
	return p, true, nil
}

// EmulatorDataDir returns the configured data directory or the default.
func (c *Config) EmulatorDataDir() string {
	if c.Emulator.DataDir != "" {
		return c.Emulator.DataDir
	}
	return DefaultDataDir()
}
