// Package config loads and saves the tool's TOML-backed settings: a
// DefaultConfig/Load/LoadFrom/Save/SaveTo shaped TOML file under a
// per-OS config directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// configAppName names the per-OS config/log directory this tool uses.
const configAppName = "sc-trace-debugger"

// DisplayConfig governs how `reg`/`variables` format their numeric output.
// It is a named type (rather than an inline struct) so debugger.Dispatcher
// can take one as a constructor argument.
type DisplayConfig struct {
	// NumberFormat is "hex", "dec", or "both"; an unrecognized value falls
	// back to "hex".
	NumberFormat string `toml:"number_format"`
	ColorOutput  bool   `toml:"color_output"`
}

// Config holds every user-tunable setting.
type Config struct {
	Display DisplayConfig `toml:"display"`

	// DebugInfo settings control how the ELF/DWARF path prefix is
	// normalized (the rightmost occurrence of the prefix is kept).
	DebugInfo struct {
		PathPrefix string `toml:"path_prefix"`
	} `toml:"debuginfo"`

	// Session settings bound REPL-session ambient resources.
	Session struct {
		HistorySize       int  `toml:"history_size"`
		PersistBreakpoints bool `toml:"persist_breakpoints"`
	} `toml:"session"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Display.NumberFormat = "hex"
	cfg.Display.ColorOutput = true

	cfg.DebugInfo.PathPrefix = ""

	cfg.Session.HistorySize = 1000
	cfg.Session.PersistBreakpoints = false

	return cfg
}

// GetConfigPath returns the platform-specific config file path.
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, configAppName)

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", configAppName)

	default:
		return "config.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// GetLogPath returns the platform-specific log directory path.
func GetLogPath() string {
	var logDir string

	switch runtime.GOOS {
	case "windows":
		logDir = os.Getenv("APPDATA")
		if logDir == "" {
			logDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		logDir = filepath.Join(logDir, configAppName, "logs")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "logs"
		}
		logDir = filepath.Join(homeDir, ".local", "share", configAppName, "logs")

	default:
		return "logs"
	}

	if err := os.MkdirAll(logDir, 0750); err != nil {
		return "logs"
	}

	return logDir
}

// Load loads configuration from the default config file.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from path, falling back to defaults if the
// file does not exist.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", closeErr)
		}
	}()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
