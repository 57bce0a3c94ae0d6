// Package config loads and saves the debugger's persistent settings: the
// execution defaults, the GDB server's listen defaults, the profiler's
// output defaults, and the syscall bridge's resource limits.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config represents the debugger's persisted configuration.
type Config struct {
	// Execution settings
	Execution struct {
		MaxCycles          uint64 `toml:"max_cycles"`
		ScriptVersion      uint32 `toml:"script_version"`
		DecodeCacheSize    int    `toml:"decode_cache_size"`
		EnableOverlapCheck bool   `toml:"enable_overlap_check"`
	} `toml:"execution"`

	// GDB server settings
	GDB struct {
		ListenAddr string `toml:"listen_addr"`
	} `toml:"gdb"`

	// Profiler settings
	Profiler struct {
		OutputFormat string `toml:"output_format"` // stacktrace, flamegraph
		OutputFile   string `toml:"output_file"`
	} `toml:"profiler"`

	// Display settings
	Display struct {
		ColorOutput  bool   `toml:"color_output"`
		BytesPerLine int    `toml:"bytes_per_line"`
		NumberFormat string `toml:"number_format"` // hex, dec
	} `toml:"display"`

	// Syscall bridge settings
	Syscall struct {
		MaxStringWords int    `toml:"max_string_words"`
		FsRoot         string `toml:"fs_root"`
	} `toml:"syscall"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Execution.MaxCycles = 1 << 32
	cfg.Execution.ScriptVersion = 2
	cfg.Execution.DecodeCacheSize = 4096
	cfg.Execution.EnableOverlapCheck = false

	cfg.GDB.ListenAddr = "127.0.0.1:9999"

	cfg.Profiler.OutputFormat = "stacktrace"
	cfg.Profiler.OutputFile = ""

	cfg.Display.ColorOutput = true
	cfg.Display.BytesPerLine = 16
	cfg.Display.NumberFormat = "hex"

	cfg.Syscall.MaxStringWords = 1024
	cfg.Syscall.FsRoot = ""

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
		configDir = filepath.Join(configDir, "ckb-debugger")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "ckb-debugger")

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
		logDir = filepath.Join(logDir, "ckb-debugger", "logs")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "logs"
		}
		logDir = filepath.Join(homeDir, ".local", "share", "ckb-debugger", "logs")

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

// LoadFrom loads configuration from the specified file, falling back to
// defaults when it doesn't exist yet.
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

// SaveTo saves configuration to the specified file.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
