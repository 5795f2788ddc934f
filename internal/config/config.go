package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// ConfigDirName is the directory where config is stored
	ConfigDirName = ".gsyncd"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "GSYNCD_"
)

// Config holds application configuration
type Config struct {
	// IndexPath is the location of the sqlite metadata index
	IndexPath string `json:"indexPath"`

	// LocalRoot is the base directory for synced namespaces
	LocalRoot string `json:"localRoot"`

	// MaxRetries is the maximum number of retries for remote calls
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay"`

	// FetchPageSize is the page size for remote change listing
	FetchPageSize int `json:"fetchPageSize"`

	// MaxBackgroundTasks constrains concurrent non-exclusive tasks.
	// The default of 1 forces strict serialization.
	MaxBackgroundTasks int `json:"maxBackgroundTasks"`

	// PreferLocalDrain chooses local drains over remote listing when
	// both are eligible.
	PreferLocalDrain bool `json:"preferLocalDrain"`

	// DefaultConflictPolicy applies when a sync root has no override
	DefaultConflictPolicy string `json:"defaultConflictPolicy"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel"`

	// LogFile enables JSON file logging when set
	LogFile string `json:"logFile"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ConfigDirName)
	return &Config{
		IndexPath:             filepath.Join(base, "index.db"),
		LocalRoot:             filepath.Join(base, "roots"),
		MaxRetries:            3,
		RetryBaseDelay:        1000,
		FetchPageSize:         100,
		MaxBackgroundTasks:    1,
		PreferLocalDrain:      true,
		DefaultConflictPolicy: "last-writer-wins",
		LogLevel:              "normal",
	}
}

// ConfigPath returns the path of the config file
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ConfigDirName, ConfigFileName), nil
}

// Load loads configuration with precedence: env vars > config file > defaults
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from an explicit file path
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to its file path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.IndexPath == "" {
		return fmt.Errorf("indexPath must not be empty")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must be >= 0, got %d", c.MaxRetries)
	}
	if c.FetchPageSize <= 0 {
		return fmt.Errorf("fetchPageSize must be > 0, got %d", c.FetchPageSize)
	}
	if c.MaxBackgroundTasks <= 0 {
		return fmt.Errorf("maxBackgroundTasks must be > 0, got %d", c.MaxBackgroundTasks)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "INDEX_PATH"); v != "" {
		cfg.IndexPath = v
	}
	if v := os.Getenv(EnvPrefix + "LOCAL_ROOT"); v != "" {
		cfg.LocalRoot = v
	}
	if v := os.Getenv(EnvPrefix + "MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv(EnvPrefix + "RETRY_BASE_DELAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryBaseDelay = n
		}
	}
	if v := os.Getenv(EnvPrefix + "FETCH_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FetchPageSize = n
		}
	}
	if v := os.Getenv(EnvPrefix + "MAX_BACKGROUND_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxBackgroundTasks = n
		}
	}
	if v := os.Getenv(EnvPrefix + "PREFER_LOCAL_DRAIN"); v != "" {
		cfg.PreferLocalDrain = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv(EnvPrefix + "CONFLICT_POLICY"); v != "" {
		cfg.DefaultConflictPolicy = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}
