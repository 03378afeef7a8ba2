package internal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// IdleTimeoutEnv overrides the configured idle timeout
const IdleTimeoutEnv = "TEMPO_IDLE_TIMEOUT"

// PoolSettings mirrors the storage pool knobs
type PoolSettings struct {
	MaxConnections int           `yaml:"max_connections"`
	MinConnections int           `yaml:"min_connections"`
	MaxLifetime    time.Duration `yaml:"max_lifetime"`
	MaxIdleTime    time.Duration `yaml:"max_idle_time"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// Config holds the daemon's tunables
type Config struct {
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	IdleCheckInterval time.Duration `yaml:"idle_check_interval"`
	ClientTimeout     time.Duration `yaml:"client_timeout"`
	LogLevel          string        `yaml:"log_level"`
	LogToFile         bool          `yaml:"log_file"`
	Pool              PoolSettings  `yaml:"pool"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		IdleTimeout:       30 * time.Minute,
		IdleCheckInterval: 60 * time.Second,
		ClientTimeout:     5 * time.Second,
		LogLevel:          "info",
		LogToFile:         true,
		Pool: PoolSettings{
			MaxConnections: 10,
			MinConnections: 2,
			MaxLifetime:    time.Hour,
			MaxIdleTime:    10 * time.Minute,
			AcquireTimeout: 30 * time.Second,
		},
	}
}

// LoadConfig loads config from path, falling back to defaults when the file
// does not exist. A file that exists but cannot be parsed is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults
	case err != nil:
		return nil, &ConfigError{Path: path, Err: err}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to unmarshal config: %w", err)}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(IdleTimeoutEnv); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", IdleTimeoutEnv, err)
		}
		c.IdleTimeout = d
	}
	return nil
}

// Validate rejects values the daemon cannot run with
func (c *Config) Validate() error {
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive")
	}
	if c.IdleCheckInterval <= 0 {
		return fmt.Errorf("idle_check_interval must be positive")
	}
	if c.ClientTimeout <= 0 {
		return fmt.Errorf("client_timeout must be positive")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	p := c.Pool
	if p.MaxConnections < 1 {
		return fmt.Errorf("pool.max_connections must be at least 1")
	}
	if p.MinConnections < 0 || p.MinConnections > p.MaxConnections {
		return fmt.Errorf("pool.min_connections must be between 0 and max_connections")
	}
	if p.MaxLifetime <= 0 || p.MaxIdleTime <= 0 || p.AcquireTimeout <= 0 {
		return fmt.Errorf("pool durations must be positive")
	}
	return nil
}

// Save writes the config as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
