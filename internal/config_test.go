package internal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Missing(t *testing.T) {
	t.Setenv(IdleTimeoutEnv, "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("LoadConfig() = %+v, want defaults", cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(IdleTimeoutEnv, "")

	tests := []struct {
		name    string
		body    string
		check   func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name: "partial override keeps defaults",
			body: "idle_timeout: 5m\nlog_level: debug\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.IdleTimeout != 5*time.Minute {
					t.Errorf("IdleTimeout = %v, want 5m", cfg.IdleTimeout)
				}
				if cfg.LogLevel != "debug" {
					t.Errorf("LogLevel = %q", cfg.LogLevel)
				}
				if cfg.Pool.MaxConnections != 10 {
					t.Errorf("Pool.MaxConnections = %d, want default 10", cfg.Pool.MaxConnections)
				}
			},
		},
		{
			name: "pool section",
			body: "pool:\n  max_connections: 3\n  min_connections: 1\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Pool.MaxConnections != 3 || cfg.Pool.MinConnections != 1 {
					t.Errorf("Pool = %+v", cfg.Pool)
				}
			},
		},
		{name: "malformed yaml", body: "idle_timeout: [\n", wantErr: true},
		{name: "bad duration", body: "idle_timeout: soon\n", wantErr: true},
		{name: "zero timeout", body: "idle_timeout: 0s\n", wantErr: true},
		{name: "unknown log level", body: "log_level: loud\n", wantErr: true},
		{name: "min above max", body: "pool:\n  max_connections: 1\n  min_connections: 2\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			cfg, err := LoadConfig(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var ce *ConfigError
				if !errors.As(err, &ce) || ce.Path != path {
					t.Errorf("error = %v, want *ConfigError for %s", err, path)
				}
				return
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "idle_timeout: 5m\n")

	t.Setenv(IdleTimeoutEnv, "90s")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.IdleTimeout != 90*time.Second {
		t.Errorf("IdleTimeout = %v, want 90s from env", cfg.IdleTimeout)
	}

	t.Setenv(IdleTimeoutEnv, "later")
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() should reject an unparsable env override")
	}
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	t.Setenv(IdleTimeoutEnv, "")

	cfg := DefaultConfig()
	cfg.IdleTimeout = 12 * time.Minute
	cfg.Pool.MaxConnections = 4

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip = %+v, want %+v", loaded, cfg)
	}
}
