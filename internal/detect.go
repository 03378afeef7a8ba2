package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DataDirEnv overrides the detected data directory
const DataDirEnv = "TEMPO_DATA_DIR"

// DataPaths holds the per-user locations shared by the daemon and its clients
type DataPaths struct {
	BaseDir string // per-user data directory, mode 0700
}

// DetectDataPaths detects the data directory based on the environment and
// operating system. It does not create anything.
func DetectDataPaths() (DataPaths, error) {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return DataPaths{}, fmt.Errorf("failed to resolve %s: %w", DataDirEnv, err)
		}
		return DataPaths{BaseDir: abs}, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return DataPaths{}, fmt.Errorf("failed to get home directory: %w", err)
	}

	var base string
	switch runtime.GOOS {
	case "darwin":
		base = filepath.Join(home, "Library", "Application Support", "tempo")
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			base = filepath.Join(appData, "tempo")
		} else {
			base = filepath.Join(home, "AppData", "Local", "tempo")
		}
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = filepath.Join(xdg, "tempo")
		} else {
			base = filepath.Join(home, ".local", "share", "tempo")
		}
	}
	return DataPaths{BaseDir: base}, nil
}

// NewDataPaths roots all paths at dir
func NewDataPaths(dir string) DataPaths {
	return DataPaths{BaseDir: dir}
}

// Ensure creates the data directory restricted to the owning user
func (dp DataPaths) Ensure() error {
	if err := os.MkdirAll(dp.BaseDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	// MkdirAll leaves an existing directory's mode alone.
	if err := os.Chmod(dp.BaseDir, 0o700); err != nil {
		return fmt.Errorf("failed to restrict data directory: %w", err)
	}
	return nil
}

// SocketPath returns the daemon's Unix domain socket
func (dp DataPaths) SocketPath() string {
	return filepath.Join(dp.BaseDir, "daemon.sock")
}

// PIDFilePath returns the daemon's PID file
func (dp DataPaths) PIDFilePath() string {
	return filepath.Join(dp.BaseDir, "daemon.pid")
}

// DatabasePath returns the SQLite database file
func (dp DataPaths) DatabasePath() string {
	return filepath.Join(dp.BaseDir, "data.db")
}

// ConfigPath returns the default config file
func (dp DataPaths) ConfigPath() string {
	return filepath.Join(dp.BaseDir, "config.yaml")
}

// LogFilePath returns the daemon log file
func (dp DataPaths) LogFilePath() string {
	return filepath.Join(dp.BaseDir, "logs", "daemon.log")
}
