package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iksnae/tempo/internal"
	"github.com/iksnae/tempo/internal/ipc"
)

var (
	verbose       bool
	dataDir       string
	configPath    string
	clientTimeout time.Duration
	version       string = "dev"
	commit        string = "unknown"
	date          string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tempo",
	Short: "Automatic time tracking for software projects",
	Long: `tempo attributes working time to projects as you move between them.

A background daemon owns the active session. Shells and editors report
entering a project directory; the daemon starts, switches, pauses and stops
sessions and records them in a local SQLite database.

Quick Start:
  tempo daemon &                 # Start the daemon
  tempo enter .                  # Report entering the current directory
  tempo status                   # Show the active session
  tempo shutdown                 # Stop tracking and exit the daemon`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		internal.SetVerbose(verbose)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: $"+internal.DataDirEnv+" or the per-user data dir)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <data dir>/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&clientTimeout, "timeout", 0, "Daemon request timeout (default from config)")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

func resolvePaths() (internal.DataPaths, error) {
	if dataDir != "" {
		return internal.NewDataPaths(dataDir), nil
	}
	paths, err := internal.DetectDataPaths()
	if err != nil {
		return internal.DataPaths{}, fmt.Errorf("failed to detect data directory: %w", err)
	}
	return paths, nil
}

func resolveConfigPath(paths internal.DataPaths) string {
	if configPath != "" {
		return configPath
	}
	return paths.ConfigPath()
}

// newClient builds a daemon client. A broken config file only costs the
// configured timeout; the daemon reports the config error itself.
func newClient() (*ipc.Client, error) {
	paths, err := resolvePaths()
	if err != nil {
		return nil, err
	}
	timeout := clientTimeout
	if timeout <= 0 {
		if cfg, err := internal.LoadConfig(resolveConfigPath(paths)); err == nil {
			timeout = cfg.ClientTimeout
		} else {
			internal.LogDebug("using default client timeout: %v", err)
		}
	}
	return ipc.NewClient(paths.SocketPath(), timeout), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
