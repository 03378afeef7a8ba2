package cmd

import (
	"github.com/spf13/cobra"

	"github.com/iksnae/tempo/internal/daemon"
)

var (
	daemonNoLogFile bool
	daemonLogJSON   bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the tracking daemon in the foreground",
	Long: `Run the tracking daemon. It listens on <data dir>/daemon.sock, writes its
pid to <data dir>/daemon.pid and keeps sessions in <data dir>/data.db.

The daemon exits on SIGINT, SIGTERM, or a shutdown request, stopping the
active session first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemon.Run(commandContext(cmd), daemon.Options{
			DataDir:    dataDir,
			ConfigPath: configPath,
			Verbose:    verbose,
			NoLogFile:  daemonNoLogFile,
			LogJSON:    daemonLogJSON,
		})
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonNoLogFile, "no-log-file", false, "Log to stderr only")
	daemonCmd.Flags().BoolVar(&daemonLogJSON, "log-json", false, "Write stderr logs as JSON lines")
	rootCmd.AddCommand(daemonCmd)
}
