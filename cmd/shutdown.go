package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iksnae/tempo/internal"
	"github.com/iksnae/tempo/internal/ipc"
)

var shutdownForce bool

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop the active session and exit the daemon",
	Long: `Ask the daemon to stop the active session and exit.

With --force, a daemon that does not answer is terminated through its pid
file (SIGTERM, then SIGKILL after a grace period) and its socket and pid
files are removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		client, err := newClient()
		if err != nil {
			return err
		}

		err = client.Shutdown(commandContext(cmd))
		switch {
		case err == nil:
			fmt.Fprintln(out, successStyle.Render("Daemon stopped"))
			return nil
		case errors.Is(err, ipc.ErrDaemonNotRunning) && !shutdownForce:
			fmt.Fprintln(out, warningStyle.Render("Daemon is not running"))
			return nil
		case !shutdownForce:
			return err
		}

		internal.LogWarn("Shutdown request failed (%v); forcing", err)
		paths, err := resolvePaths()
		if err != nil {
			return err
		}
		return forceShutdown(paths, out)
	},
}

func forceShutdown(paths internal.DataPaths, out io.Writer) error {
	pid, err := ipc.ReadPIDFile(paths.PIDFilePath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintln(out, warningStyle.Render("No pid file; nothing to terminate"))
	case err != nil:
		return err
	case !ipc.IsProcessAlive(pid):
		fmt.Fprintf(out, "Process %d is already gone\n", pid)
	default:
		fmt.Fprintf(out, "Terminating daemon (pid %d)\n", pid)
		if err := ipc.TerminateProcess(pid, 2*time.Second); err != nil {
			return err
		}
	}

	if err := os.Remove(paths.SocketPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove socket: %w", err)
	}
	if err := ipc.RemovePIDFile(paths.PIDFilePath()); err != nil {
		return err
	}
	fmt.Fprintln(out, successStyle.Render("Cleaned up daemon files"))
	return nil
}

func init() {
	shutdownCmd.Flags().BoolVar(&shutdownForce, "force", false, "Terminate an unresponsive daemon via its pid file")
	rootCmd.AddCommand(shutdownCmd)
}
