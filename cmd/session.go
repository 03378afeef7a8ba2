package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	sessionContext string
)

// pathArg returns the path argument (default: the working directory) made
// absolute against this process's working directory. The daemon rejects
// relative paths.
func pathArg(args []string) (string, error) {
	if len(args) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", args[0], err)
	}
	return abs, nil
}

var enterCmd = &cobra.Command{
	Use:   "enter [path]",
	Short: "Report entering a project directory",
	Long: `Report that work moved to the project at path (default: the current
directory). Shell and editor hooks call this on every directory change.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := pathArg(args)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		return client.ProjectEntered(commandContext(cmd), path, sessionContext)
	},
}

var leaveCmd = &cobra.Command{
	Use:   "leave [path]",
	Short: "Report leaving a project directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := pathArg(args)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		return client.ProjectLeft(commandContext(cmd), path)
	},
}

var startCmd = &cobra.Command{
	Use:   "start [path]",
	Short: "Start tracking a project manually",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := pathArg(args)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		ctxName := sessionContext
		if !cmd.Flags().Changed("context") {
			ctxName = "manual"
		}
		if err := client.StartSession(commandContext(cmd), path, ctxName); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Tracking started"))
		return nil
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch <project-id>",
	Short: "Switch tracking to an existing project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid project id: %s", args[0])
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		return client.SwitchProject(commandContext(cmd), id)
	},
}

// simpleCmd builds a command that sends one request and prints msg on success
func simpleCmd(use, short, msg string, send func(cmd *cobra.Command) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := send(cmd); err != nil {
				return err
			}
			if msg != "" {
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(msg))
			}
			return nil
		},
	}
}

var stopCmd = simpleCmd("stop", "Stop the active session", "Session stopped", func(cmd *cobra.Command) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return client.Stop(commandContext(cmd))
})

var pauseCmd = simpleCmd("pause", "Pause the active session", "Session paused", func(cmd *cobra.Command) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return client.Pause(commandContext(cmd))
})

var resumeCmd = simpleCmd("resume", "Resume a paused session", "Session resumed", func(cmd *cobra.Command) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return client.Resume(commandContext(cmd))
})

var heartbeatCmd = simpleCmd("heartbeat", "Record activity without changing project", "", func(cmd *cobra.Command) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return client.Heartbeat(commandContext(cmd))
})

func init() {
	for _, c := range []*cobra.Command{enterCmd, startCmd} {
		c.Flags().StringVarP(&sessionContext, "context", "c", "terminal", "Signal origin: terminal, ide, linked, manual")
	}
	rootCmd.AddCommand(enterCmd, leaveCmd, startCmd, switchCmd, stopCmd, pauseCmd, resumeCmd, heartbeatCmd)
}
