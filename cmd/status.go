package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iksnae/tempo/internal/ipc"
)

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Width(10)

	projectStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	durationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)
)

// formatDuration renders whole seconds as "1h 2m 3s"
func formatDuration(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	h := int64(d / time.Hour)
	m := int64(d%time.Hour) / int64(time.Minute)
	s := int64(d%time.Minute) / int64(time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label), value)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and the active session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		client, err := newClient()
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)

		status, err := client.Status(ctx)
		switch {
		case errors.Is(err, ipc.ErrDaemonNotRunning):
			fmt.Fprintln(out, warningStyle.Render("Daemon is not running"))
			fmt.Fprintln(out, "   Start it with: tempo daemon")
			return nil
		case errors.Is(err, ipc.ErrDaemonUnresponsive):
			fmt.Fprintln(out, errorStyle.Render("Daemon is not responding"))
			fmt.Fprintln(out, "   It may be busy or hung; try: tempo shutdown --force")
			return err
		case err != nil:
			return err
		}

		fmt.Fprintln(out, successStyle.Render("Daemon running"), infoStyle.Render("(uptime "+formatDuration(status.Uptime)+")"))
		s := status.ActiveSession
		if s == nil {
			fmt.Fprintln(out, "No active session")
			return nil
		}

		state := "active"
		if m, err := client.Metrics(ctx); err == nil && m.Paused {
			state = warningStyle.Render("paused")
		}
		fmt.Fprintln(out)
		printField(out, "Project", projectStyle.Render(s.ProjectName))
		printField(out, "Path", s.ProjectPath)
		printField(out, "Context", s.Context)
		printField(out, "Started", s.StartTime.Local().Format("2006-01-02 15:04"))
		printField(out, "Duration", durationStyle.Render(formatDuration(s.Duration)))
		printField(out, "State", state)
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the daemon answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		start := time.Now()
		if err := client.Ping(commandContext(cmd)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pong (%s)\n", time.Since(start).Round(time.Microsecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, pingCmd)
}
