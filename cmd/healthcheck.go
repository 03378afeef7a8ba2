package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/iksnae/tempo/internal"
	"github.com/iksnae/tempo/internal/ipc"
	"github.com/iksnae/tempo/internal/pool"
	"github.com/iksnae/tempo/internal/store"
)

var (
	healthcheckVerbose bool
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that tempo can find its data and reach the daemon",
	Long: `Check the health of tempo by verifying:
  • Data directory detection
  • Configuration file
  • Database accessibility and open sessions
  • Daemon reachability

This command is useful for debugging shell hooks that silently fail.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := commandContext(cmd)
		fmt.Fprintln(out, sectionStyle.Render("tempo health check"))
		fmt.Fprintln(out)

		// Step 1: Detect data directory
		fmt.Fprintln(out, infoStyle.Render("Step 1: Detecting data directory..."))
		paths, err := resolvePaths()
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("Failed to detect data directory:"), err)
			return err
		}
		fmt.Fprintln(out, successStyle.Render("Data directory: ")+paths.BaseDir)
		if healthcheckVerbose {
			fmt.Fprintf(out, "   Socket:   %s\n", paths.SocketPath())
			fmt.Fprintf(out, "   PID file: %s\n", paths.PIDFilePath())
			fmt.Fprintf(out, "   Database: %s\n", paths.DatabasePath())
		}
		fmt.Fprintln(out)

		// Step 2: Load configuration
		fmt.Fprintln(out, infoStyle.Render("Step 2: Loading configuration..."))
		cfg, err := internal.LoadConfig(resolveConfigPath(paths))
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("Configuration is invalid:"), err)
			return err
		}
		fmt.Fprintln(out, successStyle.Render("Configuration OK"))
		if healthcheckVerbose {
			fmt.Fprintf(out, "   Idle timeout: %s (checked every %s)\n", cfg.IdleTimeout, cfg.IdleCheckInterval)
			fmt.Fprintf(out, "   Pool: %d-%d connections\n", cfg.Pool.MinConnections, cfg.Pool.MaxConnections)
		}
		fmt.Fprintln(out)

		// Step 3: Open the database
		fmt.Fprintln(out, infoStyle.Render("Step 3: Checking database..."))
		summary, err := inspectDatabase(ctx, paths)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("Database check failed:"), err)
			return err
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Database OK: %d project(s), %d open session(s)", summary.projects, summary.open)))
		if healthcheckVerbose && summary.latest != nil {
			fmt.Fprintf(out, "   Latest session: #%d started %s (%s)\n",
				summary.latest.ID, summary.latest.StartTime.Local().Format(time.RFC3339), summary.latest.Context)
		}
		fmt.Fprintln(out)

		// Step 4: Reach the daemon
		fmt.Fprintln(out, infoStyle.Render("Step 4: Contacting daemon..."))
		client := ipc.NewClient(paths.SocketPath(), cfg.ClientTimeout)
		switch err := client.Ping(ctx); {
		case err == nil:
			fmt.Fprintln(out, successStyle.Render("Daemon is running"))
		case errors.Is(err, ipc.ErrDaemonNotRunning):
			fmt.Fprintln(out, warningStyle.Render("Daemon is not running"))
			if pid, perr := ipc.ReadPIDFile(paths.PIDFilePath()); perr == nil {
				fmt.Fprintf(out, "   Stale pid file for pid %d (alive: %v)\n", pid, ipc.IsProcessAlive(pid))
			}
		default:
			fmt.Fprintln(out, errorStyle.Render("Daemon is not responding:"), err)
			return err
		}
		return nil
	},
}

type dbSummary struct {
	projects int
	open     int
	latest   *internal.Session
}

// inspectDatabase counts projects and open sessions, creating the database
// if it does not exist yet.
func inspectDatabase(ctx context.Context, paths internal.DataPaths) (dbSummary, error) {
	cfg := pool.DefaultConfig()
	cfg.MinConnections = 1
	cfg.MaxConnections = 1
	cfg.AcquireTimeout = 5 * time.Second

	st, err := store.Open(ctx, paths.DatabasePath(), cfg)
	if err != nil {
		return dbSummary{}, err
	}
	defer st.Close()

	projects, err := st.ListProjects(ctx, true)
	if err != nil {
		return dbSummary{}, err
	}
	open, err := st.ListOpenSessions(ctx)
	if err != nil {
		return dbSummary{}, err
	}
	summary := dbSummary{projects: len(projects), open: len(open)}

	recent, err := st.ListSessions(ctx, store.SessionFilter{Limit: 1})
	if err != nil {
		return dbSummary{}, err
	}
	if len(recent) > 0 {
		summary.latest = recent[0]
	}
	return summary, nil
}

func init() {
	healthcheckCmd.Flags().BoolVarP(&healthcheckVerbose, "verbose", "v", false, "Show detailed information")
	rootCmd.AddCommand(healthcheckCmd)
}
