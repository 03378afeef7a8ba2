package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/iksnae/tempo/internal"
	"github.com/iksnae/tempo/internal/ipc"
	"github.com/iksnae/tempo/internal/pool"
	"github.com/iksnae/tempo/internal/project"
	"github.com/iksnae/tempo/internal/store"
)

// Options configures Run
type Options struct {
	// DataDir overrides data directory detection
	DataDir string
	// ConfigPath overrides <data dir>/config.yaml
	ConfigPath string
	// Verbose forces debug logging
	Verbose bool
	// NoLogFile disables the log file regardless of config
	NoLogFile bool
	// LogJSON writes stderr logs as JSON lines
	LogJSON bool
}

// Run starts the daemon and blocks until it is shut down by a client, a
// signal, or ctx. The socket is bound before crash recovery so a second
// daemon fails without touching the first one's sessions. Sockets and pid
// files are removed on the way out.
func Run(ctx context.Context, opts Options) error {
	paths, err := dataPaths(opts.DataDir)
	if err != nil {
		return err
	}
	if err := paths.Ensure(); err != nil {
		return err
	}

	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		cfgPath = paths.ConfigPath()
	}
	cfg, err := internal.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	if err := setupLogging(cfg, paths, opts); err != nil {
		return err
	}
	defer internal.CloseLogging()

	ln, err := Listen(paths.SocketPath())
	if err != nil {
		return err
	}
	defer func() {
		_ = ln.Close()
		if err := os.Remove(paths.SocketPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			internal.LogWarn("Failed to remove socket: %v", err)
		}
	}()

	if err := ipc.WritePIDFile(paths.PIDFilePath()); err != nil {
		return err
	}
	defer func() {
		if err := ipc.RemovePIDFile(paths.PIDFilePath()); err != nil {
			internal.LogWarn("Failed to remove pid file: %v", err)
		}
	}()

	st, err := store.Open(ctx, paths.DatabasePath(), pool.FromSettings(cfg.Pool))
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			internal.LogWarn("Failed to close store: %v", err)
		}
	}()

	state := NewState(project.NewResolver(st), st, cfg.IdleTimeout)
	if err := state.Initialize(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := NewServer(state, ln, cancel)
	monitor := NewIdleMonitor(state, cfg.IdleCheckInterval)

	internal.LogInfo("Daemon started (pid %d, data dir %s)", os.Getpid(), paths.BaseDir)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return watchSignals(gctx, cancel) })
	err = g.Wait()

	// The session may already be stopped by a Shutdown request.
	state.Shutdown(context.Background())
	internal.LogInfo("Daemon stopped")
	return err
}

func dataPaths(dir string) (internal.DataPaths, error) {
	if dir != "" {
		return internal.NewDataPaths(dir), nil
	}
	return internal.DetectDataPaths()
}

func logConfig(cfg *internal.Config, paths internal.DataPaths, opts Options) (internal.LogConfig, error) {
	level, err := internal.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return internal.LogConfig{}, &internal.ConfigError{Path: paths.ConfigPath(), Err: err}
	}
	if opts.Verbose {
		level = internal.LogLevelDebug
	}
	lc := internal.LogConfig{Level: level, JSON: opts.LogJSON}
	if cfg.LogToFile && !opts.NoLogFile {
		lc.File = paths.LogFilePath()
	}
	return lc, nil
}

func setupLogging(cfg *internal.Config, paths internal.DataPaths, opts Options) error {
	lc, err := logConfig(cfg, paths, opts)
	if err != nil {
		return err
	}
	if err := internal.InitLogging(lc); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

func watchSignals(ctx context.Context, cancel context.CancelFunc) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-ctx.Done():
	case sig := <-sigs:
		internal.LogInfo("Received %s, shutting down", sig)
		cancel()
	}
	return nil
}
