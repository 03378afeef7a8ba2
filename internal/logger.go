package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// LogConfig controls how the process-wide logger is built
type LogConfig struct {
	Level   LogLevel
	File    string // optional extra output, appended to
	JSON    bool   // JSON lines on stderr instead of console text
	NoColor bool
}

var (
	logMu    sync.RWMutex
	logLevel = LogLevelInfo
	atom     = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger   = newLogger(LogConfig{Level: LogLevelInfo}, zapcore.Lock(os.Stderr))
	logFile  *os.File // owned by the current logger; closed when replaced
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLogLevel maps a config string onto a LogLevel
func ParseLogLevel(s string) (LogLevel, error) {
	switch s {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "", "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

func newLogger(cfg LogConfig, w zapcore.WriteSyncer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if cfg.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		if !cfg.NoColor {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zap.New(zapcore.NewCore(enc, w, atom))
}

// InitLogging rebuilds the process-wide logger. When cfg.File is set, log
// lines are also appended to that file as JSON.
func InitLogging(cfg LogConfig) error {
	SetLogLevel(cfg.Level)

	base := newLogger(cfg, zapcore.Lock(os.Stderr))
	var f *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		var err error
		f, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(f),
			atom,
		)
		base = zap.New(zapcore.NewTee(base.Core(), fileCore))
	}

	replaceLogger(base, f)
	return nil
}

// replaceLogger installs l and closes the file owned by the previous logger
func replaceLogger(l *zap.Logger, f *os.File) {
	logMu.Lock()
	old, oldFile := logger, logFile
	logger, logFile = l, f
	logMu.Unlock()

	_ = old.Sync()
	if oldFile != nil {
		if err := oldFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}
}

// CloseLogging flushes the logger, closes its log file and falls back to
// stderr at the current level.
func CloseLogging() {
	replaceLogger(newLogger(LogConfig{Level: CurrentLogLevel()}, zapcore.Lock(os.Stderr)), nil)
}

// Logger returns the structured logger for callers that want typed fields
func Logger() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// SyncLogger flushes buffered log entries
func SyncLogger() {
	_ = Logger().Sync()
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	logMu.Lock()
	logLevel = level
	logMu.Unlock()
	atom.SetLevel(level.zapLevel())
}

// CurrentLogLevel reports the active level
func CurrentLogLevel() LogLevel {
	logMu.RLock()
	defer logMu.RUnlock()
	return logLevel
}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		SetLogLevel(LogLevelDebug)
	} else {
		SetLogLevel(LogLevelInfo)
	}
}

func sugar() *zap.SugaredLogger {
	return Logger().WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	sugar().Errorf(format, args...)
}

// LogWarn logs a warning message
func LogWarn(format string, args ...interface{}) {
	sugar().Warnf(format, args...)
}

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) {
	sugar().Infof(format, args...)
}

// LogDebug logs a debug message
func LogDebug(format string, args ...interface{}) {
	sugar().Debugf(format, args...)
}
