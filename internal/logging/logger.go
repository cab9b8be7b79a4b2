package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// maxLogSizeMB is the maximum log file size before rotation.
	maxLogSizeMB = 5
	// maxLogBackups is the number of rotated log files to keep.
	maxLogBackups = 3
)

// Options configures InitLogger.
type Options struct {
	// Debug enables DEBUG level and source locations.
	Debug bool
	// File overrides the platform log path. "-" logs to stderr.
	File string
}

// InitLogger initializes a structured logger with platform-specific log file paths.
// The logger writes JSON-formatted logs to a rotating file in the appropriate platform location:
//   - macOS:   ~/Library/Logs/httpspy/httpspy.log
//   - Linux:   ~/.local/state/httpspy/httpspy.log
//   - Windows: %LOCALAPPDATA%\httpspy\Logs\httpspy.log
//
// When opts.Debug is true, the logger uses DEBUG level and includes source locations.
// Otherwise, it uses INFO level without source information.
func InitLogger(appName string, opts Options) (*slog.Logger, error) {
	w, err := openSink(appName, opts.File)
	if err != nil {
		return nil, err
	}
	return newLogger(w, opts.Debug), nil
}

func openSink(appName, file string) (io.Writer, error) {
	if file == "-" {
		return os.Stderr, nil
	}

	logPath := file
	if logPath == "" {
		p, err := getLogFilePath(appName)
		if err != nil {
			return nil, fmt.Errorf("failed to get log file path: %w", err)
		}
		logPath = p
	}

	// Create log directory if it doesn't exist
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
	}, nil
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})

	return slog.New(handler)
}

// getLogFilePath returns the platform-specific log file path.
// It uses runtime.GOOS to detect the current platform and constructs
// the appropriate path based on platform conventions.
func getLogFilePath(appName string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	var logPath string
	switch runtime.GOOS {
	case "darwin": // macOS
		logPath = filepath.Join(homeDir, "Library", "Logs", appName, appName+".log")
	case "linux":
		logPath = filepath.Join(homeDir, ".local", "state", appName, appName+".log")
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			// Fallback if LOCALAPPDATA is not set
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		logPath = filepath.Join(localAppData, appName, "Logs", appName+".log")
	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return logPath, nil
}

// NewConsoleLogger returns a text logger on w for short-lived observers that
// should not keep a log file. It logs warnings and above unless debug is set.
func NewConsoleLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewNopLogger returns a no-op logger for testing.
// All log messages are discarded.
func NewNopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError + 1, // Higher than any log level, effectively disabling all logs
	}))
}
