// Package logger provides the process-wide printf-style logging facade.
// It is a thin wrapper over logrus so that call sites stay terse:
//
//	logger.Info("[Pipeline] request completed in %dms", latency)
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	std  = logrus.New()
	mu   sync.Mutex
	file *os.File
)

func init() {
	std.SetOutput(os.Stderr)
	std.SetLevel(logrus.InfoLevel)
	std.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
}

// InitLog configures the logger to additionally write to the given file path.
// Directories are created as needed. Safe to call once at startup.
func InitLog(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %q: %w", path, err)
	}
	file = f
	std.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// SetLevel sets the logging level by name (debug, info, warn, error).
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		std.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		std.SetLevel(logrus.WarnLevel)
	case "error":
		std.SetLevel(logrus.ErrorLevel)
	default:
		std.SetLevel(logrus.InfoLevel)
	}
}

// FlushLog syncs and closes the log file, if one was opened.
func FlushLog() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		_ = file.Sync()
		_ = file.Close()
		file = nil
		std.SetOutput(os.Stderr)
	}
}

// Debug logs a debug-level message.
func Debug(format string, args ...any) { std.Debugf(format, args...) }

// Info logs an info-level message.
func Info(format string, args ...any) { std.Infof(format, args...) }

// Warn logs a warn-level message.
func Warn(format string, args ...any) { std.Warnf(format, args...) }

// Error logs an error-level message.
func Error(format string, args ...any) { std.Errorf(format, args...) }

// Fatal logs an error-level message and exits.
func Fatal(format string, args ...any) { std.Fatalf(format, args...) }
