package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogLevel is the minimum severity written to the log file.
type LogLevel = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel maps a config value ("debug", "info", "warn", "error") to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// DefaultLogPath is used when Init is never called.
var DefaultLogPath = filepath.Join(os.TempDir(), "arbor-debug.log")

// mu guards file, base and triedDefault; level is safe on its own. base stays
// nil until a file is open, and the default path is tried only once.
var (
	mu           sync.Mutex
	level        = new(slog.LevelVar)
	file         *os.File
	base         *slog.Logger
	triedDefault bool
)

// open points the package logger at path. Callers hold mu.
func open(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	file = f
	base = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return nil
}

// current returns the package logger, opening DefaultLogPath on first use
// when Init was never called. Callers hold mu.
func current() *slog.Logger {
	if base == nil && !triedDefault {
		triedDefault = true
		if err := open(DefaultLogPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	return base
}

// Init opens path (creating its directory) as the log file. It is a no-op
// once a file is open; call Reset first to switch files.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if base != nil {
		return nil
	}
	if err := open(path); err != nil {
		return err
	}
	base.Info("Logger initialized", "path", path)
	return nil
}

// SetLevel changes the minimum level. Loggers already handed out follow it.
func SetLevel(l LogLevel) {
	level.Set(l)
}

// SetDebug switches between debug and info.
func SetDebug(enabled bool) {
	if enabled {
		SetLevel(LevelDebug)
	} else {
		SetLevel(LevelInfo)
	}
}

func logf(l slog.Level, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	lg := current()
	if lg == nil || !lg.Enabled(context.Background(), l) {
		return
	}
	lg.Log(context.Background(), l, fmt.Sprintf(format, args...))
}

func Debug(format string, args ...any) { logf(LevelDebug, format, args...) }
func Info(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Warn(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Error(format string, args ...any) { logf(LevelError, format, args...) }

// ComponentLogger returns a structured logger tagged with component=name.
// Per-session records add "sessionID" with With:
//
//	log := logger.ComponentLogger("worktree")
//	log.With("sessionID", s.ID).Info("session created", "branch", s.Branch)
func ComponentLogger(name string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	lg := current()
	if lg == nil {
		return slog.Default()
	}
	return lg.With(slog.String("component", name))
}

// Close closes the log file. Later log calls are dropped until Reset.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
	base = nil
	triedDefault = true
}

// Reset closes the log file and restores the initial state so Init can
// open another file. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
	base = nil
	triedDefault = false
	level.Set(LevelInfo)
}
