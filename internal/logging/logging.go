// Package logging sets up the ambient slog.Logger used throughout the
// autofix pipeline: dual stderr+file output and two custom verbosity levels
// below slog.LevelDebug, following medivac/cmd/medivac/main.go's
// newFileLogger/verbosityLevel pattern.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Custom levels below slog.LevelDebug (-4), mirroring
// medivac/github/triage.go's LevelTrace and medivac's -vvv/-vvvv tiers.
const (
	LevelTrace slog.Level = -8
	LevelDump  slog.Level = -12
)

// LevelFromVerbosity maps a cobra CountVarP verbosity count onto a
// slog.Level: 0→Info, 1→Debug, 2→Trace, 3+→Dump.
func LevelFromVerbosity(count int) slog.Level {
	switch {
	case count >= 3:
		return LevelDump
	case count == 2:
		return LevelTrace
	case count == 1:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing structured text to stderr only, at level.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewFileLogger returns a logger writing to both stderr and a timestamped
// file under logDir, the resolved file path, and a close function. Falls
// back to stderr-only if logDir cannot be created or opened.
func NewFileLogger(logDir string, level slog.Level) (logger *slog.Logger, logFile string, closeFn func()) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return New(level), "", func() {}
	}

	path := filepath.Join(logDir, time.Now().Format("2006-01-02T15-04-05")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return New(level), "", func() {}
	}

	w := io.MultiWriter(os.Stderr, f)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), path, func() { f.Close() }
}
