// Package logging provides structured logging for simflow.
//
// Console output goes to stdout through a zerolog ConsoleWriter. A per-run log
// file can be attached; it starts next to the parameter file and is moved into
// the run directory once that directory is known.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// fileTimeFormat mirrors the timestamp layout operators already grep for in run logs.
const fileTimeFormat = "01/02/2006 03:04:05 PM"

// Logger wraps zerolog with a console sink and an optional run log file.
type Logger struct {
	mu      sync.Mutex
	zlog    zerolog.Logger
	console io.Writer
	file    *lumberjack.Logger
}

// NewLogger creates a logger writing human-readable lines to out.
func NewLogger(out io.Writer) *Logger {
	l := &Logger{console: consoleWriter(out)}
	l.rebuild()
	return l
}

// NewDefaultCLILogger creates a logger writing to stdout.
func NewDefaultCLILogger() *Logger {
	return NewLogger(os.Stdout)
}

// NewNopLogger creates a logger that discards everything. Used by tests.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop(), console: io.Discard}
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	noColor := true
	if f, ok := out.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		NoColor:    noColor,
	}
}

func (l *Logger) rebuild() {
	var w io.Writer = l.console
	if l.file != nil {
		w = zerolog.MultiLevelWriter(l.console, zerolog.ConsoleWriter{
			Out:        l.file,
			TimeFormat: fileTimeFormat,
			NoColor:    true,
		})
	}
	l.zlog = zerolog.New(w).With().Timestamp().Logger()
}

// LogFileName builds the run log name for a logger prefix, e.g. Workflow_2025-01-31T10:00:00CET.log.
func LogFileName(prefix string, now time.Time) string {
	zone, _ := now.Zone()
	return fmt.Sprintf("%s_%s%s.log", prefix, now.Format("2006-01-02T15:04:05"), zone)
}

// AttachFile starts writing a copy of every log line to dir/name.
func (l *Logger) AttachFile(dir, name string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}
	l.file = &lumberjack.Logger{
		Filename:   filepath.Join(dir, name),
		MaxSize:    10, // MB
		MaxBackups: 3,
	}
	l.rebuild()
	return nil
}

// FilePath returns the current run log path, or "" when no file is attached.
func (l *Logger) FilePath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ""
	}
	return l.file.Filename
}

// MoveFile relocates the run log into dstDir and keeps writing there.
func (l *Logger) MoveFile(dstDir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	src := l.file.Filename
	dst := filepath.Join(dstDir, filepath.Base(src))
	if src == dst {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	if _, err := os.Stat(src); err == nil {
		if err := os.Rename(src, dst); err != nil {
			l.rebuild()
			return fmt.Errorf("failed to move log file to %s: %w", dstDir, err)
		}
	}
	l.file = &lumberjack.Logger{
		Filename:   dst,
		MaxSize:    l.file.MaxSize,
		MaxBackups: l.file.MaxBackups,
	}
	l.rebuild()
	return nil
}

// Close flushes and closes the run log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.rebuild()
	return err
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
