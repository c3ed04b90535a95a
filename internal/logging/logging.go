// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level and outputs.
type Config struct {
	// Level is a zerolog level name; empty means info
	Level string

	// File, when set, receives JSON logs with size-based rotation
	File      string
	MaxSizeMB int

	// Console forces the human-readable writer on stderr. When false it
	// is used only if stderr is a terminal.
	Console bool

	// Stderr overrides the terminal stream, mainly for tests
	Stderr io.Writer
}

// New returns a logger writing to stderr and, optionally, a rotating file.
func New(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	stderr := cfg.Stderr
	console := cfg.Console
	if stderr == nil {
		stderr = os.Stderr
		console = console || term.IsTerminal(int(os.Stderr.Fd()))
	}

	var out io.Writer = stderr
	if console {
		out = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.DateTime}
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to create log directory: %w", err)
		}
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: 3,
			MaxAge:     28,
		})
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
