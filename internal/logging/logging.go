// Package logging configures the zerolog logger used throughout wiki-link.
//
// Console output is human readable and goes to stderr. When a log file is
// configured, JSON lines are also written there through a size-rotated
// lumberjack writer.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	// Level is a level name: trace, debug, info, warn (or warning), error.
	Level string

	// File, when set, receives JSON log lines with rotation.
	File string

	// Console is the human-readable destination; defaults to os.Stderr.
	Console io.Writer

	// RunID tags every entry of one invocation.
	RunID string
}

// ParseLevel converts a level name into a zerolog level.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "critical", "fatal":
		return zerolog.FatalLevel, nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("invalid log level: %s", name)
	}
	return level, nil
}

// New builds a logger from opts. The returned closer flushes and closes the
// log file, if any.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	if level < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(level)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.Kitchen,
		NoColor:    !isTerminal(console),
	}}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		writers = append(writers, rotator)
		closer = rotator
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp()
	if opts.RunID != "" {
		ctx = ctx.Str("run", opts.RunID)
	}
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), closer, nil
}

// Component returns a child logger tagged with a component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
