package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/steveyegge/wiki-link/internal/logging"
)

// Default converter format selectors.
const (
	DefaultFrom = "dokuwiki"
	DefaultTo   = "markdown"
)

// ConverterConfig configures the external converter invocation.
type ConverterConfig struct {
	// Command is the converter executable (path or name resolved via PATH).
	Command string

	// From and To are the source and target format selectors.
	From string
	To   string

	// Timeout bounds a single conversion; zero means no limit.
	Timeout time.Duration

	Logger   zerolog.Logger
	Reporter Reporter
}

// Outcome is the result of converting one document.
type Outcome struct {
	Source string
	Dest   string
	Bytes  int
	Err    error
}

// OK reports whether the conversion succeeded and the mirror was written.
func (o Outcome) OK() bool { return o.Err == nil }

// Converter runs the external conversion tool for single documents.
type Converter struct {
	command  string
	from     string
	to       string
	timeout  time.Duration
	logger   zerolog.Logger
	reporter Reporter
}

// NewConverter creates a Converter. Command must be set.
func NewConverter(cfg ConverterConfig) (*Converter, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("converter command cannot be empty")
	}
	if cfg.From == "" {
		cfg.From = DefaultFrom
	}
	if cfg.To == "" {
		cfg.To = DefaultTo
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter
	}
	return &Converter{
		command:  cfg.Command,
		from:     cfg.From,
		to:       cfg.To,
		timeout:  cfg.Timeout,
		logger:   logging.Component(cfg.Logger, "converter"),
		reporter: cfg.Reporter,
	}, nil
}

// Args returns the converter arguments for document.
func (c *Converter) Args(document string) []string {
	return []string{"--from", c.from, "--to", c.to, document}
}

// Convert converts document and writes the result to dest. Failures are logged
// and returned in the Outcome; dest is left untouched when conversion fails.
func (c *Converter) Convert(ctx context.Context, document, dest string) Outcome {
	out := Outcome{Source: document, Dest: dest}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		out.Err = fmt.Errorf("create parent of %s: %w", dest, err)
		return c.finish(out)
	}

	data, err := c.run(ctx, document)
	if err != nil {
		out.Err = err
		return c.finish(out)
	}

	if err := writeFileAtomic(dest, data); err != nil {
		out.Err = err
		return c.finish(out)
	}
	out.Bytes = len(data)
	return c.finish(out)
}

func (c *Converter) run(ctx context.Context, document string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.command, c.Args(document)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Grandchildren may hold the pipes open after a kill.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		c.logger.Debug().Str("document", document).Str("stderr", msg).Msg("Converter stderr")
	}
	if err == nil {
		c.logger.Trace().Str("document", document).Dur("duration", time.Since(start)).Msg("Converter finished")
		return stdout.Bytes(), nil
	}

	convErr := &ConversionError{
		Source: document,
		Stderr: strings.TrimSpace(stderr.String()),
		Err:    ErrConverterFailed,
	}
	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		convErr.Err = ErrConverterTimeout
	case errors.As(err, &exitErr):
		convErr.ExitCode = exitErr.ExitCode()
	default:
		convErr.Err = fmt.Errorf("%w: %v", ErrConverterFailed, err)
	}
	return nil, convErr
}

func (c *Converter) finish(out Outcome) Outcome {
	if out.Err != nil {
		c.logger.Warn().Err(out.Err).Str("document", out.Source).Msg("Conversion failed, mirror left unchanged")
		c.reporter.Report(Activity{Kind: ActivityFailed, Source: out.Source, Dest: out.Dest, Err: out.Err})
		return out
	}
	c.logger.Info().Str("document", out.Source).Str("dest", out.Dest).Int("bytes", out.Bytes).Msg("Converted")
	c.reporter.Report(Activity{Kind: ActivityConverted, Source: out.Source, Dest: out.Dest, Bytes: out.Bytes})
	return out
}

// writeFileAtomic replaces path with data so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
