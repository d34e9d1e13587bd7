// Package config loads and validates wiki-link settings.
//
// Settings come from, in order of precedence: command-line flags, WIKILINK_*
// environment variables, an optional config file (toml, yaml, or json), and
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/wiki-link/internal/daemon"
	"github.com/steveyegge/wiki-link/internal/mirror"
)

// EnvPrefix prefixes environment variable overrides, e.g. WIKILINK_LOG_FILE.
const EnvPrefix = "WIKILINK"

// DefaultConverter is looked up on PATH when no converter is configured.
const DefaultConverter = "pandoc"

// Config holds every setting except the two positional directories.
type Config struct {
	Log              string        `mapstructure:"log"`
	LogFile          string        `mapstructure:"log-file"`
	Bulk             bool          `mapstructure:"bulk"`
	Watch            bool          `mapstructure:"watch"`
	Converter        string        `mapstructure:"converter"`
	From             string        `mapstructure:"from"`
	To               string        `mapstructure:"to"`
	Suffix           string        `mapstructure:"suffix"`
	DestSuffix       string        `mapstructure:"dest-suffix"`
	PruneMoved       bool          `mapstructure:"prune-moved"`
	ResyncOnOverflow bool          `mapstructure:"resync-on-overflow"`
	Workers          int           `mapstructure:"workers"`
	Timeout          time.Duration `mapstructure:"timeout"`
	EventBuffer      int           `mapstructure:"event-buffer"`
	Dashboard        string        `mapstructure:"dashboard"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Log:              "info",
		Bulk:             true,
		Watch:            true,
		From:             mirror.DefaultFrom,
		To:               mirror.DefaultTo,
		Suffix:           ".txt",
		ResyncOnOverflow: true,
		Workers:          1,
		EventBuffer:      daemon.DefaultEventBuffer,
	}
}

// RegisterFlags adds every setting as a flag on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.StringP("log", "l", d.Log, "Log level (trace, debug, info, warn, error)")
	fs.String("log-file", d.LogFile, "Also write JSON logs to this file (rotated)")
	fs.Bool("bulk", d.Bulk, "Convert the whole source tree at startup")
	fs.Bool("watch", d.Watch, "Watch the source tree and mirror changes until interrupted")
	fs.String("converter", d.Converter, "Converter executable (default: pandoc from PATH)")
	fs.String("from", d.From, "Converter source format")
	fs.String("to", d.To, "Converter target format")
	fs.String("suffix", d.Suffix, "Suffix identifying source documents")
	fs.String("dest-suffix", d.DestSuffix, "Replace the document suffix in the mirror (default: keep it)")
	fs.Bool("prune-moved", d.PruneMoved, "Remove the old mirror when a document or directory is moved")
	fs.Bool("resync-on-overflow", d.ResyncOnOverflow, "Run a full pass when watch events are dropped")
	fs.Int("workers", d.Workers, "Parallel conversions during the bulk pass")
	fs.Duration("timeout", d.Timeout, "Per-document conversion timeout (0 = none)")
	fs.Int("event-buffer", d.EventBuffer, "Buffered watch events before delivery blocks")
	fs.String("dashboard", d.Dashboard, "Serve a live activity dashboard on this address, e.g. 127.0.0.1:8080")
}

// Load resolves settings from flags, environment, and the optional file.
func Load(fs *pflag.FlagSet, file string) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("log", d.Log)
	v.SetDefault("bulk", d.Bulk)
	v.SetDefault("watch", d.Watch)
	v.SetDefault("from", d.From)
	v.SetDefault("to", d.To)
	v.SetDefault("suffix", d.Suffix)
	v.SetDefault("resync-on-overflow", d.ResyncOnOverflow)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("event-buffer", d.EventBuffer)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, &Error{Field: "flags", Err: err}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Field: "config", Err: err}
		}
	}

	cfg := d
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &Error{Field: "config", Err: err}
	}
	return &cfg, nil
}

// Error is a fatal configuration problem, reported before any work starts.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrNothingToDo is returned when both the bulk pass and watch mode are disabled.
	ErrNothingToDo = errors.New("neither bulk nor watch requested")

	// ErrNotDirectory is returned when the source is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotRegularFile is returned when a supplied converter is not a regular file.
	ErrNotRegularFile = errors.New("not a regular file")

	// ErrNested is returned when the destination lies inside the source tree.
	ErrNested = errors.New("destination is inside the source tree")

	// ErrSourceNested is returned when the source lies inside the destination
	// tree, where mirror paths could land on source files.
	ErrSourceNested = errors.New("source is inside the destination tree")
)

// Resolved is a validated configuration ready to run.
type Resolved struct {
	Config

	SourceRoot    string
	DestRoot      string
	ConverterPath string
}

// Resolve validates c against the two positional directories and prepares the
// destination root, creating it if needed.
func (c *Config) Resolve(source, dest string) (*Resolved, error) {
	if !c.Bulk && !c.Watch {
		return nil, &Error{Field: "mode", Err: ErrNothingToDo}
	}
	if c.Workers < 1 {
		return nil, &Error{Field: "workers", Err: fmt.Errorf("must be at least 1, got %d", c.Workers)}
	}
	if c.Timeout < 0 {
		return nil, &Error{Field: "timeout", Err: fmt.Errorf("must not be negative, got %s", c.Timeout)}
	}

	src, err := filepath.Abs(source)
	if err != nil {
		return nil, &Error{Field: "source", Err: err}
	}
	info, err := os.Stat(src)
	if err != nil {
		return nil, &Error{Field: "source", Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Field: "source", Err: fmt.Errorf("%s: %w", src, ErrNotDirectory)}
	}

	dst, err := filepath.Abs(dest)
	if err != nil {
		return nil, &Error{Field: "destination", Err: err}
	}
	if within(src, dst) {
		return nil, &Error{Field: "destination", Err: fmt.Errorf("%s: %w", dst, ErrNested)}
	}
	if within(dst, src) {
		return nil, &Error{Field: "destination", Err: fmt.Errorf("%s: %w", dst, ErrSourceNested)}
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return nil, &Error{Field: "destination", Err: err}
	}

	conv, err := c.resolveConverter()
	if err != nil {
		return nil, &Error{Field: "converter", Err: err}
	}

	return &Resolved{
		Config:        *c,
		SourceRoot:    src,
		DestRoot:      dst,
		ConverterPath: conv,
	}, nil
}

// within reports whether path is root or lies beneath it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c *Config) resolveConverter() (string, error) {
	if c.Converter == "" {
		path, err := exec.LookPath(DefaultConverter)
		if err != nil {
			return "", fmt.Errorf("%s not found on PATH: %w", DefaultConverter, err)
		}
		return path, nil
	}

	info, err := os.Stat(c.Converter)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", c.Converter, ErrNotRegularFile)
	}
	return filepath.Abs(c.Converter)
}

// fileView is the on-disk shape of Config, as accepted by --config.
type fileView struct {
	Log              string `toml:"log" yaml:"log"`
	LogFile          string `toml:"log-file" yaml:"log-file"`
	Bulk             bool   `toml:"bulk" yaml:"bulk"`
	Watch            bool   `toml:"watch" yaml:"watch"`
	Converter        string `toml:"converter" yaml:"converter"`
	From             string `toml:"from" yaml:"from"`
	To               string `toml:"to" yaml:"to"`
	Suffix           string `toml:"suffix" yaml:"suffix"`
	DestSuffix       string `toml:"dest-suffix" yaml:"dest-suffix"`
	PruneMoved       bool   `toml:"prune-moved" yaml:"prune-moved"`
	ResyncOnOverflow bool   `toml:"resync-on-overflow" yaml:"resync-on-overflow"`
	Workers          int    `toml:"workers" yaml:"workers"`
	Timeout          string `toml:"timeout" yaml:"timeout"`
	EventBuffer      int    `toml:"event-buffer" yaml:"event-buffer"`
	Dashboard        string `toml:"dashboard" yaml:"dashboard"`
}

// Write encodes c to w in format "toml" or "yaml". The output is a valid
// --config file.
func (c *Config) Write(w io.Writer, format string) error {
	view := fileView{
		Log:              c.Log,
		LogFile:          c.LogFile,
		Bulk:             c.Bulk,
		Watch:            c.Watch,
		Converter:        c.Converter,
		From:             c.From,
		To:               c.To,
		Suffix:           c.Suffix,
		DestSuffix:       c.DestSuffix,
		PruneMoved:       c.PruneMoved,
		ResyncOnOverflow: c.ResyncOnOverflow,
		Workers:          c.Workers,
		Timeout:          c.Timeout.String(),
		EventBuffer:      c.EventBuffer,
		Dashboard:        c.Dashboard,
	}

	switch strings.ToLower(format) {
	case "toml", "":
		return toml.NewEncoder(w).Encode(view)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q (want toml or yaml)", format)
	}
}
