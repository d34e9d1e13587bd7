package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func fakeConverter(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pandoc")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\ncat \"$5\"\n"), 0755))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlags(t), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoad_Flags(t *testing.T) {
	cfg, err := Load(newFlags(t,
		"-l", "debug",
		"--bulk=false",
		"--workers", "4",
		"--timeout", "30s",
		"--dest-suffix", ".md",
		"--prune-moved",
	), "")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log)
	assert.False(t, cfg.Bulk)
	assert.True(t, cfg.Watch)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, ".md", cfg.DestSuffix)
	assert.True(t, cfg.PruneMoved)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("WIKILINK_LOG", "warn")
	t.Setenv("WIKILINK_DEST_SUFFIX", ".markdown")
	t.Setenv("WIKILINK_WATCH", "false")

	cfg, err := Load(newFlags(t), "")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log)
	assert.Equal(t, ".markdown", cfg.DestSuffix)
	assert.False(t, cfg.Watch)
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	t.Setenv("WIKILINK_LOG", "warn")

	cfg, err := Load(newFlags(t, "--log", "error"), "")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wiki-link.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log = "debug"
suffix = ".wiki"
workers = 3
timeout = "2m"
dashboard = "127.0.0.1:9000"
`), 0644))

	cfg, err := Load(newFlags(t, "--workers", "5"), path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log)
	assert.Equal(t, ".wiki", cfg.Suffix)
	assert.Equal(t, 5, cfg.Workers, "flags win over the config file")
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, "127.0.0.1:9000", cfg.Dashboard)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(newFlags(t), filepath.Join(t.TempDir(), "missing.toml"))
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "config", cfgErr.Field)
}

func TestWrite_RoundTrip(t *testing.T) {
	for _, format := range []string{"toml", "yaml"} {
		t.Run(format, func(t *testing.T) {
			want := Default()
			want.Workers = 6
			want.Timeout = 90 * time.Second
			want.DestSuffix = ".md"
			want.Watch = false

			var buf bytes.Buffer
			require.NoError(t, want.Write(&buf, format))

			path := filepath.Join(t.TempDir(), "config."+format)
			require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

			got, err := Load(newFlags(t), path)
			require.NoError(t, err)
			assert.Equal(t, want, *got)
		})
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Write(&bytes.Buffer{}, "ini"))
}

func TestResolve(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	dest := filepath.Join(tmp, "out", "dest")
	require.NoError(t, os.Mkdir(src, 0755))

	cfg := Default()
	cfg.Converter = fakeConverter(t)

	res, err := cfg.Resolve(src, dest)
	require.NoError(t, err)
	assert.Equal(t, src, res.SourceRoot)
	assert.Equal(t, dest, res.DestRoot)
	assert.Equal(t, cfg.Converter, res.ConverterPath)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "destination is created")
}

func TestResolve_Errors(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	require.NoError(t, os.Mkdir(src, 0755))
	file := filepath.Join(tmp, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	conv := fakeConverter(t)

	tests := []struct {
		name   string
		mutate func(*Config)
		source string
		dest   string
		field  string
		is     error
	}{
		{"nothing to do", func(c *Config) { c.Bulk, c.Watch = false, false }, src, filepath.Join(tmp, "d1"), "mode", ErrNothingToDo},
		{"source missing", nil, filepath.Join(tmp, "nope"), filepath.Join(tmp, "d2"), "source", os.ErrNotExist},
		{"source is a file", nil, file, filepath.Join(tmp, "d3"), "source", ErrNotDirectory},
		{"destination is a file", nil, src, filepath.Join(file, "sub"), "destination", nil},
		{"destination inside source", nil, src, filepath.Join(src, "mirror"), "destination", ErrNested},
		{"destination equals source", nil, src, src, "destination", ErrNested},
		{"source inside destination", nil, src, tmp, "destination", ErrSourceNested},
		{"source deep inside destination", nil, filepath.Join(src, "sub", ".."), filepath.Dir(tmp), "destination", ErrSourceNested},
		{"converter missing", func(c *Config) { c.Converter = filepath.Join(tmp, "missing") }, src, filepath.Join(tmp, "d4"), "converter", os.ErrNotExist},
		{"converter is a directory", func(c *Config) { c.Converter = tmp }, src, filepath.Join(tmp, "d5"), "converter", ErrNotRegularFile},
		{"bad workers", func(c *Config) { c.Workers = 0 }, src, filepath.Join(tmp, "d6"), "workers", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Converter = conv
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			_, err := cfg.Resolve(tt.source, tt.dest)
			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr), "expected *config.Error, got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestResolve_ConverterFromPath(t *testing.T) {
	conv := fakeConverter(t)
	t.Setenv("PATH", filepath.Dir(conv))

	tmp := t.TempDir()
	cfg := Default()
	res, err := cfg.Resolve(tmp, filepath.Join(t.TempDir(), "dest"))
	require.NoError(t, err)
	assert.Equal(t, conv, res.ConverterPath)
}

func TestResolve_ConverterNotOnPath(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	cfg := Default()
	_, err := cfg.Resolve(t.TempDir(), filepath.Join(t.TempDir(), "dest"))
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "converter", cfgErr.Field)
}
