package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/steveyegge/wiki-link/internal/config"
	"github.com/steveyegge/wiki-link/internal/daemon"
	"github.com/steveyegge/wiki-link/internal/dashboard"
	"github.com/steveyegge/wiki-link/internal/logging"
	"github.com/steveyegge/wiki-link/internal/mirror"
)

func newRootCmd() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "wiki-link [flags] <wiki-src-dir> <markdown-dest-dir>",
		Short: "Render a DokuWiki page tree into markdown somewhere else",
		Long: `Mirror a tree of DokuWiki pages into a parallel tree of converted documents.

By default wiki-link:
  1. Converts every page under the source directory (bulk pass)
  2. Watches the source directory and mirrors creations, edits, and deletions
     until interrupted with Ctrl+C

Each page is converted by an external tool (pandoc by default) and written to
the same relative path under the destination directory.`,
		Args:          cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runMirror(cmd, configFile, args[0], args[1])
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (toml, yaml, or json)")
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newConfigCmd(&configFile))
	return rootCmd
}

func runMirror(cmd *cobra.Command, configFile, source, dest string) error {
	cfg, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger, closer, err := logging.New(logging.Options{
		Level:   cfg.Log,
		File:    cfg.LogFile,
		Console: cmd.ErrOrStderr(),
		RunID:   runID,
	})
	if err != nil {
		return &config.Error{Field: "log", Err: err}
	}
	defer closer.Close()

	res, err := cfg.Resolve(source, dest)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration rejected")
		return err
	}

	logger.Info().
		Str("source", res.SourceRoot).
		Str("dest", res.DestRoot).
		Str("converter", res.ConverterPath).
		Bool("bulk", res.Bulk).
		Bool("watch", res.Watch).
		Msg("wiki-sync'ing")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporter := mirror.NopReporter
	if res.Dashboard != "" {
		server := dashboard.NewServer(&dashboard.Config{Addr: res.Dashboard, Logger: logger})
		reporter = dashboard.NewHandler(server, runID, logger)
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()
	}

	return run(ctx, res, logger, reporter)
}

// run performs the bulk pass and then watch mode, as enabled.
func run(ctx context.Context, res *config.Resolved, logger zerolog.Logger, reporter mirror.Reporter) error {
	mapper := mirror.Mapper{
		SourceRoot: res.SourceRoot,
		DestRoot:   res.DestRoot,
		Suffix:     res.Suffix,
		DestSuffix: res.DestSuffix,
	}

	conv, err := mirror.NewConverter(mirror.ConverterConfig{
		Command:  res.ConverterPath,
		From:     res.From,
		To:       res.To,
		Timeout:  res.Timeout,
		Logger:   logger,
		Reporter: reporter,
	})
	if err != nil {
		return err
	}

	crawler := mirror.NewCrawler(mapper, conv, mirror.CrawlerConfig{
		Workers:  res.Workers,
		Logger:   logger,
		Reporter: reporter,
	})

	if res.Bulk {
		if _, err := crawler.Crawl(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("Interrupted during bulk pass")
				return nil
			}
			return err
		}
	}

	if !res.Watch {
		return nil
	}

	fw, err := daemon.NewFileWatcher(res.EventBuffer, logger)
	if err != nil {
		return err
	}
	defer fw.Close()

	router := mirror.NewRouter(mapper, conv, mirror.RouterConfig{
		PruneMoved: res.PruneMoved,
		Logger:     logger,
		Reporter:   reporter,
	})

	d, err := daemon.New(res.SourceRoot, fw, router, crawler, &daemon.Config{
		ResyncOnOverflow: res.ResyncOnOverflow,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	return d.Run(ctx)
}
