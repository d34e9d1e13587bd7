package mirror

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/steveyegge/wiki-link/internal/logging"
	"golang.org/x/sync/errgroup"
)

// CrawlerConfig configures a bulk pass.
type CrawlerConfig struct {
	// Workers bounds concurrent conversions. Values below 1 mean 1.
	Workers int

	Logger   zerolog.Logger
	Reporter Reporter
}

// Crawler performs the bulk pass: every document under the source root is
// converted, unconditionally, on every run.
type Crawler struct {
	mapper    Mapper
	converter *Converter
	workers   int
	logger    zerolog.Logger
	reporter  Reporter
}

// NewCrawler creates a Crawler over mapper's trees.
func NewCrawler(mapper Mapper, converter *Converter, cfg CrawlerConfig) *Crawler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter
	}
	return &Crawler{
		mapper:    mapper,
		converter: converter,
		workers:   cfg.Workers,
		logger:    logging.Component(cfg.Logger, "crawler"),
		reporter:  cfg.Reporter,
	}
}

// Crawl walks the source tree once and converts every document it finds.
//
// Individual conversion failures and unreadable subdirectories are logged and
// skipped. An error is returned only when the source root itself cannot be
// walked or ctx is cancelled.
func (c *Crawler) Crawl(ctx context.Context) (CrawlStats, error) {
	start := time.Now()
	root := c.mapper.SourceRoot
	c.logger.Info().Str("source", root).Str("dest", c.mapper.DestRoot).Int("workers", c.workers).Msg("Starting bulk pass")

	var documents, converted, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			c.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() || !c.mapper.IsDocument(path) {
			return nil
		}

		dest, err := c.mapper.Document(path)
		if err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("Skipping unmappable document")
			return nil
		}

		documents.Add(1)
		g.Go(func() error {
			// Conversion runs to completion even if the crawl is cancelled.
			if out := c.converter.Convert(context.WithoutCancel(gctx), path, dest); out.OK() {
				converted.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
		return nil
	})

	// Wait for in-flight conversions before reporting.
	_ = g.Wait()

	stats := CrawlStats{
		Documents: int(documents.Load()),
		Converted: int(converted.Load()),
		Failed:    int(failed.Load()),
		Duration:  time.Since(start),
	}

	if walkErr != nil {
		return stats, fmt.Errorf("crawl %s: %w", root, walkErr)
	}
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("crawl %s: %w", root, err)
	}

	c.logger.Info().
		Int("documents", stats.Documents).
		Int("converted", stats.Converted).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("Bulk pass complete")
	c.reporter.CrawlComplete(stats)
	return stats, nil
}
