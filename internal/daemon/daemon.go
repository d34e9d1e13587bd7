package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/steveyegge/wiki-link/internal/logging"
	"github.com/steveyegge/wiki-link/internal/mirror"
)

// ErrSubscriptionLost is returned by Run when the watch subsystem closes its
// event stream while the daemon is still running.
var ErrSubscriptionLost = errors.New("watch subscription lost")

// Config holds configuration for the daemon.
type Config struct {
	// ResyncOnOverflow runs a full bulk pass after the watch subsystem reports
	// dropped events.
	ResyncOnOverflow bool

	// Logger for daemon activity
	Logger zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ResyncOnOverflow: true,
		Logger:           zerolog.Nop(),
	}
}

// Router applies one change event to the mirror tree.
type Router interface {
	Route(ctx context.Context, ev mirror.ChangeEvent) error
}

// Crawler performs a full bulk pass.
type Crawler interface {
	Crawl(ctx context.Context) (mirror.CrawlStats, error)
}

// Daemon feeds change notifications from a Source through a Router, one at a
// time, until cancelled.
type Daemon struct {
	root    string
	source  Source
	router  Router
	crawler Crawler
	config  *Config
	logger  zerolog.Logger
}

// New creates a Daemon watching root.
//
// The daemon requires:
//   - source: the watch subsystem (a *FileWatcher in production)
//   - router: applies each event to the mirror tree
//
// crawler may be nil, in which case overflow recovery is only logged.
func New(root string, source Source, router Router, crawler Crawler, config *Config) (*Daemon, error) {
	if root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	return &Daemon{
		root:    root,
		source:  source,
		router:  router,
		crawler: crawler,
		config:  config,
		logger:  logging.Component(config.Logger, "daemon"),
	}, nil
}

// Run subscribes to the source tree and routes events until ctx is cancelled.
//
// Events are handled strictly in delivery order; the next event is not read
// until the current one has been routed. On cancellation the event in flight
// finishes before the subscription is released. Run returns nil on
// cancellation and ErrSubscriptionLost if the event stream ends on its own.
func (d *Daemon) Run(ctx context.Context) (err error) {
	if err := d.source.Subscribe(d.root); err != nil {
		return fmt.Errorf("subscribe %s: %w", d.root, err)
	}
	d.logger.Info().Str("root", d.root).Msg("Watching for changes")

	defer func() {
		if uerr := d.source.Unsubscribe(); uerr != nil {
			d.logger.Warn().Err(uerr).Msg("Error releasing subscription")
			if err == nil {
				err = uerr
			}
		}
		d.logger.Info().Msg("Watch stopped")
	}()

	// Routing is detached from ctx so shutdown never interrupts a conversion.
	routeCtx := context.WithoutCancel(ctx)
	events := d.source.Events()
	errs := d.source.Errors()

	for {
		// Prefer shutdown over queued work once cancelled.
		if ctx.Err() != nil {
			d.logger.Info().Msg("Shutdown signal received")
			return nil
		}

		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Shutdown signal received")
			return nil

		case ev, ok := <-events:
			if !ok {
				return ErrSubscriptionLost
			}
			if err := d.router.Route(routeCtx, ev); err != nil {
				d.logger.Error().Err(err).Stringer("event", ev).Msg("Failed to apply event")
			}

		case werr, ok := <-errs:
			if !ok {
				// Keep draining events; a closed error stream alone is not fatal.
				errs = nil
				continue
			}
			d.handleWatchError(ctx, werr)
		}
	}
}

func (d *Daemon) handleWatchError(ctx context.Context, err error) {
	if !errors.Is(err, ErrOverflow) {
		d.logger.Error().Err(err).Msg("Watcher error")
		return
	}

	if !d.config.ResyncOnOverflow || d.crawler == nil {
		d.logger.Warn().Err(err).Msg("Events were dropped; mirror may be stale until the next bulk pass")
		return
	}

	d.logger.Warn().Err(err).Msg("Events were dropped, resynchronizing")
	// Cancelling the resync skips documents not yet started; conversions
	// already running still complete.
	if _, err := d.crawler.Crawl(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			d.logger.Info().Msg("Resync interrupted by shutdown")
			return
		}
		d.logger.Error().Err(err).Msg("Resync failed")
	}
}
