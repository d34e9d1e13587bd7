package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/steveyegge/wiki-link/internal/logging"
)

// RouterConfig configures event routing.
type RouterConfig struct {
	// PruneMoved removes the old mirror on a Moved event instead of ignoring it.
	PruneMoved bool

	Logger   zerolog.Logger
	Reporter Reporter
}

type routeKey struct {
	kind  EventKind
	isDir bool
}

type action func(r *Router, ctx context.Context, ev ChangeEvent) error

// Router applies change events to the mirror tree. It keeps no state between
// events beyond its dispatch table.
type Router struct {
	mapper    Mapper
	converter *Converter
	table     map[routeKey]action
	logger    zerolog.Logger
	reporter  Reporter
}

// NewRouter creates a Router for mapper's trees.
func NewRouter(mapper Mapper, converter *Converter, cfg RouterConfig) *Router {
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter
	}

	moved := (*Router).ignoreMove
	movedDir := (*Router).ignoreMove
	if cfg.PruneMoved {
		moved = (*Router).removeFile
		movedDir = (*Router).removeTree
	}

	return &Router{
		mapper:    mapper,
		converter: converter,
		table: map[routeKey]action{
			{Created, true}:   (*Router).mkdir,
			{Created, false}:  (*Router).convert,
			{Modified, true}:  (*Router).noop,
			{Modified, false}: (*Router).convert,
			{Deleted, true}:   (*Router).removeTree,
			{Deleted, false}:  (*Router).removeFile,
			{Moved, true}:     movedDir,
			{Moved, false}:    moved,
		},
		logger:   logging.Component(cfg.Logger, "router"),
		reporter: cfg.Reporter,
	}
}

// Route performs the mirror action for ev. Conversion failures are handled
// internally; the returned error is a filesystem or path-mapping failure.
func (r *Router) Route(ctx context.Context, ev ChangeEvent) error {
	if !ev.IsDir && !r.mapper.IsDocument(ev.Path) {
		r.logger.Trace().Stringer("event", ev).Msg("Ignoring non-document")
		return nil
	}

	act, ok := r.table[routeKey{ev.Kind, ev.IsDir}]
	if !ok {
		return fmt.Errorf("no route for %s", ev)
	}

	r.logger.Debug().Stringer("event", ev).Msg("Routing event")
	return act(r, ctx, ev)
}

func (r *Router) noop(context.Context, ChangeEvent) error { return nil }

func (r *Router) ignoreMove(_ context.Context, ev ChangeEvent) error {
	r.logger.Info().Str("path", ev.Path).Bool("dir", ev.IsDir).Msg("Move ignored, mirror left as is")
	r.reporter.Report(Activity{Kind: ActivityMoveIgnored, Source: ev.Path})
	return nil
}

func (r *Router) convert(ctx context.Context, ev ChangeEvent) error {
	dest, err := r.mapper.Document(ev.Path)
	if err != nil {
		return err
	}
	r.converter.Convert(ctx, ev.Path, dest)
	return nil
}

func (r *Router) mkdir(_ context.Context, ev ChangeEvent) error {
	dest, err := r.mapper.Dir(ev.Path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("create mirror directory %s: %w", dest, err)
	}
	r.logger.Info().Str("dest", dest).Msg("Created directory")
	r.reporter.Report(Activity{Kind: ActivityMkdir, Source: ev.Path, Dest: dest})
	return nil
}

func (r *Router) removeTree(_ context.Context, ev ChangeEvent) error {
	dest, err := r.mapper.Dir(ev.Path)
	if err != nil {
		return err
	}
	if dest == filepath.Clean(r.mapper.DestRoot) {
		return fmt.Errorf("refusing to remove mirror root %s", dest)
	}
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("remove mirror directory %s: %w", dest, err)
	}
	r.logger.Info().Str("dest", dest).Msg("Removed directory")
	r.reporter.Report(Activity{Kind: ActivityRemoved, Source: ev.Path, Dest: dest})
	return nil
}

func (r *Router) removeFile(_ context.Context, ev ChangeEvent) error {
	dest, err := r.mapper.Document(ev.Path)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Debug().Str("dest", dest).Msg("Mirror already absent")
			return nil
		}
		return fmt.Errorf("remove mirror file %s: %w", dest, err)
	}
	r.logger.Info().Str("dest", dest).Msg("Removed file")
	r.reporter.Report(Activity{Kind: ActivityRemoved, Source: ev.Path, Dest: dest})
	return nil
}
