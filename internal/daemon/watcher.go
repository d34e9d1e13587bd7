package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/steveyegge/wiki-link/internal/logging"
	"github.com/steveyegge/wiki-link/internal/mirror"
)

// ErrOverflow is delivered on Errors() when the kernel event queue overflowed
// and notifications were lost.
var ErrOverflow = errors.New("watch event queue overflowed")

// DefaultEventBuffer is the capacity of the Events() channel.
const DefaultEventBuffer = 256

// Source is the watch subsystem capability the Daemon depends on: a recursive
// subscription yielding ChangeEvents, and clean unsubscription.
type Source interface {
	Subscribe(root string) error
	Events() <-chan mirror.ChangeEvent
	Errors() <-chan error
	Unsubscribe() error
}

// FileWatcher watches a directory tree recursively.
// It uses fsnotify for cross-platform file system event monitoring, adding a
// watch for every directory in the tree as it appears.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan mirror.ChangeEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	root    string
	logger  zerolog.Logger

	// dirs is the set of watched directories. Only the event goroutine touches
	// it once running.
	dirs map[string]struct{}
}

var _ Source = (*FileWatcher)(nil)

// NewFileWatcher creates a new FileWatcher instance.
// The watcher must be subscribed before it will emit events.
func NewFileWatcher(buffer int, logger zerolog.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if buffer < 1 {
		buffer = DefaultEventBuffer
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan mirror.ChangeEvent, buffer),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		logger:  logging.Component(logger, "watcher"),
		dirs:    make(map[string]struct{}),
	}, nil
}

// Subscribe begins watching root and every directory beneath it.
func (fw *FileWatcher) Subscribe(root string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("failed to watch %s: not a directory", root)
	}

	fw.root = root
	if _, err := fw.addTree(root); err != nil {
		for dir := range fw.dirs {
			_ = fw.watcher.Remove(dir)
		}
		fw.dirs = make(map[string]struct{})
		return err
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	fw.logger.Debug().Str("root", root).Int("dirs", len(fw.dirs)).Msg("Subscribed")
	return nil
}

// Unsubscribe stops watching and cleans up resources.
// It blocks until the event processing goroutine has exited.
func (fw *FileWatcher) Unsubscribe() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	fw.mu.Unlock()

	// Signal shutdown
	close(fw.done)

	// Close the underlying watcher (this will unblock the event loop)
	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	return nil
}

// Close releases the watcher whether or not it was ever subscribed.
func (fw *FileWatcher) Close() error {
	if fw.IsRunning() {
		return fw.Unsubscribe()
	}
	return fw.watcher.Close()
}

// Events returns the channel that emits change notifications.
// This channel is closed when the watcher is unsubscribed.
func (fw *FileWatcher) Events() <-chan mirror.ChangeEvent {
	return fw.events
}

// Errors returns the channel that emits error notifications.
// This channel is closed when the watcher is unsubscribed.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning returns true if the watcher is currently subscribed.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

// processEvents is the main event loop that translates fsnotify events into
// ChangeEvents.
func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			for _, ev := range fw.convertEvent(event) {
				if !fw.emit(ev) {
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				err = fmt.Errorf("%w: %v", ErrOverflow, err)
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// emit blocks until the consumer accepts ev or the watcher shuts down.
func (fw *FileWatcher) emit(ev mirror.ChangeEvent) bool {
	select {
	case fw.events <- ev:
		return true
	case <-fw.done:
		return false
	}
}

// convertEvent converts an fsnotify event into zero or more ChangeEvents.
// A created directory also yields Created events for anything already inside
// it, since entries can appear before the new watch is in place.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) []mirror.ChangeEvent {
	path := filepath.Clean(event.Name)

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		if err != nil {
			// Gone again before we looked; its removal event follows.
			return nil
		}
		if !info.IsDir() {
			return []mirror.ChangeEvent{{Kind: mirror.Created, Path: path}}
		}
		found, err := fw.addTree(path)
		if err != nil {
			fw.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch new directory")
		}
		return found

	case event.Has(fsnotify.Write):
		_, isDir := fw.dirs[path]
		return []mirror.ChangeEvent{{Kind: mirror.Modified, Path: path, IsDir: isDir}}

	case event.Has(fsnotify.Remove):
		isDir := fw.forget(path)
		return []mirror.ChangeEvent{{Kind: mirror.Deleted, Path: path, IsDir: isDir}}

	case event.Has(fsnotify.Rename):
		isDir := fw.forget(path)
		return []mirror.ChangeEvent{{Kind: mirror.Moved, Path: path, IsDir: isDir}}

	default:
		// Ignore chmod and other events
		return nil
	}
}

// addTree watches dir and every directory below it. It returns a Created
// event for each directory and regular file found, parents before children.
func (fw *FileWatcher) addTree(dir string) ([]mirror.ChangeEvent, error) {
	var found []mirror.ChangeEvent
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			fw.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable entry")
			return nil
		}
		switch {
		case d.IsDir():
			if _, ok := fw.dirs[path]; !ok {
				if err := fw.watcher.Add(path); err != nil {
					return fmt.Errorf("failed to watch directory %s: %w", path, err)
				}
				fw.dirs[path] = struct{}{}
			}
			found = append(found, mirror.ChangeEvent{Kind: mirror.Created, Path: path, IsDir: true})
		case d.Type().IsRegular():
			found = append(found, mirror.ChangeEvent{Kind: mirror.Created, Path: path})
		}
		return nil
	})
	return found, err
}

// forget drops path and its descendants from the watched set and reports
// whether path was a watched directory.
func (fw *FileWatcher) forget(path string) bool {
	if _, ok := fw.dirs[path]; !ok {
		return false
	}
	prefix := path + string(filepath.Separator)
	for dir := range fw.dirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			// The kernel drops watches on removed directories; a renamed one
			// must be released explicitly.
			_ = fw.watcher.Remove(dir)
			delete(fw.dirs, dir)
		}
	}
	return true
}
