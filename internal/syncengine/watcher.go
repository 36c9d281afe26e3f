package syncengine

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FsWatcher abstracts filesystem event monitoring. Satisfied by
// *fsnotify.Watcher; tests inject a fake implementation. Shape mirrors
// the teacher's observer_local.go FsWatcher interface.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// fsnotifyWrapper adapts *fsnotify.Watcher to FsWatcher. fsnotify exposes
// Events and Errors as public fields, not methods.
type fsnotifyWrapper struct {
	w *fsnotify.Watcher
}

func (fw *fsnotifyWrapper) Add(name string) error         { return fw.w.Add(name) }
func (fw *fsnotifyWrapper) Remove(name string) error      { return fw.w.Remove(name) }
func (fw *fsnotifyWrapper) Close() error                  { return fw.w.Close() }
func (fw *fsnotifyWrapper) Events() <-chan fsnotify.Event { return fw.w.Events }
func (fw *fsnotifyWrapper) Errors() <-chan error          { return fw.w.Errors }

// EventKind is one of the five event kinds the Local Watcher emits
// (spec.md §4.3).
type EventKind int

const (
	FileAdded EventKind = iota
	FileRemoved
	FileChanged
	DirAdded
	DirRemoved
)

func (k EventKind) String() string {
	switch k {
	case FileAdded:
		return "file-added"
	case FileRemoved:
		return "file-removed"
	case FileChanged:
		return "file-changed"
	case DirAdded:
		return "dir-added"
	case DirRemoved:
		return "dir-removed"
	default:
		return "unknown"
	}
}

// Event is one filesystem event surfaced to the Local Event Queue.
type Event struct {
	Kind EventKind
	Path string
}

// tempPrefix/tempSuffix identify the temporary download sibling files
// written during content download (spec.md §6): "." + name + ".tmp".
const (
	tempPrefix = "."
	tempSuffix = ".tmp"
)

// isTempPath reports whether path names a temporary download file that
// the Local Watcher must never surface as an event.
func isTempPath(path string) bool {
	base := filepath.Base(path)

	return strings.HasPrefix(base, tempPrefix) && strings.HasSuffix(base, tempSuffix)
}

// Watcher wraps a recursive filesystem watcher rooted at the configured
// local folder, filtering events through the Ignore Registry and
// emitting exactly the five event kinds from spec.md §4.3.
type Watcher struct {
	fs     FsWatcher
	root   string
	ignore *IgnoreRegistry
	logger *slog.Logger
	events chan Event
	done   chan struct{}

	// dirs tracks known directory paths so a removal/rename event can be
	// classified as DirRemoved vs FileRemoved without relying on Lstat,
	// which fails once the path is already gone. Touched only from the
	// single run() goroutine (and synchronously from NewWatcher before
	// run starts), so it needs no separate lock.
	dirs map[string]struct{}
}

// NewWatcher constructs a Watcher rooted at root, recursively adding
// every existing directory, and starts its event pump goroutine.
func NewWatcher(root string, ignore *IgnoreRegistry, logger *slog.Logger) (*Watcher, error) {
	raw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("syncengine: creating watcher: %w", err)
	}

	w := &Watcher{
		fs:     &fsnotifyWrapper{w: raw},
		root:   root,
		ignore: ignore,
		logger: logger,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
		dirs:   make(map[string]struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("syncengine: watching %s: %w", root, err)
	}

	go w.run()

	return w, nil
}

// addRecursive adds root and every directory beneath it to the
// underlying watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			w.dirs[path] = struct{}{}
			return w.fs.Add(path)
		}

		return nil
	})
}

// Events returns the channel of classified events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops the event pump and releases the underlying watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}

// run is the event pump goroutine: classify each raw fsnotify event,
// drop echoes and temp-path events, and forward the rest.
func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fs.Events():
			if !ok {
				return
			}

			w.handle(ev)

		case err, ok := <-w.fs.Errors():
			if !ok {
				return
			}

			w.logger.Error("watcher error", slog.Any("err", err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if isTempPath(ev.Name) {
		return
	}

	if w.ignore.Consume(ev.Name) {
		return
	}

	kind, ok := w.classify(ev)
	if !ok {
		return
	}

	switch kind {
	case DirAdded:
		if err := w.addRecursive(ev.Name); err != nil {
			w.logger.Warn("failed to watch new directory", slog.String("path", ev.Name), slog.Any("err", err))
		}
	case DirRemoved:
		delete(w.dirs, ev.Name)
	}

	select {
	case w.events <- Event{Kind: kind, Path: ev.Name}:
	case <-w.done:
	}
}

// classify maps a raw fsnotify event to one of the five event kinds.
// Returns ok=false for event types the engine ignores (e.g. chmod-only).
func (w *Watcher) classify(ev fsnotify.Event) (EventKind, bool) {
	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			return DirAdded, true
		}

		return FileAdded, true

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if _, wasDir := w.dirs[ev.Name]; wasDir {
			return DirRemoved, true
		}

		return FileRemoved, true

	case ev.Has(fsnotify.Write):
		return FileChanged, true

	default:
		return 0, false
	}
}
