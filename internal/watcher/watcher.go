// Package watcher re-imports JSONL graph sources when they change on disk.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	Create EventOp = iota
	Write
	Remove
	Rename
)

// String returns the string representation of EventOp.
func (op EventOp) String() string {
	switch op {
	case Create:
		return "Create"
	case Write:
		return "Write"
	case Remove:
		return "Remove"
	case Rename:
		return "Rename"
	default:
		return "Unknown"
	}
}

// Event represents a change to a watched source.
type Event struct {
	Path string
	Op   EventOp
	Time time.Time
}

// DefaultPattern selects source files inside watched directories.
const DefaultPattern = "*.{jsonl,ndjson}"

// DefaultDebounce is the quiet period before pending events are emitted.
const DefaultDebounce = 100 * time.Millisecond

// Config holds configuration for the source watcher.
type Config struct {
	// Paths are source files or directories containing them.
	Paths []string
	// Pattern selects files inside watched directories. Defaults to DefaultPattern.
	Pattern string
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher watches source files for changes and emits debounced events.
// Files are watched through their parent directory so that editors which
// replace a file by renaming still produce events.
type Watcher struct {
	cfg    Config
	logger *slog.Logger
	files  map[string]struct{}
	dirs   map[string]struct{}
	fsw    *fsnotify.Watcher
	mu     sync.Mutex
	closed bool
}

// New creates a watcher for cfg.Paths. Every path must exist.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("watcher: no paths configured")
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(cfg.Pattern) {
		return nil, fmt.Errorf("watcher: bad pattern %q", cfg.Pattern)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	w := &Watcher{
		cfg:    cfg,
		logger: cfg.Logger,
		files:  make(map[string]struct{}),
		dirs:   make(map[string]struct{}),
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	for _, p := range cfg.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("watcher: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("watcher: %w", err)
		}
		if info.IsDir() {
			w.dirs[abs] = struct{}{}
		} else {
			w.files[abs] = struct{}{}
		}
	}
	return w, nil
}

// Sources lists the files currently selected by the watcher, sorted.
// Watched files that no longer exist are skipped.
func (w *Watcher) Sources() ([]string, error) {
	var out []string
	for f := range w.files {
		if _, err := os.Stat(f); err == nil {
			out = append(out, f)
		}
	}
	for d := range w.dirs {
		matches, err := doublestar.FilepathGlob(filepath.Join(d, w.cfg.Pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && !info.IsDir() {
				out = append(out, m)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Start begins watching and returns a channel of debounced events. The
// channel is closed when ctx is cancelled or the watcher is closed.
func (w *Watcher) Start(ctx context.Context) (<-chan Event, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	watchDirs := make(map[string]struct{}, len(w.dirs)+len(w.files))
	for d := range w.dirs {
		watchDirs[d] = struct{}{}
	}
	for f := range w.files {
		watchDirs[filepath.Dir(f)] = struct{}{}
	}
	for d := range watchDirs {
		if err := fsw.Add(d); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", d, err)
		}
	}

	out := make(chan Event, 100)
	go w.eventLoop(ctx, fsw, out)
	return out, nil
}

// Close shuts down the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// Match reports whether path is one of the watched sources.
func (w *Watcher) Match(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	if _, ok := w.files[abs]; ok {
		return true
	}
	if _, ok := w.dirs[filepath.Dir(abs)]; !ok {
		return false
	}
	ok, _ := doublestar.Match(w.cfg.Pattern, filepath.Base(abs))
	return ok
}

// eventLoop collects matching events and emits them once no new event has
// arrived for the debounce window. Only the latest event per path is kept.
func (w *Watcher) eventLoop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- Event) {
	defer close(out)

	pending := make(map[string]Event)
	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case fsEvent, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.Match(fsEvent.Name) {
				continue
			}
			op, valid := convertOp(fsEvent.Op)
			if !valid {
				continue
			}
			path, _ := filepath.Abs(fsEvent.Name)
			pending[path] = Event{Path: path, Op: op, Time: time.Now()}
			timer.Reset(w.cfg.Debounce)

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			for _, p := range paths {
				select {
				case out <- pending[p]:
				case <-ctx.Done():
					return
				}
			}
			clear(pending)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func convertOp(op fsnotify.Op) (EventOp, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return Create, true
	case op.Has(fsnotify.Write):
		return Write, true
	case op.Has(fsnotify.Remove):
		return Remove, true
	case op.Has(fsnotify.Rename):
		return Rename, true
	default:
		return 0, false
	}
}
