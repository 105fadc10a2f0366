// Package watch reloads files when they change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is how long a file must stay quiet before a reload.
const DefaultDelay = 100 * time.Millisecond

// Watcher calls a reload function after writes to a set of files settle.
// Parent directories are watched so that editors replacing files by rename
// are seen.
type Watcher struct {
	fs     *fsnotify.Watcher
	files  map[string]func(context.Context) error
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the settle delay.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New starts watching. files maps each path to its reload function.
func New(files map[string]func(context.Context) error, opts ...Option) (*Watcher, error) {
	if len(files) == 0 {
		return nil, errors.New("watch: no files")
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &Watcher{
		fs:      fs,
		files:   make(map[string]func(context.Context) error, len(files)),
		delay:   DefaultDelay,
		logger:  logging.NewNop(),
		pending: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}

	dirs := map[string]bool{}
	for path, reload := range files {
		abs, err := filepath.Abs(path)
		if err != nil {
			fs.Close()
			return nil, fmt.Errorf("watch %s: %w", path, err)
		}
		w.files[abs] = reload
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fs.Add(dir); err != nil {
			fs.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run dispatches reloads until ctx is done. Reload errors are logged and do
// not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "err", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	path := filepath.Clean(event.Name)
	reload, ok := w.files[path]
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.logger.Info("change detected, reloading", "path", path)
		if err := reload(ctx); err != nil {
			w.logger.Error("reload failed", "path", path, "err", err)
		}
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.fs.Close()
}
