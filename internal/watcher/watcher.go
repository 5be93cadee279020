// Package watcher notices when a source file under an open session disappears
// from disk and closes the sessions that depended on it.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSyncInterval is how often the watched directory set is reconciled
// with the open sessions.
const DefaultSyncInterval = 2 * time.Second

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Sessions is the part of the session manager the watcher needs.
type Sessions interface {
	Paths() []string
	CloseByPath(path string) int
}

// MissingMarker records that a source path vanished.
type MissingMarker interface {
	MarkMissing(ctx context.Context, path string) error
}

type Config struct {
	Sessions     Sessions
	Catalog      MissingMarker
	Logger       *slog.Logger
	SyncInterval time.Duration
}

// SourceWatcher watches the parent directories of every open source. fsnotify
// cannot watch a single file across rename-replace, so directories are
// watched and events are filtered down to tracked paths.
type SourceWatcher struct {
	fs       *fsnotify.Watcher
	sessions Sessions
	catalog  MissingMarker
	logger   *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	dirs     map[string]bool
	tracked  map[string]bool
	callback func(path string, event EventType)
}

func New(cfg Config) (*SourceWatcher, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("watcher: sessions are required")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &SourceWatcher{
		fs:       fw,
		sessions: cfg.Sessions,
		catalog:  cfg.Catalog,
		logger:   logger.With("component", "watcher"),
		interval: interval,
		dirs:     map[string]bool{},
		tracked:  map[string]bool{},
	}, nil
}

// OnChange registers a callback invoked for every event on a tracked path.
func (w *SourceWatcher) OnChange(callback func(path string, event EventType)) {
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
}

// Sync reconciles watched directories with the paths of open sessions.
func (w *SourceWatcher) Sync() {
	paths := w.sessions.Paths()
	wantDirs := map[string]bool{}
	tracked := map[string]bool{}
	for _, p := range paths {
		clean := filepath.Clean(p)
		tracked[clean] = true
		wantDirs[filepath.Dir(clean)] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked = tracked
	for dir := range w.dirs {
		if !wantDirs[dir] {
			if err := w.fs.Remove(dir); err != nil {
				w.logger.Debug("unwatch failed", "dir", dir, "error", err)
			}
			delete(w.dirs, dir)
		}
	}
	for dir := range wantDirs {
		if w.dirs[dir] {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			w.logger.Warn("cannot watch source directory", "dir", dir, "error", err)
			continue
		}
		w.dirs[dir] = true
	}
}

// Run processes filesystem events until ctx is canceled, then closes the
// underlying watcher.
func (w *SourceWatcher) Run(ctx context.Context) {
	defer w.fs.Close()
	w.Sync()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.Info("watcher started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return
		case <-ticker.C:
			w.Sync()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *SourceWatcher) handle(ctx context.Context, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.mu.Lock()
	tracked := w.tracked[path]
	callback := w.callback
	w.mu.Unlock()
	if !tracked {
		return
	}

	kind := classify(ev.Op)
	if callback != nil {
		callback(path, kind)
	}
	if kind != EventDelete {
		return
	}
	// Editors that save by rename-replace leave the file in place.
	if _, err := os.Stat(path); err == nil {
		return
	}
	w.sourceGone(ctx, path)
}

func (w *SourceWatcher) sourceGone(ctx context.Context, path string) {
	closed := w.sessions.CloseByPath(path)
	w.logger.Info("source removed from disk", "path", path, "sessions_closed", closed)
	if w.catalog != nil {
		if err := w.catalog.MarkMissing(ctx, path); err != nil {
			w.logger.Warn("failed to mark source missing", "path", path, "error", err)
		}
	}
	w.mu.Lock()
	delete(w.tracked, path)
	w.mu.Unlock()
}

func classify(op fsnotify.Op) EventType {
	switch {
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return EventDelete
	case op&fsnotify.Create != 0:
		return EventCreate
	default:
		return EventModify
	}
}
