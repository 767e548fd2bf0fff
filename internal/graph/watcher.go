package graph

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates a Holder as soon as a tracked source file changes on
// disk, ahead of the mtime scan that IsFresh would otherwise need.
//
// Only the directories that contain tracked files are watched. Call Track
// after every Publish so the watched set follows the snapshot.
type Watcher struct {
	holder *Holder
	fw     *fsnotify.Watcher
	logger *slog.Logger

	mu      sync.Mutex
	tracked map[string]string // absolute path -> snapshot path
	dirs    map[string]bool

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher bound to h. A nil logger uses slog.Default.
func NewWatcher(h *Holder, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		holder:  h,
		fw:      fw,
		logger:  logger,
		tracked: make(map[string]string),
		dirs:    make(map[string]bool),
		done:    make(chan struct{}),
	}, nil
}

// Track replaces the tracked file set with s's files.
func (w *Watcher) Track(s *Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tracked := make(map[string]string)
	dirs := make(map[string]bool)
	for _, f := range s.Files() {
		abs, err := filepath.Abs(w.holder.resolve(f))
		if err != nil {
			return err
		}
		tracked[abs] = f
		dirs[filepath.Dir(abs)] = true
	}

	for d := range w.dirs {
		if !dirs[d] {
			_ = w.fw.Remove(d)
		}
	}
	for d := range dirs {
		if w.dirs[d] {
			continue
		}
		if err := w.fw.Add(d); err != nil {
			w.logger.Warn("watch directory", "dir", d, "error", err)
			delete(dirs, d)
		}
	}

	w.tracked = tracked
	w.dirs = dirs
	return nil
}

// Start processes events until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}
	w.mu.Lock()
	file, ok := w.tracked[abs]
	w.mu.Unlock()
	if !ok {
		return
	}
	w.logger.Debug("tracked file changed", "file", file, "op", ev.Op.String())
	w.holder.MarkDirty(file)
}

// Stop ends event processing and releases the underlying watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}
