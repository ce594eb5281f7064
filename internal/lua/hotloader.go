package lua

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a script file and hands the new source to a reload
// callback when it changes. Serve mode uses it to swap the compiled
// evaluation without a restart.
type Watcher struct {
	path   string
	target string
	reload func(source string)
	logger *slog.Logger

	watcher *fsnotify.Watcher

	// Debouncing: editors write a file several times in quick succession,
	// and some replace it entirely. Collect events and reload once things
	// settle.
	pending   map[string]time.Time
	pendingMu sync.Mutex
	debounce  time.Duration

	done chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher builds a watcher for path. reload is called with the file's
// new content after each settled change.
func NewWatcher(path string, reload func(source string), opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		reload:   reload,
		logger:   slog.New(discardHandler{}),
		watcher:  fsw,
		pending:  make(map[string]time.Time),
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. The watch is on the containing directory, not the
// file, so replace-style saves keep being seen. A symlinked script also
// watches the resolved target's directory.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	if target, err := filepath.EvalSymlinks(w.path); err == nil {
		target = filepath.Clean(target)
		if target != w.path {
			w.target = target
			if err := w.watcher.Add(filepath.Dir(target)); err != nil {
				w.logger.Warn("cannot watch symlink target", "target", target, "error", err)
			}
		}
	}

	go w.eventLoop()
	go w.debounceLoop()

	w.logger.Info("watching script for changes", "path", w.path)
	return nil
}

// Stop ends the watch. The reload callback will not fire afterwards.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)
	if name != w.path && (w.target == "" || name != w.target) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	w.pendingMu.Lock()
	w.pending[name] = time.Now()
	w.pendingMu.Unlock()
}

func (w *Watcher) debounceLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.processPending()
		}
	}
}

func (w *Watcher) processPending() {
	w.pendingMu.Lock()
	now := time.Now()
	ready := false
	for name, queuedAt := range w.pending {
		if now.Sub(queuedAt) >= w.debounce {
			delete(w.pending, name)
			ready = true
		}
	}
	w.pendingMu.Unlock()

	if ready {
		w.reloadFile()
	}
}

func (w *Watcher) reloadFile() {
	content, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("cannot read changed script", "path", w.path, "error", err)
		return
	}
	w.logger.Info("script changed, reloading", "path", w.path)
	w.reload(string(content))
}
