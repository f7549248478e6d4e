package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a circuit or chain configuration file and triggers a
// reload callback when it changes.
type Watcher struct {
	path         string
	watcher      *fsnotify.Watcher
	reloadFunc   func(string) error
	logger       *slog.Logger
	mu           sync.RWMutex
	running      bool
	stopCh       chan struct{}
	debounceTime time.Duration
}

// NewWatcher creates a file watcher invoking reloadFunc on change.
func NewWatcher(path string, reloadFunc func(string) error, logger *slog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:         path,
		watcher:      watcher,
		reloadFunc:   reloadFunc,
		logger:       logger,
		stopCh:       make(chan struct{}),
		debounceTime: time.Second, // Debounce multiple rapid changes
	}, nil
}

// Start begins watching the file for changes.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory because some editors create temp files and
	// rename them over the original.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	w.logger.Info("watcher started", "path", w.path)
	go w.watchLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	var debounceTimer *time.Timer

	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isWatchedFileEvent(event) {
				continue
			}
			w.logger.Debug("file event detected", "event", event.Op.String(), "file", event.Name)

			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounceTime, w.triggerReload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-w.stopCh:
			w.logger.Info("watcher stopped")
			return

		case <-ctx.Done():
			w.logger.Info("watcher context cancelled")
			return
		}
	}
}

func (w *Watcher) isWatchedFileEvent(event fsnotify.Event) bool {
	eventPath, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	watchedPath, err := filepath.Abs(w.path)
	if err != nil {
		return false
	}
	return eventPath == watchedPath
}

func (w *Watcher) triggerReload() {
	w.logger.Info("file changed, reloading", "path", w.path)
	start := time.Now()
	if err := w.reloadFunc(w.path); err != nil {
		w.logger.Error("reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("reload complete", "path", w.path, "duration", time.Since(start))
}
