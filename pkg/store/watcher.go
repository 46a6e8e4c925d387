package store

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher resyncs a Store when its memories directory changes on disk,
// e.g. when the user edits memory files directly.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	stopCh chan struct{}
}

// NewWatcher starts watching the store's directory.
func NewWatcher(s *Store, logger zerolog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.Dir()); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &Watcher{
		store:    s,
		watcher:  watcher,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]struct{}),
		stopCh:   make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

// run processes file system events.
func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only memory files matter
			if !strings.HasSuffix(strings.ToLower(event.Name), ".md") {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Memory file change detected")

				w.schedule(filepath.Base(event.Name))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Memory watcher error")

		case <-w.stopCh:
			return
		}
	}
}

// schedule records a changed file and debounces the reconciliation.
func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush invalidates changed entities and reconciles the map with disk.
func (w *Watcher) flush() {
	w.mu.Lock()
	changed := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for name := range changed {
		stem := strings.TrimSuffix(name, ".md")
		if m, ok := w.store.entity(stem); ok {
			if m.invalidate() {
				w.logger.Debug().Str("stem", stem).Msg("Memory changed on disk, will reload on next access")
			}
		}
	}

	w.store.Resync()
}
