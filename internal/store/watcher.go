package store

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"credkeeper/internal/logging"
)

// Watcher reloads the account store when another process rewrites its backing
// file (e.g. the host editor's own account UI). Rapid successive writes are
// debounced.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	manager  *AccountManager
	debounce time.Duration
	lastSeen time.Time
	onReload func()
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher for the manager's backing file.
func NewWatcher(manager *AccountManager, onReload func()) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  w,
		manager:  manager,
		debounce: 500 * time.Millisecond,
		onReload: onReload,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watcher runs until Stop or ctx
// cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory, not the file: editors replace files by rename.
	dir := filepath.Dir(w.manager.FilePath())
	if err := w.watcher.Add(dir); err != nil {
		logging.StoreWarn("watch failed for %s: %v", dir, err)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	target := w.manager.FilePath()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.mu.Lock()
			now := time.Now()
			if now.Sub(w.lastSeen) < w.debounce {
				w.mu.Unlock()
				continue
			}
			w.lastSeen = now
			w.mu.Unlock()

			if err := w.manager.Load(); err != nil {
				logging.StoreWarn("external reload failed: %v", err)
				continue
			}
			logging.StoreDebug("account store reloaded after external write")
			if w.onReload != nil {
				w.onReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.StoreWarn("watcher error: %v", err)
		}
	}
}
