package storage

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// RecordWatcher watches a record directory and reports writes to record
// files, keyed by record name. The filesystem cannot distinguish external
// editors from the owning process, so callers must tolerate notifications
// for their own saves.
type RecordWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	onChange func(key string)

	debounceMap map[string]time.Time
	debounceDur time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	mu      sync.Mutex
}

// NewRecordWatcher creates a watcher over dir. onChange fires on the
// watcher goroutine; it must not block.
func NewRecordWatcher(dir string, onChange func(key string)) (*RecordWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &RecordWatcher{
		watcher:     watcher,
		dir:         dir,
		onChange:    onChange,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watch loop runs in a goroutine
// until Stop or ctx cancellation.
func (w *RecordWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	slog.Debug("watching record directory", "dir", w.dir)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *RecordWatcher) Stop() {
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

func (w *RecordWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

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
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("record watcher error", "error", err)
		}
	}
}

func (w *RecordWatcher) handleEvent(event fsnotify.Event) {
	// Atomic saves land as a rename onto the final name, which fsnotify
	// reports as Create. Plain editors report Write.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".json") {
		return
	}
	key := strings.TrimSuffix(name, ".json")
	if !keyRe.MatchString(key) {
		return
	}

	w.mu.Lock()
	last, seen := w.debounceMap[key]
	now := time.Now()
	if seen && now.Sub(last) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.debounceMap[key] = now
	w.mu.Unlock()

	slog.Debug("record changed", "key", key)
	w.onChange(key)
}
