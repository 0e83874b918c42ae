package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zheng/tgraph/internal/graph"
	"github.com/zheng/tgraph/internal/storage"
)

// Watcher watches a trace file and rebuilds the stored graph when it changes.
// Every rebuild re-reads the whole file.
type Watcher struct {
	tracePath string
	db        *storage.DB
	builder   *graph.Builder
	fsWatcher *fsnotify.Watcher

	// Debouncing
	debounceDelay time.Duration
	pending       bool
	pendingMu     sync.Mutex
	debounceTimer *time.Timer

	// rebuildMu serialises rebuilds triggered by the timer and by Trigger
	rebuildMu sync.Mutex

	// Callbacks
	onRebuildStart func()
	onRebuildDone  func(run *storage.Run, result *graph.BuildResult)
	onError        func(error)

	// Control
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures the watcher
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithOnRebuildStart sets the callback for when a rebuild starts
func WithOnRebuildStart(fn func()) WatcherOption {
	return func(w *Watcher) {
		w.onRebuildStart = fn
	}
}

// WithOnRebuildDone sets the callback for when a rebuild has been persisted
func WithOnRebuildDone(fn func(run *storage.Run, result *graph.BuildResult)) WatcherOption {
	return func(w *Watcher) {
		w.onRebuildDone = fn
	}
}

// WithOnError sets the callback for errors
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// New creates a new Watcher for tracePath. The file's directory is watched
// so the file may be created or replaced after the watcher starts.
func New(tracePath string, db *storage.DB, builder *graph.Builder, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(tracePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve trace path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		tracePath:     absPath,
		db:            db,
		builder:       builder,
		fsWatcher:     fsWatcher,
		debounceDelay: 500 * time.Millisecond, // Default debounce
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	return w, nil
}

// Path returns the absolute path of the watched trace file
func (w *Watcher) Path() string {
	return w.tracePath
}

// Start begins watching for changes
func (w *Watcher) Start() {
	go w.eventLoop()
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.pendingMu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.pendingMu.Unlock()
		err = w.fsWatcher.Close()
	})
	return err
}

// eventLoop handles file system events
func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// handleEvent processes a single file system event
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Only the trace file itself matters
	if filepath.Clean(event.Name) != w.tracePath {
		return
	}

	// Write/create cover in-place appends and atomic replace-by-rename
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending = true

	// Reset debounce timer
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.triggerRebuild)
}

// triggerRebuild runs the rebuild after debounce
func (w *Watcher) triggerRebuild() {
	w.pendingMu.Lock()
	pending := w.pending
	w.pending = false
	w.pendingMu.Unlock()

	if !pending {
		return
	}
	select {
	case <-w.done:
		return
	default:
	}

	if _, err := w.Trigger(context.Background()); err != nil && w.onError != nil {
		w.onError(err)
	}
}

// Trigger rebuilds immediately and reports through the callbacks
func (w *Watcher) Trigger(ctx context.Context) (*storage.Run, error) {
	w.rebuildMu.Lock()
	defer w.rebuildMu.Unlock()

	if w.onRebuildStart != nil {
		w.onRebuildStart()
	}

	startTime := time.Now()

	result, err := w.builder.BuildFile(w.tracePath)
	if err != nil {
		return nil, fmt.Errorf("rebuild failed: %w", err)
	}

	run, err := w.db.Replace(ctx, result, w.tracePath, startTime)
	if err != nil {
		return nil, fmt.Errorf("rebuild failed: %w", err)
	}

	if w.onRebuildDone != nil {
		w.onRebuildDone(run, result)
	}
	return run, nil
}
