package cluster

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/clusterdesk/internal/observability"
)

// ErrorCallback is called when a reload fails.
type ErrorCallback func(error)

// Watcher reloads a Store whenever one of its kubeconfig files changes.
type Watcher struct {
	store         *Store
	paths         []string
	watched       map[string]struct{}
	watcher       *fsnotify.Watcher
	errorCallback ErrorCallback
	logger        observability.Logger
	debounceDelay time.Duration
	mu            sync.Mutex
	stopCh        chan struct{}
	stoppedCh     chan struct{}
	running       bool
}

// WatcherOption is a functional option for configuring the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the error callback for the watcher.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.errorCallback = callback
	}
}

// NewWatcher creates a watcher for the given kubeconfig paths.
func NewWatcher(store *Store, paths []string, opts ...WatcherOption) (*Watcher, error) {
	absPaths := make([]string, 0, len(paths))
	watched := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		absPaths = append(absPaths, abs)
		watched[abs] = struct{}{}
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		store:         store,
		paths:         absPaths,
		watched:       watched,
		watcher:       fsWatcher,
		debounceDelay: 250 * time.Millisecond,
		logger:        observability.NopLogger(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start subscribes to the parent directories of every kubeconfig and
// begins the watch loop. Directories are watched rather than files so
// editors that replace files atomically are still observed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	dirs := make(map[string]struct{})
	for _, p := range w.paths {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}

	w.running = true
	w.logger.Info("started watching kubeconfig files",
		observability.Strings("paths", w.paths),
	)

	go w.watch(ctx)

	return nil
}

// Stop stops the watch loop and releases the fsnotify watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("kubeconfig watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("kubeconfig watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("kubeconfig changed",
				observability.String("path", event.Name),
				observability.String("op", event.Op.String()),
			)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounceDelay)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("kubeconfig watcher error", observability.Error(err))
			if w.errorCallback != nil {
				w.errorCallback(err)
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if _, ok := w.watched[filepath.Clean(event.Name)]; !ok {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}

func (w *Watcher) reload() {
	w.logger.Info("reloading kubeconfig files")

	if err := w.store.Load(w.paths...); err != nil {
		w.logger.Error("kubeconfig reload had errors", observability.Error(err))
		if w.errorCallback != nil {
			w.errorCallback(err)
		}
	}
}
