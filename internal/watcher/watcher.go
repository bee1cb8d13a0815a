// Package watcher watches a training directory with fsnotify and reports debounced changes.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// ErrNotDirectory indicates the watched path is missing or not a directory.
var ErrNotDirectory = errors.New("watcher: not a directory")

// Watcher watches one directory and invokes onChange once per burst of file events.
type Watcher struct {
	dir      string
	onChange func()
	match    func(path string) bool
	debounce time.Duration
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timer    *time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	logger   *zap.Logger // optional; when set, logs debug events
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (file events, reload triggers).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the quiet period after the last event before onChange runs.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithFilter restricts which paths trigger onChange. The default accepts every non-hidden file.
func WithFilter(match func(path string) bool) WatcherOption {
	return func(w *Watcher) {
		if match != nil {
			w.match = match
		}
	}
}

// NewWatcher creates a watcher for dir. onChange runs on the timer goroutine.
func NewWatcher(dir string, onChange func(), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:      dir,
		onChange: onChange,
		match:    notHidden,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ExtensionFilter accepts paths whose extension is in exts (case-insensitive) or whose
// base name is one of names.
func ExtensionFilter(exts []string, names ...string) func(path string) bool {
	return func(path string) bool {
		base := filepath.Base(path)
		for _, n := range names {
			if base == n {
				return true
			}
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range exts {
			if ext == strings.ToLower(e) {
				return true
			}
		}
		return false
	}
}

func notHidden(path string) bool {
	return !strings.HasPrefix(filepath.Base(path), ".")
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return errors.Join(ErrNotDirectory, err)
	}
	w.watcher = watcher
	w.started = true
	if w.logger != nil {
		w.logger.Debug("watcher starting", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))
	}
	go w.run(ctx, watcher)
	return nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod || !w.match(ev.Name) {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	}
	w.schedule()
}

// schedule restarts the debounce timer so bursts collapse into one onChange call.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
		return
	default:
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		if w.logger != nil {
			w.logger.Debug("watched directory changed", zap.String("dir", w.dir))
		}
		if w.onChange != nil {
			w.onChange()
		}
	})
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Stop stops the watcher and releases resources. Pending callbacks are dropped.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.watcher != nil {
		_ = w.watcher.Close()
		w.watcher = nil
	}
	w.started = false
}
