package library

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches the library root and its document directories. Writes to a document file
// call onChange once the file has been quiet for the debounce interval; removing the file
// or its directory calls onRemove.
type Watcher struct {
	library     *Library
	extensions  []string
	onChange    func(id uuid.UUID, path string)
	onRemove    func(id uuid.UUID)
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a file must be quiet before onChange fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for lib. extensions filters document files (empty = all).
func NewWatcher(lib *Library, extensions []string, onChange func(id uuid.UUID, path string), onRemove func(id uuid.UUID), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		library:     lib,
		extensions:  extensions,
		onChange:    onChange,
		onRemove:    onRemove,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start creates the root if needed and starts watching. It runs until ctx is cancelled or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	root := w.library.Root()
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(root); err != nil {
		_ = fw.Close()
		return err
	}
	dirs, err := os.ReadDir(root)
	if err != nil {
		_ = fw.Close()
		return err
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(root, d.Name())
		if _, ok := w.library.parseDir(dir); !ok {
			continue
		}
		if err := fw.Add(dir); err != nil {
			w.logger.Debug("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
		}
	}
	w.watcher = fw
	w.started = true
	w.logger.Debug("watcher starting", zap.String("root", root), zap.Strings("extensions", w.extensions))
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	if id, ok := w.library.parseDir(path); ok {
		switch {
		case ev.Has(fsnotify.Create):
			w.handleNewDirectory(path)
		case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
			w.cancelDebounceUnder(path)
			if w.onRemove != nil {
				w.onRemove(id)
			}
		}
		return
	}

	id, ok := w.library.ParsePath(path)
	if !ok || !w.matchExtension(path) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.debounceChange(id, path)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		if w.onRemove != nil {
			w.onRemove(id)
		}
	}
}

// handleNewDirectory watches a document directory that appeared after Start and reports
// the files already copied into it.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil {
		return
	}
	if err := fw.Add(dir); err != nil {
		w.logger.Debug("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
		return
	}
	matches, _ := filepath.Glob(filepath.Join(dir, DocumentBaseName+".*"))
	for _, m := range matches {
		if id, ok := w.library.ParsePath(m); ok && w.matchExtension(m) {
			w.debounceChange(id, m)
		}
	}
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) debounceChange(id uuid.UUID, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.logger.Debug("document changed (debounced)", zap.String("document_id", id.String()), zap.String("path", path))
		if w.onChange != nil {
			w.onChange(id, path)
		}
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Watcher) cancelDebounceUnder(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := dir + string(filepath.Separator)
	for path, t := range w.debounceMap {
		if strings.HasPrefix(path, prefix) {
			t.Stop()
			delete(w.debounceMap, path)
		}
	}
}

// Sync reports every document file already in the library through onChange. Call it after
// Start to catch up on changes made while nothing was watching.
func (w *Watcher) Sync() error {
	entries, err := w.library.Documents()
	if err != nil {
		return err
	}
	w.logger.Debug("watcher syncing library", zap.Int("documents", len(entries)))
	for _, e := range entries {
		if w.matchExtension(e.Path) && w.onChange != nil {
			w.onChange(e.ID, e.Path)
		}
	}
	return nil
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
