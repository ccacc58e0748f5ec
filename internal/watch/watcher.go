// Package watch flags files an assistant writes under the project directory
// but outside the track directories it was pointed at.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/daacs/internal/logging"
)

// debounce collapses the burst of events editors and generators emit per save.
const debounce = 50 * time.Millisecond

// Watcher reports writes under root that land outside every allowed dir.
type Watcher struct {
	watcher *fsnotify.Watcher
	root    string
	allowed []string
	ignore  []string
	logger  *logging.Logger

	// relative path -> when the stray write was seen
	strays  map[string]time.Time
	onStray func(path string)

	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithCallback registers fn to be called once per newly seen stray path.
func WithCallback(fn func(path string)) Option {
	return func(w *Watcher) {
		w.onStray = fn
	}
}

// New watches root. allowed lists the directories writes are expected in;
// they need not exist yet.
func New(root string, allowed []string, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("watch root does not exist: %s", root)
		}
		return nil, fmt.Errorf("failed to stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root is not a directory: %s", root)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	root = filepath.Clean(root)
	w := &Watcher{
		watcher: fw,
		root:    root,
		ignore:  []string{".git", "node_modules", "__pycache__", ".venv", "venv", "dist"},
		logger:  logging.NopLogger(),
		strays:  make(map[string]time.Time),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, dir := range allowed {
		w.allowed = append(w.allowed, filepath.Clean(dir))
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addRecursive(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) ignored(name string) bool {
	base := filepath.Base(name)
	for _, ig := range w.ignore {
		if base == ig {
			return true
		}
	}
	return false
}

// addRecursive watches dir and every non-ignored subdirectory.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil && path == dir {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Start begins processing filesystem events.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	timer := time.NewTimer(0)
	<-timer.C
	pending := make(map[string]fsnotify.Event)

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// New directories are watched immediately so files created in
			// them right after are not missed.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !w.ignored(ev.Name) {
						_ = w.addRecursive(ev.Name)
					}
					continue
				}
			}
			pending[ev.Name] = ev
			timer.Reset(debounce)

		case <-timer.C:
			for name := range pending {
				w.handle(name)
			}
			pending = make(map[string]fsnotify.Event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) handle(path string) {
	path = filepath.Clean(path)
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if w.ignored(part) {
			return
		}
	}
	for _, dir := range w.allowed {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return
		}
	}

	rel = filepath.ToSlash(rel)
	w.mu.Lock()
	_, seen := w.strays[rel]
	w.strays[rel] = time.Now()
	cb := w.onStray
	w.mu.Unlock()

	if seen {
		return
	}
	w.logger.Warn("file written outside track directories", "path", rel)
	if cb != nil {
		cb(rel)
	}
}

// Strays returns the stray paths seen so far, relative to root and sorted.
func (w *Watcher) Strays() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]string, 0, len(w.strays))
	for p := range w.strays {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Reset forgets the stray paths seen so far.
func (w *Watcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.strays = make(map[string]time.Time)
}
