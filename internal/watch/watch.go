// Package watch reports changes to documents under a workspace root.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/sidenote/internal/storage"
)

// Kind is the type of change observed for a path.
type Kind string

const (
	Created Kind = "created"
	Updated Kind = "updated"
	Deleted Kind = "deleted"
)

// DefaultDebounce is how long a path must stay quiet before its change is
// delivered.
const DefaultDebounce = 150 * time.Millisecond

// Callback receives coalesced changes. relPath uses forward slashes and is
// relative to the watched root.
type Callback func(kind Kind, relPath string)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithFilter restricts delivered paths. The default accepts files with a
// DefaultExtensions suffix.
func WithFilter(fn func(relPath string) bool) Option {
	return func(w *Watcher) { w.accept = fn }
}

// Watcher watches a directory tree recursively. Hidden directories and the
// temporary files of atomic writes are ignored. Bursts of events for the
// same path collapse into one callback, so delivery is at-least-once.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
	accept   func(string) bool
}

// New creates a watcher for root.
func New(root string, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		accept:   hasDocumentExt,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func hasDocumentExt(rel string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	for _, e := range storage.DefaultExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Run processes file system events until ctx is cancelled. New directories
// are added to the watch list as they appear.
func (w *Watcher) Run(ctx context.Context, cb Callback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addDirsRecursive(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	pending := make(map[string]Kind)
	var timer *time.Timer
	var timerC <-chan time.Time

	schedule := func(rel string, kind Kind) {
		pending[rel] = merge(pending[rel], kind)
		if timer == nil {
			timer = time.NewTimer(w.debounce)
		} else {
			timer.Reset(w.debounce)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case <-timerC:
			timerC = nil
			batch := pending
			pending = make(map[string]Kind)
			for rel, kind := range batch {
				w.logger.Debug("watcher: change", slog.String("path", rel), slog.String("kind", string(kind)))
				if cb != nil {
					cb(kind, rel)
				}
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			abs := ev.Name
			base := filepath.Base(abs)
			if strings.HasPrefix(base, storage.TempPrefix) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if storage.IsHidden(base) {
						continue
					}
					if addErr := w.addDirsRecursive(fw, abs); addErr != nil {
						w.logger.Warn("watcher: add new dir failed",
							slog.String("path", abs),
							slog.String("error", addErr.Error()))
						continue
					}
					w.logger.Debug("watcher: watching new dir", slog.String("path", abs))
					// Files may have landed before the directory was watched.
					for _, rel := range w.documentsUnder(abs) {
						schedule(rel, Created)
					}
					continue
				}
			}

			rel, ok := w.rel(abs)
			if !ok || !w.accept(rel) {
				continue
			}
			switch {
			case ev.Op&fsnotify.Create != 0:
				schedule(rel, Created)
			case ev.Op&fsnotify.Write != 0:
				schedule(rel, Updated)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify reports a rename on the old name only; the new
				// name arrives as a Create.
				schedule(rel, Deleted)
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// merge folds a new event into the pending one for the same path.
func merge(prev, next Kind) Kind {
	switch {
	case prev == "":
		return next
	case prev == Created && next == Updated:
		return Created
	case prev == Deleted && next == Created:
		// Replaced in place, as editors that save by rename do.
		return Updated
	default:
		return next
	}
}

func (w *Watcher) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) documentsUnder(dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && storage.IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if rel, ok := w.rel(path); ok && w.accept(rel) {
			out = append(out, rel)
		}
		return nil
	})
	return out
}

// addDirsRecursive adds root and its non-hidden subdirectories.
func (w *Watcher) addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && storage.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
