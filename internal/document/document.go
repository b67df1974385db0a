// Package document implements the state machine that owns the text of the
// open document. Annotations are never stored beside the text; they are
// decoded from it on demand and every annotation change is a text edit.
package document

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/sidenote/internal/annotation"
	"github.com/starford/sidenote/internal/apperr"
	"github.com/starford/sidenote/internal/checksum"
)

// Storage is the part of the workspace a document reads and writes.
type Storage interface {
	ReadText(ctx context.Context, path string) (string, error)
	WriteTextAtomic(ctx context.Context, path, text string) error
}

// Observer is notified after a document has been opened successfully.
type Observer interface {
	DocumentOpened(path string)
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(d *Document) { d.logger = l }
}

// WithObserver registers the open observer.
func WithObserver(o Observer) Option {
	return func(d *Document) { d.observer = o }
}

// WithMode sets the initial view mode.
func WithMode(m Mode) Option {
	return func(d *Document) { d.mode = m }
}

// WithClock overrides time.Now for annotation timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Document) { d.now = now }
}

// Document is the single authoritative copy of the open file.
//
// Storage I/O runs outside the lock. Open and Close bump a generation
// number, and results of I/O started under an older generation are dropped.
// Every text mutation bumps a revision, so a save only marks the document
// clean if nothing changed while the write was in flight.
type Document struct {
	store    Storage
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	mu        sync.Mutex
	path      string
	text      string
	dirty     bool
	state     State
	mode      Mode
	err       error
	rev       uint64
	gen       uint64
	persisted uint64 // fingerprint of the last text read from or written to disk
	conflict  bool
	saving    bool
	onChange  func()
}

// New creates an empty document backed by store.
func New(store Storage, opts ...Option) *Document {
	d := &Document{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
		state:  StateEmpty,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnTextChange registers fn to run after every text mutation and after a
// conflict is resolved in favour of local edits. fn runs without the lock
// held.
func (d *Document) OnTextChange(fn func()) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// Open loads path, replacing whatever was open. Unsaved edits of the
// previous document are discarded; callers that care flush first.
func (d *Document) Open(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", apperr.ErrInvalid)
	}
	path = cleanPath(path)

	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.state = StateLoading
	d.err = nil
	d.conflict = false
	d.mu.Unlock()

	text, err := d.store.ReadText(ctx, path)

	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return fmt.Errorf("%w: open of %s superseded", apperr.ErrBusy, path)
	}
	if err != nil {
		d.resetLocked()
		loadErr := &LoadError{Path: path, Err: err}
		d.state = StateError
		d.err = loadErr
		d.mu.Unlock()
		d.logger.Warn("document: open failed", slog.String("path", path), slog.String("error", err.Error()))
		return loadErr
	}
	d.path = path
	d.text = text
	d.dirty = false
	d.state = StateReady
	d.rev++
	d.persisted = checksum.Fingerprint(text)
	obs := d.observer
	d.mu.Unlock()

	list, skipped := annotation.Parse(text)
	d.logger.Info("document: opened",
		slog.String("path", path),
		slog.Int("annotations", len(list)))
	for _, s := range skipped {
		d.logger.Warn("document: skipped malformed annotation",
			slog.String("path", path),
			slog.String("error", s.Error()))
	}
	if obs != nil {
		obs.DocumentOpened(path)
	}
	return nil
}

// cleanPath puts a workspace-relative path in the slash-separated clean form
// the watcher reports, so "./a.md" and "a.md" name the same document.
func cleanPath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

// Close discards the document and returns to Empty.
func (d *Document) Close() {
	d.mu.Lock()
	path := d.path
	d.gen++
	d.resetLocked()
	d.state = StateEmpty
	d.err = nil
	d.mu.Unlock()
	if path != "" {
		d.logger.Info("document: closed", slog.String("path", path))
	}
}

func (d *Document) resetLocked() {
	d.path = ""
	d.text = ""
	d.dirty = false
	d.conflict = false
	d.persisted = 0
	d.rev++
}

// SetText replaces the document text. It is the only edit entry point;
// annotation changes are routed through it as well.
func (d *Document) SetText(text string) error {
	d.mu.Lock()
	if d.state == StateLoading {
		d.mu.Unlock()
		return fmt.Errorf("%w: document is loading", apperr.ErrBusy)
	}
	changed := d.setTextLocked(text)
	fn := d.onChange
	d.mu.Unlock()

	if changed && fn != nil {
		fn()
	}
	return nil
}

func (d *Document) setTextLocked(text string) bool {
	if text == d.text {
		return false
	}
	d.text = text
	d.dirty = true
	d.rev++
	d.state = StateDirty
	d.err = nil
	return true
}

// mutate applies fn to the current text under the lock and stores the
// result as an edit.
func (d *Document) mutate(fn func(text string) (string, error)) error {
	d.mu.Lock()
	if d.state == StateLoading {
		d.mu.Unlock()
		return fmt.Errorf("%w: document is loading", apperr.ErrBusy)
	}
	next, err := fn(d.text)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	changed := d.setTextLocked(next)
	cb := d.onChange
	d.mu.Unlock()

	if changed && cb != nil {
		cb()
	}
	return nil
}

// Annotate attaches comment to [start, end) of the marker-free text.
func (d *Document) Annotate(start, end int, comment string) (annotation.Annotation, error) {
	var rec annotation.Annotation
	err := d.mutate(func(text string) (string, error) {
		var err error
		rec, err = annotation.New(annotation.Strip(text), start, end, comment, d.now())
		if err != nil {
			return "", err
		}
		return annotation.Add(text, rec), nil
	})
	if err != nil {
		return annotation.Annotation{}, err
	}
	return rec, nil
}

// UpdateAnnotation replaces the comment of annotation id.
func (d *Document) UpdateAnnotation(id, comment string) error {
	return d.mutate(func(text string) (string, error) {
		if _, ok := annotation.Find(annotation.Decode(text), id); !ok {
			return "", fmt.Errorf("annotation %s: %w", id, apperr.ErrNotFound)
		}
		return annotation.Update(text, id, comment), nil
	})
}

// RemoveAnnotation deletes annotation id.
func (d *Document) RemoveAnnotation(id string) error {
	return d.mutate(func(text string) (string, error) {
		if _, ok := annotation.Find(annotation.Decode(text), id); !ok {
			return "", fmt.Errorf("annotation %s: %w", id, apperr.ErrNotFound)
		}
		return annotation.Remove(text, id), nil
	})
}

// Save writes the text if it is dirty. A failed write leaves the document
// dirty with its text intact. Saves are refused while a conflict is pending.
func (d *Document) Save(ctx context.Context) error {
	d.mu.Lock()
	switch {
	case d.state == StateLoading:
		d.mu.Unlock()
		return fmt.Errorf("%w: document is loading", apperr.ErrBusy)
	case d.conflict:
		path := d.path
		d.mu.Unlock()
		return &ConflictError{Path: path}
	case !d.dirty:
		d.mu.Unlock()
		return nil
	case d.path == "":
		saveErr := &SaveError{Err: apperr.ErrNoDocument}
		d.state = StateError
		d.err = saveErr
		d.mu.Unlock()
		return saveErr
	case d.saving:
		d.mu.Unlock()
		return fmt.Errorf("%w: save already in flight", apperr.ErrBusy)
	}
	d.saving = true
	path, text, rev, gen := d.path, d.text, d.rev, d.gen
	d.mu.Unlock()

	err := d.store.WriteTextAtomic(ctx, path, text)

	d.mu.Lock()
	d.saving = false
	if gen != d.gen {
		// The document was closed or replaced mid-write.
		d.mu.Unlock()
		if err != nil {
			return &SaveError{Path: path, Err: err}
		}
		return nil
	}
	if err != nil {
		saveErr := &SaveError{Path: path, Err: err}
		d.state = StateError
		d.err = saveErr
		d.mu.Unlock()
		d.logger.Error("document: save failed", slog.String("path", path), slog.String("error", err.Error()))
		return saveErr
	}
	d.persisted = checksum.Fingerprint(text)
	d.err = nil
	if d.rev == rev {
		d.dirty = false
		d.state = StateReady
	} else {
		d.state = StateDirty
	}
	d.mu.Unlock()
	d.logger.Debug("document: saved", slog.String("path", path), slog.Int("bytes", len(text)))
	return nil
}

// ExternalChange handles a notification that path changed on disk. A clean
// document reloads silently. A dirty one records a conflict and returns a
// *ConflictError; nothing is overwritten until ResolveConflict is called.
func (d *Document) ExternalChange(ctx context.Context, path string) (Outcome, error) {
	path = cleanPath(path)
	d.mu.Lock()
	if d.path == "" || path != d.path || d.state == StateLoading {
		d.mu.Unlock()
		return OutcomeIgnored, nil
	}
	gen := d.gen
	d.mu.Unlock()

	text, readErr := d.store.ReadText(ctx, path)

	d.mu.Lock()
	if gen != d.gen || path != d.path {
		d.mu.Unlock()
		return OutcomeIgnored, nil
	}
	if readErr == nil && checksum.Fingerprint(text) == d.persisted {
		d.mu.Unlock()
		return OutcomeUnchanged, nil
	}
	if d.dirty {
		d.conflict = true
		d.mu.Unlock()
		d.logger.Warn("document: external change conflicts with local edits", slog.String("path", path))
		return OutcomeConflict, &ConflictError{Path: path, Err: readErr}
	}
	if readErr != nil {
		d.resetLocked()
		loadErr := &LoadError{Path: path, Err: readErr}
		d.state = StateError
		d.err = loadErr
		d.mu.Unlock()
		d.logger.Warn("document: reload failed", slog.String("path", path), slog.String("error", readErr.Error()))
		return OutcomeReloaded, loadErr
	}
	d.text = text
	d.rev++
	d.persisted = checksum.Fingerprint(text)
	d.state = StateReady
	d.err = nil
	d.mu.Unlock()
	d.logger.Info("document: reloaded after external change", slog.String("path", path))
	return OutcomeReloaded, nil
}

// ResolveConflict settles a pending conflict. ResolveReload discards local
// edits and reads the file again; ResolveKeepLocal keeps them and lets the
// next save overwrite the file.
func (d *Document) ResolveConflict(ctx context.Context, r Resolution) error {
	d.mu.Lock()
	if !d.conflict {
		d.mu.Unlock()
		return ErrNoConflict
	}
	path := d.path
	if r == ResolveKeepLocal {
		d.conflict = false
		fn := d.onChange
		d.mu.Unlock()
		d.logger.Info("document: conflict resolved, keeping local edits", slog.String("path", path))
		if fn != nil {
			fn()
		}
		return nil
	}
	d.mu.Unlock()
	d.logger.Info("document: conflict resolved, reloading", slog.String("path", path))
	return d.Open(ctx, path)
}

// SetMode switches between read and edit presentation.
func (d *Document) SetMode(m Mode) {
	d.mu.Lock()
	d.mode = m
	d.mu.Unlock()
}

// ToggleMode flips the view mode and returns the new one.
func (d *Document) ToggleMode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode == ModeEdit {
		d.mode = ModeRead
	} else {
		d.mode = ModeEdit
	}
	return d.mode
}

// Path returns the open path, or "" when nothing is open.
func (d *Document) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// Text returns the full text including markers.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Dirty reports whether the text differs from the last persisted copy.
func (d *Document) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// State returns the lifecycle state.
func (d *Document) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Err returns the advisory error of the last failed operation.
func (d *Document) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Conflict reports whether an external change awaits resolution.
func (d *Document) Conflict() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conflict
}

// Annotations decodes the annotations embedded in the current text.
func (d *Document) Annotations() []annotation.Annotation {
	return annotation.Decode(d.Text())
}
