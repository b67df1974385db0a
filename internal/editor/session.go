// Package editor wires the open document, its autosave scheduler, the
// workspace index and live events into one editing session.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/sidenote/internal/annotation"
	"github.com/starford/sidenote/internal/autosave"
	"github.com/starford/sidenote/internal/document"
	"github.com/starford/sidenote/internal/index"
	"github.com/starford/sidenote/internal/models"
	"github.com/starford/sidenote/internal/recent"
	"github.com/starford/sidenote/internal/sse"
	"github.com/starford/sidenote/internal/storage"
	"github.com/starford/sidenote/internal/watch"
)

// Workspace is the file system the session edits.
type Workspace interface {
	storage.Provider
	Root() string
}

// Publisher receives live events.
type Publisher interface {
	Publish(ev sse.Event)
}

// Option configures a Session.
type Option func(*Session)

// WithIndex keeps db in sync with saves and workspace changes.
func WithIndex(db index.AnnotationIndex) Option {
	return func(s *Session) { s.db = db }
}

// WithRecent records the workspace as recently used when a document opens.
func WithRecent(t *recent.Tracker) Option {
	return func(s *Session) { s.recent = t }
}

// WithPublisher streams session events.
func WithPublisher(p Publisher) Option {
	return func(s *Session) { s.pub = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithAutosaveDelay sets the debounce delay of the scheduler.
func WithAutosaveDelay(d time.Duration) Option {
	return func(s *Session) { s.delay = d }
}

// WithDefaultMode sets the initial view mode.
func WithDefaultMode(m document.Mode) Option {
	return func(s *Session) { s.mode = m }
}

// Session is a single-document editing session over a workspace.
type Session struct {
	ws     Workspace
	db     index.AnnotationIndex
	recent *recent.Tracker
	pub    Publisher
	logger *slog.Logger
	delay  time.Duration
	mode   document.Mode

	doc   *document.Document
	sched *autosave.Scheduler

	// lifecycle serialises Open and Close so a flush and the following
	// load are not interleaved with another switch.
	lifecycle sync.Mutex
}

// New creates a session. Run must be running for saves to happen.
func New(ws Workspace, opts ...Option) *Session {
	s := &Session{
		ws:     ws,
		logger: slog.Default(),
		delay:  autosave.DefaultDelay,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.doc = document.New(ws,
		document.WithLogger(s.logger),
		document.WithObserver(s),
		document.WithMode(s.mode))
	s.sched = autosave.New(s.doc,
		autosave.WithDelay(s.delay),
		autosave.WithLogger(s.logger),
		autosave.WithCallback(s.onAutosave))
	s.doc.OnTextChange(s.sched.Touch)
	return s
}

// Run drives the autosave scheduler until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	return s.sched.Run(ctx)
}

// Document exposes the underlying document.
func (s *Session) Document() *document.Document { return s.doc }

// Tree returns the workspace file tree.
func (s *Session) Tree() ([]*models.Node, error) {
	return s.ws.Tree("")
}

// Open flushes pending edits of the current document and opens path. The
// switch is refused while the current document cannot be saved.
func (s *Session) Open(ctx context.Context, path string) (document.Snapshot, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if err := s.flushCurrent(ctx); err != nil {
		return document.Snapshot{}, err
	}
	if err := s.doc.Open(ctx, path); err != nil {
		s.publish(sse.DocumentError, path, err)
		return s.doc.Snapshot(), err
	}
	s.publish(sse.DocumentOpened, s.doc.Path(), nil)
	return s.doc.Snapshot(), nil
}

// Close flushes pending edits and closes the document.
func (s *Session) Close(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	path := s.doc.Path()
	if err := s.flushCurrent(ctx); err != nil {
		return err
	}
	s.doc.Close()
	if path != "" {
		s.publish(sse.DocumentClosed, path, nil)
	}
	return nil
}

func (s *Session) flushCurrent(ctx context.Context) error {
	if s.doc.Path() == "" || !s.doc.Dirty() {
		return nil
	}
	if err := s.sched.Flush(ctx); err != nil {
		return fmt.Errorf("editor: save %s before switching: %w", s.doc.Path(), err)
	}
	return nil
}

// Snapshot returns the current document view.
func (s *Session) Snapshot() document.Snapshot { return s.doc.Snapshot() }

// SetText replaces the document text.
func (s *Session) SetText(text string) error { return s.doc.SetText(text) }

// Annotate adds an annotation over [start, end) of the marker-free text.
func (s *Session) Annotate(start, end int, comment string) (annotation.Annotation, error) {
	return s.doc.Annotate(start, end, comment)
}

// UpdateAnnotation changes the comment of annotation id.
func (s *Session) UpdateAnnotation(id, comment string) error {
	return s.doc.UpdateAnnotation(id, comment)
}

// RemoveAnnotation deletes annotation id.
func (s *Session) RemoveAnnotation(id string) error {
	return s.doc.RemoveAnnotation(id)
}

// Save writes pending edits now.
func (s *Session) Save(ctx context.Context) error {
	return s.sched.Flush(ctx)
}

// ResolveConflict settles a pending external change conflict.
func (s *Session) ResolveConflict(ctx context.Context, r document.Resolution) error {
	if err := s.doc.ResolveConflict(ctx, r); err != nil {
		return err
	}
	if r == document.ResolveReload {
		s.publish(sse.DocumentReloaded, s.doc.Path(), nil)
	}
	return nil
}

// SetMode switches the view mode.
func (s *Session) SetMode(m document.Mode) { s.doc.SetMode(m) }

// ToggleMode flips the view mode.
func (s *Session) ToggleMode() document.Mode { return s.doc.ToggleMode() }

// SearchAnnotations searches annotations across the workspace.
func (s *Session) SearchAnnotations(query string, limit int) ([]index.AnnotationHit, error) {
	if s.db == nil {
		return []index.AnnotationHit{}, nil
	}
	return s.db.SearchAnnotations(query, limit)
}

// Recent lists recently used workspaces.
func (s *Session) Recent() ([]models.RecentProject, error) {
	if s.recent == nil {
		return []models.RecentProject{}, nil
	}
	return s.recent.List()
}

// HandleFileEvent is the watcher callback. It refreshes the index, forwards
// the change to clients and routes changes of the open document through the
// scheduler.
func (s *Session) HandleFileEvent(ctx context.Context, kind watch.Kind, path string) {
	path = filepath.ToSlash(filepath.Clean(path))
	if s.db != nil {
		var err error
		if kind == watch.Deleted {
			err = s.db.DeleteDocument(path)
		} else {
			err = index.IndexFile(ctx, s.db, s.ws, path)
		}
		if err != nil {
			s.logger.Warn("editor: index update failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}
	if k, ok := sse.FileKind(string(kind)); ok && s.pub != nil {
		s.pub.Publish(sse.Event{Kind: k, Path: path})
	}
	if path == s.doc.Path() {
		s.sched.External(path)
	}
}

// DocumentOpened implements document.Observer.
func (s *Session) DocumentOpened(string) {
	if s.recent == nil {
		return
	}
	if _, err := s.recent.Add(s.ws.Root(), ""); err != nil {
		s.logger.Warn("editor: record recent workspace failed", slog.String("error", err.Error()))
	}
}

func (s *Session) onAutosave(ev autosave.Event) {
	switch ev.Kind {
	case autosave.EventSaved:
		s.reindexOpen(ev.Path)
		s.publish(sse.DocumentSaved, ev.Path, nil)
	case autosave.EventSaveFailed, autosave.EventLoadFailed:
		s.publish(sse.DocumentError, ev.Path, ev.Err)
	case autosave.EventReloaded:
		s.publish(sse.DocumentReloaded, ev.Path, nil)
	case autosave.EventConflict:
		s.publish(sse.DocumentConflict, ev.Path, ev.Err)
	}
}

// reindexOpen indexes the saved text without reading it back from disk.
func (s *Session) reindexOpen(path string) {
	if s.db == nil || path == "" || path != s.doc.Path() || s.doc.Dirty() {
		return
	}
	if err := index.IndexText(s.db, path, s.doc.Text(), time.Now()); err != nil {
		s.logger.Warn("editor: index after save failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func (s *Session) publish(kind sse.Kind, path string, err error) {
	if s.pub == nil {
		return
	}
	ev := sse.Event{Kind: kind, Path: path}
	if err != nil {
		ev.Error = err.Error()
	}
	s.pub.Publish(ev)
}
