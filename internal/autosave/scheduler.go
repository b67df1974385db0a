// Package autosave debounces document edits into saves and serialises
// external change notifications against in-flight writes.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/sidenote/internal/apperr"
	"github.com/starford/sidenote/internal/document"
)

// DefaultDelay is the quiet period after the last edit before a save.
const DefaultDelay = 500 * time.Millisecond

const shutdownSaveTimeout = 5 * time.Second

// ErrStopped is returned by Flush once Run has returned.
var ErrStopped = errors.New("autosave: scheduler stopped")

// Target is the document the scheduler persists.
type Target interface {
	Path() string
	Dirty() bool
	Save(ctx context.Context) error
	ExternalChange(ctx context.Context, path string) (document.Outcome, error)
}

var _ Target = (*document.Document)(nil)

// EventKind classifies scheduler events.
type EventKind string

const (
	EventSaved      EventKind = "saved"
	EventSaveFailed EventKind = "save_failed"
	EventReloaded   EventKind = "reloaded"
	EventConflict   EventKind = "conflict"
	EventLoadFailed EventKind = "load_failed"
	EventUnchanged  EventKind = "unchanged"
)

// Event is delivered to the callback after a save or an external change
// has been handled.
type Event struct {
	Kind EventKind
	Path string
	Err  error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDelay sets the debounce delay. Non-positive values keep the default.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithCallback registers fn to receive events. It runs on the scheduler
// goroutine and must not block.
func WithCallback(fn func(Event)) Option {
	return func(s *Scheduler) { s.callback = fn }
}

// Scheduler owns the single debounce timer of one document.
//
// All state lives in the Run goroutine. At most one save is in flight; an
// external change that arrives meanwhile waits in a one-slot queue (latest
// path wins) and is applied once the save resolves.
type Scheduler struct {
	target   Target
	delay    time.Duration
	logger   *slog.Logger
	callback func(Event)

	touchCh    chan struct{}
	externalCh chan string
	flushCh    chan chan error
	done       chan struct{}
}

// New creates a scheduler for target. Call Run to start it.
func New(target Target, opts ...Option) *Scheduler {
	s := &Scheduler{
		target:     target,
		delay:      DefaultDelay,
		logger:     slog.Default(),
		touchCh:    make(chan struct{}, 1),
		externalCh: make(chan string, 16),
		flushCh:    make(chan chan error),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Touch restarts the debounce timer. It never blocks and is safe to call
// from document change hooks.
func (s *Scheduler) Touch() {
	select {
	case s.touchCh <- struct{}{}:
	default:
	}
}

// External queues an external change notification for path.
func (s *Scheduler) External(path string) {
	select {
	case s.externalCh <- path:
	case <-s.done:
	}
}

// Flush cancels the pending timer, saves now if the document is dirty and
// waits for the result. A save already in flight is followed by a fresh one
// so edits made during it are covered.
func (s *Scheduler) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case s.flushCh <- reply:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes edits, timer expiries, flushes and external changes until
// ctx is cancelled. On shutdown a dirty document gets one last save.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.done)

	timer := time.NewTimer(s.delay)
	timer.Stop()
	var timerC <-chan time.Time

	saveCtx := context.WithoutCancel(ctx)
	saveDone := make(chan saveResult, 1)
	inFlight := false
	resave := false
	var pending string
	hasPending := false

	// waiting are resolved by the save in flight; next need a save that
	// starts after it.
	var waiting, next []chan error

	resolve := func(list []chan error, err error) {
		for _, ch := range list {
			ch <- err
		}
	}

	startSave := func() {
		inFlight = true
		path := s.target.Path()
		go func() {
			saveDone <- saveResult{path: path, err: s.target.Save(saveCtx)}
		}()
	}

	// saveIfDirty starts a save or resolves waiters straight away when
	// there is nothing to write.
	saveIfDirty := func() {
		if s.target.Dirty() {
			startSave()
			return
		}
		resolve(waiting, nil)
		waiting = nil
	}

	s.logger.Debug("autosave: started", slog.Duration("delay", s.delay))

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			if inFlight {
				res := <-saveDone
				s.reportSave(res.path, res.err)
				resolve(waiting, res.err)
				waiting = nil
			}
			waiting = append(waiting, next...)
			err := s.finalSave()
			resolve(waiting, err)
			s.logger.Debug("autosave: stopped")
			return nil

		case <-s.touchCh:
			timer.Stop()
			timer.Reset(s.delay)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if inFlight {
				resave = true
				continue
			}
			saveIfDirty()

		case reply := <-s.flushCh:
			timer.Stop()
			timerC = nil
			if inFlight {
				next = append(next, reply)
				continue
			}
			waiting = append(waiting, reply)
			saveIfDirty()

		case path := <-s.externalCh:
			if inFlight {
				if hasPending && pending != path {
					s.logger.Debug("autosave: replacing queued external change",
						slog.String("old", pending), slog.String("new", path))
				}
				pending, hasPending = path, true
				continue
			}
			s.applyExternal(ctx, path)

		case res := <-saveDone:
			inFlight = false
			s.reportSave(res.path, res.err)
			resolve(waiting, res.err)
			waiting, next = next, nil

			if hasPending {
				path := pending
				pending, hasPending = "", false
				s.applyExternal(ctx, path)
			}
			if resave || len(waiting) > 0 {
				resave = false
				saveIfDirty()
			}
		}
	}
}

func (s *Scheduler) finalSave() error {
	if !s.target.Dirty() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownSaveTimeout)
	defer cancel()
	path := s.target.Path()
	err := s.target.Save(ctx)
	s.reportSave(path, err)
	return err
}

func (s *Scheduler) reportSave(path string, err error) {
	switch {
	case err == nil:
		s.logger.Debug("autosave: saved", slog.String("path", path))
		s.emit(Event{Kind: EventSaved, Path: path})
	case errors.Is(err, apperr.ErrConflict):
		s.logger.Info("autosave: save held until conflict is resolved", slog.String("path", path))
	case errors.Is(err, apperr.ErrBusy):
		s.logger.Debug("autosave: save skipped", slog.String("path", path), slog.String("reason", err.Error()))
	default:
		s.logger.Error("autosave: save failed", slog.String("path", path), slog.String("error", err.Error()))
		s.emit(Event{Kind: EventSaveFailed, Path: path, Err: err})
	}
}

func (s *Scheduler) applyExternal(ctx context.Context, path string) {
	out, err := s.target.ExternalChange(context.WithoutCancel(ctx), path)
	switch out {
	case document.OutcomeIgnored:
		return
	case document.OutcomeUnchanged:
		s.emit(Event{Kind: EventUnchanged, Path: path})
	case document.OutcomeConflict:
		s.emit(Event{Kind: EventConflict, Path: path, Err: err})
	case document.OutcomeReloaded:
		if err != nil {
			s.emit(Event{Kind: EventLoadFailed, Path: path, Err: err})
			return
		}
		s.emit(Event{Kind: EventReloaded, Path: path})
	}
}

func (s *Scheduler) emit(ev Event) {
	if s.callback != nil {
		s.callback(ev)
	}
}

// saveResult carries the path captured when a save started, since the
// document may have moved on by the time the result is reported.
type saveResult struct {
	path string
	err  error
}
