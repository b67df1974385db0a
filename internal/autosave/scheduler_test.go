package autosave

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/starford/sidenote/internal/document"
)

type memStore struct {
	mu     sync.Mutex
	files  map[string]string
	writes []string
}

func (m *memStore) ReadText(_ context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.files[path]
	if !ok {
		return "", errors.New("not found")
	}
	return text, nil
}

func (m *memStore) WriteTextAtomic(_ context.Context, path, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = text
	m.writes = append(m.writes, text)
	return nil
}

func (m *memStore) written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

const testDelay = 20 * time.Millisecond

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeTarget records saves and external changes. While gate is non-nil a
// save blocks until it is closed.
type fakeTarget struct {
	mu        sync.Mutex
	dirty     bool
	rev       int
	saves     int
	saving    bool
	saveErr   error
	outcome   document.Outcome
	externals []string
	overlap   bool
	gate      chan struct{}
	entered   chan struct{}
}

func (f *fakeTarget) Path() string { return "doc.md" }

func (f *fakeTarget) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

func (f *fakeTarget) edit() {
	f.mu.Lock()
	f.dirty = true
	f.rev++
	f.mu.Unlock()
}

func (f *fakeTarget) Save(context.Context) error {
	f.mu.Lock()
	f.saving = true
	rev := f.rev
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saving = false
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.rev == rev {
		f.dirty = false
	}
	return nil
}

func (f *fakeTarget) ExternalChange(_ context.Context, path string) (document.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saving {
		f.overlap = true
	}
	f.externals = append(f.externals, path)
	return f.outcome, nil
}

func (f *fakeTarget) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func start(t *testing.T, target Target, opts ...Option) (*Scheduler, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	opts = append([]Option{WithDelay(testDelay), WithLogger(discard)}, opts...)
	s := New(target, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return s, cancel, stopped
}

func TestDebounce_BurstProducesOneSave(t *testing.T) {
	target := &fakeTarget{}
	s, _, _ := start(t, target)

	for i := 0; i < 5; i++ {
		target.edit()
		s.Touch()
		time.Sleep(testDelay / 4)
	}
	eventually(t, func() bool { return target.saveCount() == 1 })
	time.Sleep(3 * testDelay)
	if n := target.saveCount(); n != 1 {
		t.Errorf("saves = %d, want 1", n)
	}
}

func TestTimer_CleanDocumentIsNotSaved(t *testing.T) {
	target := &fakeTarget{}
	s, _, _ := start(t, target)
	s.Touch()
	time.Sleep(3 * testDelay)
	if n := target.saveCount(); n != 0 {
		t.Errorf("saves = %d, want 0", n)
	}
}

func TestFlush_SavesImmediately(t *testing.T) {
	target := &fakeTarget{}
	s, _, _ := start(t, target, WithDelay(time.Hour))
	target.edit()
	s.Touch()

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if target.saveCount() != 1 || target.Dirty() {
		t.Errorf("saves = %d dirty = %v", target.saveCount(), target.Dirty())
	}
}

func TestFlush_ReturnsSaveError(t *testing.T) {
	boom := errors.New("disk full")
	target := &fakeTarget{saveErr: boom}
	s, _, _ := start(t, target)
	target.edit()
	if err := s.Flush(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestFailedSave_NoAutomaticRetry(t *testing.T) {
	target := &fakeTarget{saveErr: errors.New("disk full")}
	var log eventLog
	s, _, _ := start(t, target, WithCallback(log.add))

	target.edit()
	s.Touch()
	eventually(t, func() bool { return target.saveCount() == 1 })
	time.Sleep(3 * testDelay)
	if n := target.saveCount(); n != 1 {
		t.Errorf("saves = %d, want 1", n)
	}
	if !target.Dirty() {
		t.Error("failed save must leave the document dirty")
	}
	kinds := log.kinds()
	if len(kinds) != 1 || kinds[0] != EventSaveFailed {
		t.Errorf("events = %v", kinds)
	}

	// The next edit triggers another attempt.
	s.Touch()
	eventually(t, func() bool { return target.saveCount() == 2 })
}

func TestExternalChange_QueuedBehindInFlightSave(t *testing.T) {
	target := &fakeTarget{
		outcome: document.OutcomeReloaded,
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	var log eventLog
	s, _, _ := start(t, target, WithCallback(log.add))

	target.edit()
	s.Touch()
	<-target.entered

	s.External("doc.md")
	s.External("doc.md")
	time.Sleep(2 * testDelay)
	target.mu.Lock()
	applied := len(target.externals)
	target.mu.Unlock()
	if applied != 0 {
		t.Fatalf("external change applied while save in flight")
	}

	close(target.gate)
	eventually(t, func() bool {
		target.mu.Lock()
		defer target.mu.Unlock()
		return len(target.externals) == 1
	})
	target.mu.Lock()
	overlap := target.overlap
	target.mu.Unlock()
	if overlap {
		t.Error("external change overlapped a save")
	}
	eventually(t, func() bool {
		k := log.kinds()
		return len(k) == 2 && k[0] == EventSaved && k[1] == EventReloaded
	})
}

func TestExternalChange_AppliedDirectlyWhenIdle(t *testing.T) {
	target := &fakeTarget{outcome: document.OutcomeConflict}
	var log eventLog
	s, _, _ := start(t, target, WithCallback(log.add))

	s.External("doc.md")
	eventually(t, func() bool {
		k := log.kinds()
		return len(k) == 1 && k[0] == EventConflict
	})
}

func TestTimerDuringSave_SavesAgain(t *testing.T) {
	gate := make(chan struct{})
	target := &fakeTarget{gate: gate, entered: make(chan struct{}, 2)}
	s, _, _ := start(t, target)

	target.edit()
	s.Touch()
	<-target.entered

	// An edit lands while the first write is blocked. The second write
	// must not block.
	target.mu.Lock()
	target.gate = nil
	target.mu.Unlock()
	target.edit()
	s.Touch()
	time.Sleep(2 * testDelay)
	if n := target.saveCount(); n != 0 {
		t.Fatalf("saves = %d while first write blocked", n)
	}

	close(gate)
	eventually(t, func() bool { return target.saveCount() == 2 })
	if target.Dirty() {
		t.Error("second save should leave the document clean")
	}
}

func TestShutdown_SavesDirtyDocument(t *testing.T) {
	target := &fakeTarget{}
	s, cancel, stopped := start(t, target, WithDelay(time.Hour))
	target.edit()
	s.Touch()
	cancel()
	<-stopped
	if target.saveCount() != 1 || target.Dirty() {
		t.Errorf("saves = %d dirty = %v", target.saveCount(), target.Dirty())
	}
	if err := s.Flush(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Flush after stop: err = %v", err)
	}
}

func TestDocument_EditThenDebouncedSingleWrite(t *testing.T) {
	store := &memStore{files: map[string]string{"doc.md": ""}}
	doc := document.New(store, document.WithLogger(discard))
	if err := doc.Open(context.Background(), "doc.md"); err != nil {
		t.Fatal(err)
	}
	s, _, _ := start(t, doc)
	doc.OnTextChange(s.Touch)

	if err := doc.SetText("Hello **world**"); err != nil {
		t.Fatal(err)
	}
	if doc.State() != document.StateDirty {
		t.Fatalf("state = %v, want dirty", doc.State())
	}
	eventually(t, func() bool { return len(store.written()) == 1 })
	time.Sleep(3 * testDelay)

	writes := store.written()
	if len(writes) != 1 || writes[0] != "Hello **world**" {
		t.Errorf("writes = %q", writes)
	}
	if doc.State() != document.StateReady || doc.Dirty() {
		t.Errorf("state = %v dirty = %v", doc.State(), doc.Dirty())
	}
}

func TestDocument_OwnWriteEchoIsUnchanged(t *testing.T) {
	store := &memStore{files: map[string]string{"doc.md": "a"}}
	doc := document.New(store, document.WithLogger(discard))
	if err := doc.Open(context.Background(), "doc.md"); err != nil {
		t.Fatal(err)
	}
	var log eventLog
	s, _, _ := start(t, doc, WithCallback(log.add))
	doc.OnTextChange(s.Touch)

	_ = doc.SetText("b")
	if err := s.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.External("doc.md")
	eventually(t, func() bool {
		k := log.kinds()
		return len(k) == 2 && k[0] == EventSaved && k[1] == EventUnchanged
	})
	if doc.Conflict() {
		t.Error("own write echo produced a conflict")
	}
}
