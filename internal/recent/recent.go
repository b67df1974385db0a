// Package recent tracks recently opened workspaces.
package recent

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/sidenote/internal/models"
)

// DefaultMax is the number of projects kept.
const DefaultMax = 10

// Store persists the recent list.
type Store interface {
	LoadRecent() ([]models.RecentProject, error)
	SaveRecent(list []models.RecentProject) error
}

// Tracker keeps a capped, most-recently-opened-first list of workspaces,
// keyed by root path.
type Tracker struct {
	store  Store
	max    int
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMax caps the list. Non-positive values keep DefaultMax.
func WithMax(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.max = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New creates a tracker backed by store.
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, max: DefaultMax, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// List returns the recent projects, most recently opened first.
func (t *Tracker) List() ([]models.RecentProject, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list, err := t.store.LoadRecent()
	if err != nil {
		return nil, fmt.Errorf("recent: load: %w", err)
	}
	if list == nil {
		list = []models.RecentProject{}
	}
	return list, nil
}

// Add records that rootPath was opened. An existing entry moves to the
// front and keeps its creation time. An empty name defaults to the last
// path element.
func (t *Tracker) Add(rootPath, name string) (models.RecentProject, error) {
	if abs, err := filepath.Abs(rootPath); err == nil {
		rootPath = abs
	}
	if name == "" {
		name = filepath.Base(rootPath)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	list, err := t.store.LoadRecent()
	if err != nil {
		return models.RecentProject{}, fmt.Errorf("recent: load: %w", err)
	}

	now := t.now().UTC()
	p := models.RecentProject{
		ID:         rootPath,
		Name:       name,
		RootPath:   rootPath,
		CreatedAt:  now,
		LastOpened: now,
	}
	out := make([]models.RecentProject, 0, len(list)+1)
	out = append(out, p)
	for _, existing := range list {
		if existing.RootPath == rootPath {
			out[0].CreatedAt = existing.CreatedAt
			continue
		}
		out = append(out, existing)
	}
	if len(out) > t.max {
		out = out[:t.max]
	}

	if err := t.store.SaveRecent(out); err != nil {
		return models.RecentProject{}, fmt.Errorf("recent: save: %w", err)
	}
	t.logger.Debug("recent: recorded", slog.String("root", rootPath))
	return out[0], nil
}
