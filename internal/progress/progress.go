// Package progress tracks continue-watching positions for the signed-in user.
package progress

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/flx/internal/auth"
	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/services"
	"github.com/desertthunder/flx/internal/shared"
)

const (
	Table = "watch_progress"
	// Limit caps the continue-watching row.
	Limit      = 20
	onConflict = "user_id,media_id,media_type"
)

// Store persists progress rows per user.
type Store interface {
	List(ctx context.Context, userID string, limit int) ([]models.WatchProgress, error)
	Upsert(ctx context.Context, p models.WatchProgress) error
	Remove(ctx context.Context, userID string, mediaID int, mediaType models.MediaType) error
}

// RESTStore implements [Store] over the backend's watch_progress table.
type RESTStore struct {
	client *services.BackendClient
}

func NewRESTStore(client *services.BackendClient) *RESTStore {
	return &RESTStore{client: client}
}

func (s *RESTStore) List(ctx context.Context, userID string, limit int) ([]models.WatchProgress, error) {
	var rows []models.WatchProgress
	q := services.Query{Order: "last_watched.desc", Limit: limit}.Where(services.Eq("user_id", userID))
	if err := s.client.Select(ctx, Table, q, &rows); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", Table, err)
	}
	return rows, nil
}

func (s *RESTStore) Upsert(ctx context.Context, p models.WatchProgress) error {
	p.ID = ""
	if err := s.client.Upsert(ctx, Table, p, onConflict, nil); err != nil {
		return fmt.Errorf("upsert %s: %w", Table, err)
	}
	return nil
}

func (s *RESTStore) Remove(ctx context.Context, userID string, mediaID int, mediaType models.MediaType) error {
	q := services.Query{}.Where(
		services.Eq("user_id", userID),
		services.Eq("media_id", mediaID),
		services.Eq("media_type", mediaType),
	)
	if err := s.client.Delete(ctx, Table, q, nil); err != nil {
		return fmt.Errorf("delete from %s: %w", Table, err)
	}
	return nil
}

// Tracker keeps the signed-in user's most recent progress rows in memory.
type Tracker struct {
	store  Store
	logger *log.Logger
	now    func() time.Time

	mu     sync.RWMutex
	userID string
	items  []models.WatchProgress
}

func NewTracker(store Store, logger *log.Logger) *Tracker {
	return &Tracker{store: store, logger: shared.ComponentLogger(logger, "progress"), now: time.Now}
}

func (t *Tracker) identity() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.userID
}

// Update records pct (clamped to [0, 100]) for the title and refreshes the list.
func (t *Tracker) Update(ctx context.Context, mediaID int, mediaType models.MediaType, pct float64) error {
	userID := t.identity()
	if userID == "" {
		return shared.ErrNotAuthenticated
	}

	p := models.WatchProgress{
		UserID:      userID,
		MediaID:     mediaID,
		MediaType:   mediaType,
		Progress:    models.ClampProgress(pct),
		LastWatched: t.now().UTC(),
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	if err := t.store.Upsert(ctx, p); err != nil {
		t.logger.Error("failed to update progress", "key", p.Key(), "error", err)
		return err
	}
	return t.Refresh(ctx)
}

// Remove drops the title from continue watching.
func (t *Tracker) Remove(ctx context.Context, mediaID int, mediaType models.MediaType) error {
	userID := t.identity()
	if userID == "" {
		return shared.ErrNotAuthenticated
	}
	if err := t.store.Remove(ctx, userID, mediaID, mediaType); err != nil {
		t.logger.Error("failed to remove progress", "media_id", mediaID, "error", err)
		return err
	}
	return t.Refresh(ctx)
}

// Refresh reloads the list from the store.
func (t *Tracker) Refresh(ctx context.Context) error {
	userID := t.identity()
	if userID == "" {
		return shared.ErrNotAuthenticated
	}

	items, err := t.store.List(ctx, userID, Limit)
	if err != nil {
		return err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].LastWatched.After(items[j].LastWatched)
	})
	if len(items) > Limit {
		items = items[:Limit]
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.userID == userID {
		t.items = items
	}
	return nil
}

// Progress returns the stored percentage, or 0 when the title has none.
func (t *Tracker) Progress(mediaID int, mediaType models.MediaType) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key := models.Key{MediaID: mediaID, MediaType: mediaType}
	for _, p := range t.items {
		if p.Key() == key {
			return p.Progress
		}
	}
	return 0
}

// Items returns the continue-watching list, most recently watched first.
func (t *Tracker) Items() []models.WatchProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.WatchProgress(nil), t.items...)
}

// HandleAuth loads the list on sign-in and clears it on sign-out.
func (t *Tracker) HandleAuth(ctx context.Context, e auth.Event) {
	t.mu.Lock()
	t.items = nil
	t.userID = ""
	if e.Type == auth.SignedIn {
		t.userID = e.UserID
	}
	t.mu.Unlock()

	if e.Type != auth.SignedIn {
		return
	}
	if err := t.Refresh(ctx); err != nil {
		t.logger.Warn("failed to load continue watching", "user_id", e.UserID, "error", err)
	}
}

// Watch subscribes to o and replays its latest event.
func (t *Tracker) Watch(o *auth.Observer) (unsubscribe func()) {
	unsubscribe = o.Subscribe(t.HandleAuth)
	if e, ok := o.Last(); ok {
		t.HandleAuth(context.Background(), e)
	}
	return unsubscribe
}
