package progress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/desertthunder/flx/internal/auth"
	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/services"
	"github.com/desertthunder/flx/internal/shared"
)

type memStore struct {
	mu   sync.Mutex
	rows []models.WatchProgress
	err  error
}

func (m *memStore) List(_ context.Context, userID string, limit int) ([]models.WatchProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.WatchProgress
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) Upsert(_ context.Context, p models.WatchProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for i, r := range m.rows {
		if r.UserID == p.UserID && r.Key() == p.Key() {
			m.rows[i] = p
			return nil
		}
	}
	m.rows = append(m.rows, p)
	return nil
}

func (m *memStore) Remove(_ context.Context, userID string, mediaID int, mediaType models.MediaType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.Key{MediaID: mediaID, MediaType: mediaType}
	for i, r := range m.rows {
		if r.UserID == userID && r.Key() == key {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			break
		}
	}
	return nil
}

func newTracker(store Store) *Tracker {
	tr := NewTracker(store, nil)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return tr
}

func TestTracker(t *testing.T) {
	ctx := context.Background()

	t.Run("requires identity", func(t *testing.T) {
		tr := newTracker(&memStore{})
		assert.ErrorIs(t, tr.Update(ctx, 550, models.MediaMovie, 10), shared.ErrNotAuthenticated)
		assert.ErrorIs(t, tr.Remove(ctx, 550, models.MediaMovie), shared.ErrNotAuthenticated)
	})

	t.Run("clamps progress", func(t *testing.T) {
		tr := newTracker(&memStore{})
		tr.HandleAuth(ctx, auth.SignedInEvent("u1"))

		require.NoError(t, tr.Update(ctx, 1, models.MediaMovie, 140))
		require.NoError(t, tr.Update(ctx, 2, models.MediaTV, -5))

		assert.Equal(t, 100.0, tr.Progress(1, models.MediaMovie))
		assert.Equal(t, 0.0, tr.Progress(2, models.MediaTV))
		assert.Equal(t, 0.0, tr.Progress(3, models.MediaTV))
	})

	t.Run("rejects NaN progress", func(t *testing.T) {
		store := &memStore{}
		tr := newTracker(store)
		tr.HandleAuth(ctx, auth.SignedInEvent("u1"))

		assert.ErrorIs(t, tr.Update(ctx, 550, models.MediaMovie, math.NaN()), shared.ErrInvalidInput)
		assert.Empty(t, store.rows)
		assert.Equal(t, 0.0, tr.Progress(550, models.MediaMovie))
	})

	t.Run("upsert keys on user and title", func(t *testing.T) {
		store := &memStore{}
		tr := newTracker(store)
		tr.HandleAuth(ctx, auth.SignedInEvent("u1"))

		require.NoError(t, tr.Update(ctx, 550, models.MediaMovie, 25))
		require.NoError(t, tr.Update(ctx, 550, models.MediaMovie, 60))
		require.NoError(t, tr.Update(ctx, 550, models.MediaTV, 10))

		assert.Len(t, store.rows, 2)
		assert.Equal(t, 60.0, tr.Progress(550, models.MediaMovie))
	})

	t.Run("items are limited and most recent first", func(t *testing.T) {
		tr := newTracker(&memStore{})
		tr.HandleAuth(ctx, auth.SignedInEvent("u1"))

		for id := 1; id <= 25; id++ {
			require.NoError(t, tr.Update(ctx, id, models.MediaMovie, 50))
		}

		items := tr.Items()
		require.Len(t, items, Limit)
		assert.Equal(t, 25, items[0].MediaID)
		assert.True(t, items[0].LastWatched.After(items[1].LastWatched))
	})

	t.Run("remove refreshes", func(t *testing.T) {
		tr := newTracker(&memStore{})
		tr.HandleAuth(ctx, auth.SignedInEvent("u1"))
		require.NoError(t, tr.Update(ctx, 550, models.MediaMovie, 50))

		require.NoError(t, tr.Remove(ctx, 550, models.MediaMovie))
		assert.Empty(t, tr.Items())
	})

	t.Run("sign out clears", func(t *testing.T) {
		tr := newTracker(&memStore{})
		tr.HandleAuth(ctx, auth.SignedInEvent("u1"))
		require.NoError(t, tr.Update(ctx, 550, models.MediaMovie, 50))

		tr.HandleAuth(ctx, auth.SignedOutEvent())
		assert.Empty(t, tr.Items())
		assert.Equal(t, 0.0, tr.Progress(550, models.MediaMovie))
	})

	t.Run("store errors propagate", func(t *testing.T) {
		store := &memStore{}
		tr := newTracker(store)
		tr.HandleAuth(ctx, auth.SignedInEvent("u1"))
		store.err = shared.ErrTransport

		assert.True(t, errors.Is(tr.Update(ctx, 1, models.MediaMovie, 5), shared.ErrTransport))
	})

	t.Run("watch replays last event", func(t *testing.T) {
		store := &memStore{rows: []models.WatchProgress{{UserID: "u1", MediaID: 7, MediaType: models.MediaTV, Progress: 42}}}
		tr := newTracker(store)
		o := auth.NewObserver()
		o.Publish(ctx, auth.SignedInEvent("u1"))

		defer tr.Watch(o)()
		assert.Equal(t, 42.0, tr.Progress(7, models.MediaTV))
	})
}

func TestRESTStore(t *testing.T) {
	var got *http.Request
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		body, _ = io.ReadAll(r.Body)
		w.Write([]byte(`[{"user_id":"u1","media_id":1,"media_type":"movie","progress":50,"last_watched":"2024-05-01T12:00:00Z"}]`))
	}))
	defer server.Close()

	client := services.NewBackendClient(services.NewAPIService(server.URL, nil), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "t"}), nil)
	store := NewRESTStore(client)
	ctx := context.Background()

	t.Run("list", func(t *testing.T) {
		rows, err := store.List(ctx, "u1", Limit)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 50.0, rows[0].Progress)

		q, _ := url.ParseQuery(got.URL.RawQuery)
		assert.Equal(t, "eq.u1", q.Get("user_id"))
		assert.Equal(t, "last_watched.desc", q.Get("order"))
		assert.Equal(t, "20", q.Get("limit"))
	})

	t.Run("upsert", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, models.WatchProgress{ID: "ignored", UserID: "u1", MediaID: 1, MediaType: models.MediaMovie, Progress: 75}))
		assert.Equal(t, http.MethodPost, got.Method)
		assert.Equal(t, onConflict, got.URL.Query().Get("on_conflict"))

		var sent map[string]any
		require.NoError(t, json.Unmarshal(body, &sent))
		assert.NotContains(t, sent, "id")
		assert.Equal(t, 75.0, sent["progress"])
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, store.Remove(ctx, "u1", 1, models.MediaMovie))
		assert.Equal(t, http.MethodDelete, got.Method)
		assert.Equal(t, "eq.movie", got.URL.Query().Get("media_type"))
	})
}
