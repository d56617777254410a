package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/flx/internal/shared"
	"github.com/desertthunder/flx/internal/store"
)

type fakeBackend struct {
	*httptest.Server
	logins        atomic.Int32
	refreshes     atomic.Int32
	logouts       atomic.Int32
	expiresIn     int
	refreshStatus int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{expiresIn: 3600}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		switch r.PostForm.Get("grant_type") {
		case "password":
			fb.logins.Add(1)
			if r.PostForm.Get("password") != "hunter22" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-1", "token_type": "bearer", "expires_in": fb.expiresIn,
				"refresh_token": "refresh-1", "user_id": "u1",
			})
		case "refresh_token":
			fb.refreshes.Add(1)
			if fb.refreshStatus != 0 {
				w.WriteHeader(fb.refreshStatus)
				json.NewEncoder(w).Encode(map[string]string{"error": "temporarily_unavailable"})
				return
			}
			if r.PostForm.Get("refresh_token") != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access-2", "token_type": "bearer", "expires_in": 3600,
				"refresh_token": "refresh-2", "user_id": "u1",
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "unsupported_grant_type"})
		}
	})
	mux.HandleFunc("POST /auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["email"] == "taken@example.com" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "u2", "email": body["email"]})
	})
	mux.HandleFunc("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		fb.logouts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "u1", "email": "a@example.com"})
	})

	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func newManager(t *testing.T, fb *fakeBackend) (*Manager, *store.Local) {
	t.Helper()
	local, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	return NewManager(ManagerOpts{BaseURL: fb.URL, Store: local}), local
}

func collect(o *Observer) *[]Event {
	var events []Event
	o.Subscribe(func(_ context.Context, e Event) { events = append(events, e) })
	return &events
}

func TestObserver(t *testing.T) {
	t.Run("delivers in subscription order", func(t *testing.T) {
		o := NewObserver()
		var order []string
		o.Subscribe(func(context.Context, Event) { order = append(order, "first") })
		o.Subscribe(func(context.Context, Event) { order = append(order, "second") })

		o.Publish(context.Background(), SignedInEvent("u1"))
		assert.Equal(t, []string{"first", "second"}, order)

		last, ok := o.Last()
		require.True(t, ok)
		assert.Equal(t, SignedIn, last.Type)
		assert.Equal(t, "u1", last.UserID)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		o := NewObserver()
		calls := 0
		unsubscribe := o.Subscribe(func(context.Context, Event) { calls++ })

		o.Publish(context.Background(), SignedOutEvent())
		unsubscribe()
		unsubscribe()
		o.Publish(context.Background(), SignedOutEvent())

		assert.Equal(t, 1, calls)
	})

	t.Run("no events yet", func(t *testing.T) {
		_, ok := NewObserver().Last()
		assert.False(t, ok)
		assert.Equal(t, "signed_out", SignedOut.String())
	})
}

func TestManager(t *testing.T) {
	ctx := context.Background()

	t.Run("restore without session publishes signed out", func(t *testing.T) {
		m, _ := newManager(t, newFakeBackend(t))
		events := collect(m.Observer())

		assert.Nil(t, m.Restore(ctx))
		assert.Equal(t, []Event{SignedOutEvent()}, *events)
		assert.Empty(t, m.UserID())
	})

	t.Run("sign in persists session and publishes", func(t *testing.T) {
		fb := newFakeBackend(t)
		m, local := newManager(t, fb)
		events := collect(m.Observer())

		sess, err := m.SignIn(ctx, "a@example.com", "hunter22")
		require.NoError(t, err)
		assert.Equal(t, "u1", sess.UserID)
		assert.Equal(t, "access-1", sess.Token.AccessToken)
		assert.Equal(t, []Event{SignedInEvent("u1")}, *events)

		_, ok, err := local.Get(SessionKey)
		require.NoError(t, err)
		assert.True(t, ok)

		restored := NewManager(ManagerOpts{BaseURL: fb.URL, Store: local})
		got := restored.Restore(ctx)
		require.NotNil(t, got)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, "a@example.com", got.Email)
	})

	t.Run("bad password is an auth error", func(t *testing.T) {
		m, _ := newManager(t, newFakeBackend(t))
		_, err := m.SignIn(ctx, "a@example.com", "wrong")
		assert.ErrorIs(t, err, shared.ErrAuth)
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
		assert.Nil(t, m.Session())
	})

	t.Run("missing credentials", func(t *testing.T) {
		m, _ := newManager(t, newFakeBackend(t))
		_, err := m.SignIn(ctx, "", "")
		assert.ErrorIs(t, err, shared.ErrMissingCredentials)
	})

	t.Run("token refresh is persisted", func(t *testing.T) {
		fb := newFakeBackend(t)
		fb.expiresIn = 1
		m, local := newManager(t, fb)

		_, err := m.SignIn(ctx, "a@example.com", "hunter22")
		require.NoError(t, err)

		tok, err := m.TokenSource().Token()
		require.NoError(t, err)
		assert.Equal(t, "access-2", tok.AccessToken)
		assert.Equal(t, int32(1), fb.refreshes.Load())

		raw, ok, err := local.Get(SessionKey)
		require.NoError(t, err)
		require.True(t, ok)
		var stored Session
		require.NoError(t, json.Unmarshal(raw, &stored))
		assert.Equal(t, "access-2", stored.Token.AccessToken)
		assert.Equal(t, "refresh-2", stored.Token.RefreshToken)

		tok, err = m.Token()
		require.NoError(t, err)
		assert.Equal(t, "access-2", tok.AccessToken)
		assert.Equal(t, int32(1), fb.refreshes.Load(), "a valid token is not refreshed again")
	})

	t.Run("rejected refresh ends the session", func(t *testing.T) {
		fb := newFakeBackend(t)
		fb.expiresIn = 1
		m, local := newManager(t, fb)

		_, err := m.SignIn(ctx, "a@example.com", "hunter22")
		require.NoError(t, err)
		m.session.Token.RefreshToken = "revoked"
		events := collect(m.Observer())

		_, err = m.Token()
		assert.ErrorIs(t, err, shared.ErrTokenExpired)
		assert.Nil(t, m.Session())
		assert.Equal(t, []Event{SignedOutEvent()}, *events)

		_, ok, _ := local.Get(SessionKey)
		assert.False(t, ok)
	})

	t.Run("backend outage during refresh keeps the session", func(t *testing.T) {
		for _, status := range []int{http.StatusServiceUnavailable, http.StatusTooManyRequests} {
			fb := newFakeBackend(t)
			fb.expiresIn = 1
			m, local := newManager(t, fb)

			_, err := m.SignIn(ctx, "a@example.com", "hunter22")
			require.NoError(t, err)
			fb.refreshStatus = status
			events := collect(m.Observer())

			_, err = m.Token()
			assert.ErrorIs(t, err, shared.ErrTransport)
			assert.NotErrorIs(t, err, shared.ErrAuth)
			assert.Equal(t, status, shared.StatusCode(err))
			assert.NotNil(t, m.Session())
			assert.Empty(t, *events)

			_, ok, _ := local.Get(SessionKey)
			assert.True(t, ok, "session survives a %d", status)
		}
	})

	t.Run("token without session", func(t *testing.T) {
		m, _ := newManager(t, newFakeBackend(t))
		_, err := m.Token()
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
	})

	t.Run("sign out clears locally even when remote fails", func(t *testing.T) {
		fb := newFakeBackend(t)
		m, local := newManager(t, fb)
		_, err := m.SignIn(ctx, "a@example.com", "hunter22")
		require.NoError(t, err)

		fb.Close()
		events := collect(m.Observer())

		require.NoError(t, m.SignOut(ctx))
		assert.Nil(t, m.Session())
		assert.Equal(t, []Event{SignedOutEvent()}, *events)

		_, ok, _ := local.Get(SessionKey)
		assert.False(t, ok)
	})

	t.Run("sign out revokes remotely", func(t *testing.T) {
		fb := newFakeBackend(t)
		m, _ := newManager(t, fb)
		_, err := m.SignIn(ctx, "a@example.com", "hunter22")
		require.NoError(t, err)

		require.NoError(t, m.SignOut(ctx))
		assert.Equal(t, int32(1), fb.logouts.Load())
	})

	t.Run("sign up", func(t *testing.T) {
		m, _ := newManager(t, newFakeBackend(t))

		user, err := m.SignUp(ctx, "new@example.com", "hunter22")
		require.NoError(t, err)
		assert.Equal(t, "u2", user.ID)

		_, err = m.SignUp(ctx, "taken@example.com", "hunter22")
		assert.True(t, errors.Is(err, shared.ErrConflict))
	})

	t.Run("current user", func(t *testing.T) {
		m, _ := newManager(t, newFakeBackend(t))
		_, err := m.SignIn(ctx, "a@example.com", "hunter22")
		require.NoError(t, err)

		user, err := m.CurrentUser(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", user.Email)
	})

	t.Run("corrupt session is discarded", func(t *testing.T) {
		m, local := newManager(t, newFakeBackend(t))
		require.NoError(t, local.Put(SessionKey, []byte("{not json")))
		assert.Nil(t, m.Restore(ctx))
	})
}
