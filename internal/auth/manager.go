package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/flx/internal/services"
	"github.com/desertthunder/flx/internal/shared"
)

// SessionKey is the local store key holding the serialized [Session].
const SessionKey = "flx_session"

// SessionStore persists the session between runs. [store.Local] satisfies it.
type SessionStore interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// Session is the signed-in user and their current token pair.
type Session struct {
	UserID string        `json:"user_id"`
	Email  string        `json:"email"`
	Token  *oauth2.Token `json:"token"`
}

// User is the account returned by the backend's user endpoint.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type ManagerOpts struct {
	BaseURL    string
	ClientID   string
	AnonKey    string
	Store      SessionStore
	HTTPClient *http.Client
	Observer   *Observer
	Logger     *log.Logger
}

// Manager owns the session. It is safe for concurrent use.
type Manager struct {
	api      *services.APIService
	conf     *oauth2.Config
	store    SessionStore
	observer *Observer
	logger   *log.Logger
	tokenCtx context.Context

	mu      sync.Mutex
	session *Session
}

func NewManager(opts ManagerOpts) *Manager {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	observer := opts.Observer
	if observer == nil {
		observer = NewObserver()
	}

	api := services.NewAPIService(opts.BaseURL, client)
	if opts.AnonKey != "" {
		api.WithHeader("apikey", opts.AnonKey)
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = "flx-cli"
	}

	return &Manager{
		api: api,
		conf: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  api.BaseURL() + "/auth/v1/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:    opts.Store,
		observer: observer,
		logger:   shared.ComponentLogger(opts.Logger, "auth"),
		tokenCtx: context.WithValue(context.Background(), oauth2.HTTPClient, client),
	}
}

func (m *Manager) Observer() *Observer { return m.observer }

// Session returns a copy of the current session, or nil when anonymous.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// UserID returns the signed-in user's id, or "" when anonymous.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.UserID
}

// Restore loads the persisted session and publishes the resulting state.
// A missing or unreadable session resolves to signed out.
func (m *Manager) Restore(ctx context.Context) *Session {
	sess := m.load()

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()

	if sess == nil {
		m.observer.Publish(ctx, SignedOutEvent())
		return nil
	}
	m.logger.Debug("restored session", "user_id", sess.UserID)
	m.observer.Publish(ctx, SignedInEvent(sess.UserID))
	return m.Session()
}

func (m *Manager) load() *Session {
	if m.store == nil {
		return nil
	}
	raw, ok, err := m.store.Get(SessionKey)
	if err != nil {
		m.logger.Warn("failed to read session", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil || sess.UserID == "" || sess.Token == nil {
		m.logger.Warn("discarding unreadable session")
		return nil
	}
	return &sess
}

func (m *Manager) persist(sess *Session) {
	if m.store == nil {
		return
	}
	if sess == nil {
		if err := m.store.Delete(SessionKey); err != nil {
			m.logger.Warn("failed to delete session", "error", err)
		}
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		m.logger.Warn("failed to encode session", "error", err)
		return
	}
	if err := m.store.Put(SessionKey, data); err != nil {
		m.logger.Warn("failed to save session", "error", err)
	}
}

// SignUp registers a new account. It does not sign in.
func (m *Manager) SignUp(ctx context.Context, email, password string) (*User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", shared.ErrMissingCredentials)
	}

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	resp, err := m.api.Post(ctx, "/auth/v1/signup", body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTransport, err)
	}
	if !resp.OK() {
		return nil, shared.NewAPIError(resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}

	var user User
	if err := resp.Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SignIn exchanges credentials for a token pair with the password grant, persists the session
// and publishes [SignedIn].
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", shared.ErrMissingCredentials)
	}

	tok, err := m.conf.PasswordCredentialsToken(context.WithValue(ctx, oauth2.HTTPClient, m.httpClient()), email, password)
	if err != nil {
		return nil, classifyTokenError(err)
	}

	userID, _ := tok.Extra("user_id").(string)
	if userID == "" {
		return nil, fmt.Errorf("%w: token response is missing user_id", shared.ErrAuth)
	}

	sess := &Session{UserID: userID, Email: email, Token: tok}

	m.mu.Lock()
	m.session = sess
	m.persist(sess)
	m.mu.Unlock()

	m.logger.Info("signed in", "user_id", userID)
	m.observer.Publish(ctx, SignedInEvent(userID))
	return m.Session(), nil
}

// SignOut revokes the session remotely when possible and always clears it locally.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	if sess != nil && sess.Token != nil {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+sess.Token.AccessToken)
		resp, err := m.api.Do(ctx, http.MethodPost, "/auth/v1/logout", []byte{}, header)
		switch {
		case err != nil:
			m.logger.Warn("remote sign out failed", "error", err)
		case !resp.OK():
			m.logger.Warn("remote sign out rejected", "status", resp.StatusCode)
		}
	}

	m.clear()
	m.observer.Publish(ctx, SignedOutEvent())
	return nil
}

func (m *Manager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	m.persist(nil)
}

// CurrentUser asks the backend who the bearer token belongs to.
func (m *Manager) CurrentUser(ctx context.Context) (*User, error) {
	tok, err := m.Token()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := m.api.Do(ctx, http.MethodGet, "/auth/v1/user", nil, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTransport, err)
	}
	if !resp.OK() {
		return nil, shared.NewAPIError(resp.StatusCode, "failed to fetch user")
	}

	var user User
	if err := resp.Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Token returns a valid access token, refreshing and persisting it when expired.
// A rejected refresh ends the session and publishes [SignedOut]; an
// unavailable backend (5xx or 429) leaves the session in place.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.mu.Lock()
	if m.session == nil || m.session.Token == nil {
		m.mu.Unlock()
		return nil, shared.ErrNotAuthenticated
	}

	current := m.session.Token
	tok, err := m.conf.TokenSource(m.tokenCtx, current).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if !errors.As(err, &retrieveErr) && current.RefreshToken != "" {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", shared.ErrTransport, err)
		}
		if status := retrieveStatus(retrieveErr); retryableStatus(status) {
			m.mu.Unlock()
			m.logger.Warn("token refresh unavailable", "status", status)
			return nil, shared.NewAPIError(status, retrieveErr.ErrorDescription)
		}
		m.session = nil
		m.persist(nil)
		m.mu.Unlock()

		m.logger.Warn("session expired", "error", err)
		m.observer.Publish(m.tokenCtx, SignedOutEvent())
		return nil, fmt.Errorf("%w: %w", shared.ErrAuth, shared.ErrTokenExpired)
	}

	if tok.AccessToken != current.AccessToken {
		m.logger.Debug("refreshed access token", "user_id", m.session.UserID)
		m.session.Token = tok
		m.persist(m.session)
	}
	m.mu.Unlock()
	return tok, nil
}

// TokenSource exposes [Manager.Token] for clients that attach bearer tokens.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return tokenSource{m}
}

type tokenSource struct{ m *Manager }

func (s tokenSource) Token() (*oauth2.Token, error) { return s.m.Token() }

func (m *Manager) httpClient() *http.Client {
	if c, ok := m.tokenCtx.Value(oauth2.HTTPClient).(*http.Client); ok {
		return c
	}
	return http.DefaultClient
}

func classifyTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if status := retrieveStatus(retrieveErr); retryableStatus(status) {
			return shared.NewAPIError(status, retrieveErr.ErrorDescription)
		}
		return fmt.Errorf("%w: %w", shared.ErrAuth, shared.ErrInvalidCredentials)
	}
	return fmt.Errorf("%w: %v", shared.ErrTransport, err)
}

func retrieveStatus(err *oauth2.RetrieveError) int {
	if err == nil || err.Response == nil {
		return 0
	}
	return err.Response.StatusCode
}

func retryableStatus(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}
