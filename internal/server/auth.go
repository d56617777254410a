package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/repositories"
	"github.com/desertthunder/flx/internal/shared"
)

const minPasswordLength = 6

// AuthHandler serves sign-up and the OAuth2 token endpoint under /auth/v1.
//
// The token endpoint accepts the password and refresh_token grants. Refresh tokens are single use
// and rotate on every exchange.
type AuthHandler struct {
	users      *repositories.UserRepository
	refresh    *repositories.TokenRepository
	issuer     *TokenIssuer
	refreshTTL time.Duration
	hashCost   int
	logger     *log.Logger
}

// NewAuthHandler creates an [AuthHandler].
func NewAuthHandler(
	users *repositories.UserRepository,
	refresh *repositories.TokenRepository,
	issuer *TokenIssuer,
	refreshTTL time.Duration,
	logger *log.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:      users,
		refresh:    refresh,
		issuer:     issuer,
		refreshTTL: refreshTTL,
		hashCost:   bcrypt.DefaultCost,
		logger:     logger,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	RefreshToken string       `json:"refresh_token"`
	UserID       string       `json:"user_id"`
	User         userResponse `json:"user"`
}

// Signup handles POST /auth/v1/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&in); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}
	if len(in.Password) < minPasswordLength {
		writeOAuthError(w, http.StatusUnprocessableEntity, "weak_password", "password should be at least 6 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), h.hashCost)
	if err != nil {
		h.logger.Error("failed to hash password", "err", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to create user")
		return
	}

	user, err := h.users.Register(r.Context(), in.Email, string(hash))
	switch {
	case errors.Is(err, shared.ErrConflict):
		writeOAuthError(w, http.StatusConflict, "user_already_exists", "user already registered")
		return
	case errors.Is(err, shared.ErrInvalidInput):
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "invalid email address")
		return
	case err != nil:
		h.logger.Error("failed to register user", "err", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to create user")
		return
	}

	h.logger.Info("user registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Email: user.Email})
}

// Token handles POST /auth/v1/token for the password and refresh_token grants.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	var (
		user *models.User
		ok   bool
	)
	switch grant := r.PostForm.Get("grant_type"); grant {
	case "password":
		user, ok = h.passwordGrant(w, r)
	case "refresh_token":
		user, ok = h.refreshGrant(w, r)
	case "":
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "grant_type is required")
		return
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant type "+grant)
		return
	}
	if !ok {
		return
	}

	resp, err := h.issue(r, user)
	if err != nil {
		h.logger.Error("failed to issue tokens", "user_id", user.ID, "err", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to issue tokens")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) passwordGrant(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	email, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if email == "" || password == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return nil, false
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if errors.Is(err, shared.ErrNotFound) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Invalid login credentials")
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to look up user", "err", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to sign in")
		return nil, false
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Invalid login credentials")
		return nil, false
	}
	return user, true
}

func (h *AuthHandler) refreshGrant(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	raw := r.PostForm.Get("refresh_token")
	if raw == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return nil, false
	}

	tok, err := h.refresh.Consume(r.Context(), raw)
	if errors.Is(err, shared.ErrNotFound) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Invalid Refresh Token")
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to consume refresh token", "err", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to refresh session")
		return nil, false
	}

	user, err := h.users.Get(r.Context(), tok.UserID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Invalid Refresh Token")
		return nil, false
	}
	return user, true
}

func (h *AuthHandler) issue(r *http.Request, user *models.User) (*tokenResponse, error) {
	access, err := h.issuer.Issue(user)
	if err != nil {
		return nil, err
	}
	refresh, err := h.refresh.Create(r.Context(), user.ID, h.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &tokenResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(h.issuer.TTL() / time.Second),
		RefreshToken: refresh.Token,
		UserID:       user.ID,
		User:         userResponse{ID: user.ID, Email: user.Email},
	}, nil
}

// Logout handles POST /auth/v1/logout by revoking every refresh token of the caller.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	n, err := h.refresh.RevokeAll(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("failed to revoke refresh tokens", "user_id", id.UserID, "err", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to sign out")
		return
	}
	h.logger.Debug("signed out", "user_id", id.UserID, "revoked", n)
	w.WriteHeader(http.StatusNoContent)
}

// User handles GET /auth/v1/user.
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	user, err := h.users.Get(r.Context(), id.UserID)
	if errors.Is(err, shared.ErrNotFound) {
		writeOAuthError(w, http.StatusNotFound, "user_not_found", "user not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load user", "user_id", id.UserID, "err", err)
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email})
}
