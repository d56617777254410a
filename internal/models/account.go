package models

import (
	"errors"
	"fmt"
	"math"
	"net/mail"
	"time"
)

var ErrInvalidEmail = errors.New("invalid email address")

// User is an account known to the backend. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) Validate() error {
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEmail, u.Email)
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// Profile is the public account record. Its ID equals the owning user's ID.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name"`
	AvatarURL *string   `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) Validate() error {
	if p.ID == "" {
		return errors.New("profile id is required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEmail, p.Email)
	}
	return nil
}

// DisplayName falls back to the email when no full name is set.
func (p *Profile) DisplayName() string {
	if p.FullName != nil && *p.FullName != "" {
		return *p.FullName
	}
	return p.Email
}

// ProfileUpdate carries the mutable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// RefreshToken is an opaque, single-use token exchanged for a new access token.
type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// WatchProgress is a continue-watching row.
type WatchProgress struct {
	ID          string    `json:"id,omitempty"`
	UserID      string    `json:"user_id"`
	MediaID     int       `json:"media_id"`
	MediaType   MediaType `json:"media_type"`
	Progress    float64   `json:"progress"`
	LastWatched time.Time `json:"last_watched"`
}

func (w *WatchProgress) Key() Key { return Key{MediaID: w.MediaID, MediaType: w.MediaType} }

func (w *WatchProgress) Validate() error {
	if w.UserID == "" {
		return errors.New("user_id is required")
	}
	if w.MediaID <= 0 {
		return fmt.Errorf("media_id must be positive, got %d", w.MediaID)
	}
	if !w.MediaType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMediaType, w.MediaType)
	}
	if math.IsNaN(w.Progress) || w.Progress < 0 || w.Progress > 100 {
		return fmt.Errorf("progress must be within [0, 100], got %v", w.Progress)
	}
	return nil
}

// ClampProgress bounds a percentage to [0, 100].
func ClampProgress(p float64) float64 {
	return min(100, max(0, p))
}
