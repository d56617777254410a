package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
)

// ProfileRepository persists [models.Profile] records. A profile's id is its user's id.
type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Get(ctx context.Context, id string) (*models.Profile, error) {
	var (
		p         models.Profile
		fullName  sql.NullString
		avatarURL sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, avatar_url, created_at, updated_at FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Email, &fullName, &avatarURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	if fullName.Valid {
		p.FullName = &fullName.String
	}
	if avatarURL.Valid {
		p.AvatarURL = &avatarURL.String
	}
	return &p, nil
}

// Update applies the non-nil fields of u and returns the stored profile.
func (r *ProfileRepository) Update(ctx context.Context, id string, u models.ProfileUpdate) (*models.Profile, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE profiles
		SET full_name = COALESCE(?, full_name),
		    avatar_url = COALESCE(?, avatar_url),
		    updated_at = ?
		WHERE id = ?
	`, nullable(u.FullName), nullable(u.AvatarURL), now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("profile %s: %w", id, shared.ErrNotFound)
	}
	return r.Get(ctx, id)
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
