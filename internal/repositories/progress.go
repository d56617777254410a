package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
)

// ProgressRepository persists [models.WatchProgress] rows.
type ProgressRepository struct {
	db *sql.DB
}

func NewProgressRepository(db *sql.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// List returns the user's rows matching f, most recently watched first.
func (r *ProgressRepository) List(ctx context.Context, userID string, f Filter, limit int) ([]models.WatchProgress, error) {
	where, args := f.where(userID)
	query := "SELECT id, user_id, media_id, media_type, progress, last_watched FROM watch_progress" + where +
		" ORDER BY last_watched DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query watch progress: %w", err)
	}
	defer rows.Close()

	out := []models.WatchProgress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// Upsert inserts p or updates the existing row with the same (user, media id, media type).
// Progress is clamped to [0, 100].
func (r *ProgressRepository) Upsert(ctx context.Context, p models.WatchProgress) (*models.WatchProgress, error) {
	p.Progress = models.ClampProgress(p.Progress)
	if p.LastWatched.IsZero() {
		p.LastWatched = now()
	}
	p.LastWatched = p.LastWatched.UTC()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watch_progress (id, user_id, media_id, media_type, progress, last_watched)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, media_id, media_type)
		DO UPDATE SET progress = excluded.progress, last_watched = excluded.last_watched
	`, shared.GenerateID(), p.UserID, p.MediaID, string(p.MediaType), p.Progress, p.LastWatched)
	if err != nil {
		return nil, writeErr("upsert watch progress", err)
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, media_id, media_type, progress, last_watched
		FROM watch_progress WHERE user_id = ? AND media_id = ? AND media_type = ?
	`, p.UserID, p.MediaID, string(p.MediaType))

	stored, err := scanProgress(row)
	if err != nil {
		return nil, fmt.Errorf("failed to read watch progress: %w", err)
	}
	return &stored, nil
}

// Delete removes the user's rows matching f and returns how many were removed.
func (r *ProgressRepository) Delete(ctx context.Context, userID string, f Filter) (int64, error) {
	where, args := f.where(userID)
	result, err := r.db.ExecContext(ctx, "DELETE FROM watch_progress"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete watch progress: %w", err)
	}
	return result.RowsAffected()
}

func scanProgress(row scanner) (models.WatchProgress, error) {
	var (
		p         models.WatchProgress
		mediaType string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.MediaID, &mediaType, &p.Progress, &p.LastWatched); err != nil {
		return p, err
	}
	p.MediaType = models.MediaType(mediaType)
	p.LastWatched = p.LastWatched.UTC()
	return p, nil
}
