package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
)

// TokenRepository stores refresh tokens. Tokens are single use: [TokenRepository.Consume]
// revokes the token it returns.
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create issues a token for userID valid for ttl.
func (r *TokenRepository) Create(ctx context.Context, userID string, ttl time.Duration) (*models.RefreshToken, error) {
	ts := now()
	tok := &models.RefreshToken{
		Token:     shared.GenerateToken(),
		UserID:    userID,
		ExpiresAt: ts.Add(ttl),
		CreatedAt: ts,
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		tok.Token, tok.UserID, tok.ExpiresAt, tok.CreatedAt,
	)
	if err != nil {
		return nil, writeErr("insert refresh token", err)
	}
	return tok, nil
}

// Consume revokes an active token and returns it. Unknown, expired and revoked tokens yield [shared.ErrNotFound].
func (r *TokenRepository) Consume(ctx context.Context, token string) (*models.RefreshToken, error) {
	var tok models.RefreshToken
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var revokedAt sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT token, user_id, expires_at, revoked_at, created_at FROM refresh_tokens WHERE token = ?`, token,
		).Scan(&tok.Token, &tok.UserID, &tok.ExpiresAt, &revokedAt, &tok.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("refresh token: %w", shared.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to query refresh token: %w", err)
		}
		if revokedAt.Valid {
			tok.RevokedAt = &revokedAt.Time
		}

		ts := now()
		if !tok.Active(ts) {
			return fmt.Errorf("refresh token inactive: %w", shared.ErrNotFound)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at = ? WHERE token = ?`, ts, token); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		tok.RevokedAt = &ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// RevokeAll revokes every active token of userID and returns how many were revoked.
func (r *TokenRepository) RevokeAll(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`, now(), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return result.RowsAffected()
}

// PurgeExpired deletes tokens that expired before cutoff.
func (r *TokenRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	return result.RowsAffected()
}
