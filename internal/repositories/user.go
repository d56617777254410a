package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
)

// UserRepository persists [models.User] accounts.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Register creates a user and its profile in one transaction. A taken email yields [shared.ErrConflict].
func (r *UserRepository) Register(ctx context.Context, email, passwordHash string) (*models.User, error) {
	ts := now()
	user := &models.User{
		ID:           shared.GenerateID(),
		Email:        strings.TrimSpace(email),
		PasswordHash: passwordHash,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			return writeErr("insert user", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO profiles (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			user.ID, user.Email, ts, ts,
		)
		if err != nil {
			return writeErr("insert profile", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at, updated_at FROM users WHERE id = ?`, id)
	return scanUser(row, id)
}

// GetByEmail retrieves a user by email, ignoring case
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ?`, strings.TrimSpace(email))
	return scanUser(row, email)
}

// Delete removes a user and, by cascade, everything they own
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func scanUser(row scanner, ref string) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", ref, shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}
