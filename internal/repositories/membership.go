package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
)

// MembershipTables lists the tables a [MembershipRepository] may serve.
var MembershipTables = []string{"my_list", "liked_items"}

// Filter narrows a query to one user's rows. Zero fields match anything.
type Filter struct {
	ID        string
	MediaID   int
	MediaType models.MediaType
}

func (f Filter) where(userID string) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}
	if f.ID != "" {
		clauses = append(clauses, "id = ?")
		args = append(args, f.ID)
	}
	if f.MediaID != 0 {
		clauses = append(clauses, "media_id = ?")
		args = append(args, f.MediaID)
	}
	if f.MediaType != "" {
		clauses = append(clauses, "media_type = ?")
		args = append(args, string(f.MediaType))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// MembershipRepository persists one membership set table.
type MembershipRepository struct {
	db    *sql.DB
	table string
}

// NewMembershipRepository serves table, which must be one of [MembershipTables].
func NewMembershipRepository(db *sql.DB, table string) (*MembershipRepository, error) {
	for _, t := range MembershipTables {
		if t == table {
			return &MembershipRepository{db: db, table: table}, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown membership table %q", shared.ErrInvalidArgument, table)
}

func (r *MembershipRepository) Table() string { return r.table }

// List returns the user's rows matching f, newest first unless ascending is set. limit <= 0 means no limit.
func (r *MembershipRepository) List(ctx context.Context, userID string, f Filter, ascending bool, limit int) ([]models.MembershipItem, error) {
	where, args := f.where(userID)
	query := "SELECT id, media_id, media_type, created_at FROM " + r.table + where
	if ascending {
		query += " ORDER BY created_at ASC"
	} else {
		query += " ORDER BY created_at DESC"
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.table, err)
	}
	defer rows.Close()

	items := []models.MembershipItem{}
	for rows.Next() {
		item, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

// Insert adds a row. An existing (user, media id, media type) yields [shared.ErrConflict].
func (r *MembershipRepository) Insert(ctx context.Context, userID string, mediaID int, mediaType models.MediaType) (*models.MembershipItem, error) {
	item := models.MembershipItem{
		ID:        shared.GenerateID(),
		MediaID:   mediaID,
		MediaType: mediaType,
		CreatedAt: now(),
	}
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO "+r.table+" (id, user_id, media_id, media_type, created_at) VALUES (?, ?, ?, ?, ?)",
		item.ID, userID, item.MediaID, string(item.MediaType), item.CreatedAt,
	)
	if err != nil {
		return nil, writeErr("insert into "+r.table, err)
	}
	return &item, nil
}

// Delete removes the user's rows matching f and returns them.
func (r *MembershipRepository) Delete(ctx context.Context, userID string, f Filter) ([]models.MembershipItem, error) {
	var deleted []models.MembershipItem
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		where, args := f.where(userID)

		rows, err := tx.QueryContext(ctx, "SELECT id, media_id, media_type, created_at FROM "+r.table+where, args...)
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", r.table, err)
		}
		for rows.Next() {
			item, err := scanMembership(rows)
			if err != nil {
				rows.Close()
				return err
			}
			deleted = append(deleted, item)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("row iteration error: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM "+r.table+where, args...); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", r.table, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		deleted = []models.MembershipItem{}
	}
	return deleted, nil
}

func scanMembership(row scanner) (models.MembershipItem, error) {
	var (
		item      models.MembershipItem
		mediaType string
	)
	if err := row.Scan(&item.ID, &item.MediaID, &mediaType, &item.CreatedAt); err != nil {
		return item, fmt.Errorf("failed to scan membership: %w", err)
	}
	item.MediaType = models.MediaType(mediaType)
	item.CreatedAt = item.CreatedAt.UTC()
	return item, nil
}
