package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/services"
	"github.com/desertthunder/flx/internal/shared"
)

// RemoteStore is the backend table behind a set, scoped by user id.
type RemoteStore interface {
	// FetchAll returns the user's rows, newest first.
	FetchAll(ctx context.Context, userID string) ([]models.MembershipItem, error)
	Insert(ctx context.Context, userID string, mediaID int, mediaType models.MediaType) error
	// Remove fails with [shared.ErrConflict] when no row matched.
	Remove(ctx context.Context, userID string, mediaID int, mediaType models.MediaType) error
}

// RESTStore implements [RemoteStore] over the backend's row API.
type RESTStore struct {
	client *services.BackendClient
	table  string
}

func NewRESTStore(client *services.BackendClient, kind Kind) *RESTStore {
	return &RESTStore{client: client, table: kind.Table}
}

type membershipRow struct {
	ID        string           `json:"id,omitempty"`
	UserID    string           `json:"user_id"`
	MediaID   int              `json:"media_id"`
	MediaType models.MediaType `json:"media_type"`
	CreatedAt *time.Time       `json:"created_at,omitempty"`
}

func (r membershipRow) item() models.MembershipItem {
	item := models.MembershipItem{ID: r.ID, MediaID: r.MediaID, MediaType: r.MediaType}
	if r.CreatedAt != nil {
		item.CreatedAt = r.CreatedAt.UTC()
	}
	return item
}

func (s *RESTStore) FetchAll(ctx context.Context, userID string) ([]models.MembershipItem, error) {
	var rows []membershipRow
	q := services.Query{Order: "created_at.desc"}.Where(services.Eq("user_id", userID))
	if err := s.client.Select(ctx, s.table, q, &rows); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.table, err)
	}

	items := make([]models.MembershipItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.item())
	}
	return items, nil
}

func (s *RESTStore) Insert(ctx context.Context, userID string, mediaID int, mediaType models.MediaType) error {
	row := membershipRow{UserID: userID, MediaID: mediaID, MediaType: mediaType}
	if err := s.client.Insert(ctx, s.table, row, nil); err != nil {
		return fmt.Errorf("insert into %s: %w", s.table, err)
	}
	return nil
}

func (s *RESTStore) Remove(ctx context.Context, userID string, mediaID int, mediaType models.MediaType) error {
	q := services.Query{}.Where(
		services.Eq("user_id", userID),
		services.Eq("media_id", mediaID),
		services.Eq("media_type", mediaType),
	)

	var deleted []membershipRow
	if err := s.client.Delete(ctx, s.table, q, &deleted); err != nil {
		return fmt.Errorf("delete from %s: %w", s.table, err)
	}
	if len(deleted) == 0 {
		return fmt.Errorf("delete from %s: %w: no row for %s:%d", s.table, shared.ErrConflict, mediaType, mediaID)
	}
	return nil
}
