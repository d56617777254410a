package models

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidMediaType = errors.New("invalid media type")

// Validator is implemented by entities that can check their own fields before persistence.
type Validator interface {
	Validate() error
}

// MediaType identifies the kind of catalog entry a membership refers to.
type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaTV    MediaType = "tv"
)

// ParseMediaType converts user input ("movie", "tv", "show") to a [MediaType].
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies", "film":
		return MediaMovie, nil
	case "tv", "show", "shows", "series":
		return MediaTV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMediaType, s)
	}
}

func (t MediaType) Valid() bool {
	return t == MediaMovie || t == MediaTV
}

func (t MediaType) String() string { return string(t) }

// TempIDPrefix marks identifiers synthesized locally before the remote store assigns one.
const TempIDPrefix = "temp_"

// Key identifies a membership by (media id, media type). Sets never hold two items with the same key.
type Key struct {
	MediaID   int
	MediaType MediaType
}

func (k Key) String() string {
	return string(k.MediaType) + ":" + strconv.Itoa(k.MediaID)
}

// MembershipItem is one entry of a watchlist or liked set.
type MembershipItem struct {
	ID        string    `json:"id"`
	MediaID   int       `json:"media_id"`
	MediaType MediaType `json:"media_type"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTempItem builds an item with a temporary id derived from the insertion time.
func NewTempItem(mediaID int, mediaType MediaType, now time.Time) MembershipItem {
	now = now.UTC().Round(0)
	return MembershipItem{
		ID:        TempIDPrefix + strconv.FormatInt(now.UnixMilli(), 10),
		MediaID:   mediaID,
		MediaType: mediaType,
		CreatedAt: now,
	}
}

func (i MembershipItem) Key() Key {
	return Key{MediaID: i.MediaID, MediaType: i.MediaType}
}

// IsTemp reports whether the item still carries a locally generated id.
func (i MembershipItem) IsTemp() bool {
	return strings.HasPrefix(i.ID, TempIDPrefix)
}

func (i MembershipItem) Validate() error {
	if i.MediaID <= 0 {
		return fmt.Errorf("media_id must be positive, got %d", i.MediaID)
	}
	if !i.MediaType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMediaType, i.MediaType)
	}
	return nil
}

// NormalizeSet drops invalid items and duplicate keys (first occurrence wins).
func NormalizeSet(items []MembershipItem) []MembershipItem {
	seen := make(map[Key]struct{}, len(items))
	out := make([]MembershipItem, 0, len(items))
	for _, item := range items {
		if item.Validate() != nil {
			continue
		}
		if _, ok := seen[item.Key()]; ok {
			continue
		}
		seen[item.Key()] = struct{}{}
		out = append(out, item)
	}
	return out
}

// SortNewestFirst orders items by CreatedAt descending. Equal timestamps keep their relative order.
func SortNewestFirst(items []MembershipItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// ItemState is the optimistic lifecycle of an in-memory item.
type ItemState int

const (
	Pending ItemState = iota
	Confirmed
	RolledBack
)

func (s ItemState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is legal.
func (s ItemState) CanTransition(next ItemState) bool {
	switch s {
	case Pending:
		return next == Confirmed || next == RolledBack
	case Confirmed:
		return next == RolledBack
	default:
		return false
	}
}

// Entry pairs an item with its optimistic state.
type Entry struct {
	Item  MembershipItem
	State ItemState
}

// Transition records a state change of one item.
type Transition struct {
	Key    Key
	ItemID string
	From   ItemState
	To     ItemState
}
