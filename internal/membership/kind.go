// Package membership keeps the watchlist and liked sets in sync between memory, the local
// store and the backend.
//
// Each set is served by a [Reconciler] parameterized by a [Kind]. Mutations are optimistic:
// they apply to memory and the local cache first, then to the backend, and are rolled back
// when the backend rejects them. While nobody is signed in the sets are local only.
package membership

import (
	"fmt"
	"strings"

	"github.com/desertthunder/flx/internal/shared"
)

// Kind names one synchronized set: its backend table, its local cache key and a display label.
type Kind struct {
	Table    string
	CacheKey string
	Label    string
}

var (
	Watchlist = Kind{Table: "my_list", CacheKey: "flx_my_list", Label: "My List"}
	Likes     = Kind{Table: "liked_items", CacheKey: "flx_liked_items", Label: "Liked"}
)

// Kinds lists every synchronized set.
func Kinds() []Kind { return []Kind{Watchlist, Likes} }

// KindByName resolves "list", "my_list", "likes" or "liked_items".
func KindByName(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "list", "my_list", "watchlist", "my-list":
		return Watchlist, nil
	case "likes", "liked", "liked_items", "liked-items":
		return Likes, nil
	default:
		return Kind{}, fmt.Errorf("%w: unknown set %q", shared.ErrInvalidArgument, name)
	}
}

func (k Kind) String() string { return k.Table }
