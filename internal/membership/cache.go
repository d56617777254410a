package membership

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
)

// LocalCache is the durable local mirror of one set. It never fails: problems are logged and
// Load falls back to an empty set.
type LocalCache interface {
	Load() []models.MembershipItem
	Save(items []models.MembershipItem)
}

// KV is the string-keyed byte storage a [StoreCache] writes through. [store.Local] satisfies it.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
}

// StoreCache keeps a set as a JSON array under a single key.
type StoreCache struct {
	kv     KV
	key    string
	logger *log.Logger
}

func NewStoreCache(kv KV, kind Kind, logger *log.Logger) *StoreCache {
	return &StoreCache{
		kv:     kv,
		key:    kind.CacheKey,
		logger: shared.ComponentLogger(logger, "cache").With("key", kind.CacheKey),
	}
}

// Load returns the stored set. Missing keys and malformed JSON yield an empty set.
// Duplicate keys keep their first occurrence.
func (c *StoreCache) Load() []models.MembershipItem {
	raw, ok, err := c.kv.Get(c.key)
	if err != nil {
		c.logger.Warn("failed to read local cache", "error", fmt.Errorf("%w: %v", shared.ErrStorage, err))
		return []models.MembershipItem{}
	}
	if !ok || len(raw) == 0 {
		return []models.MembershipItem{}
	}

	var items []models.MembershipItem
	if err := json.Unmarshal(raw, &items); err != nil {
		c.logger.Warn("discarding malformed local cache", "error", err)
		return []models.MembershipItem{}
	}
	return models.NormalizeSet(items)
}

// Save replaces the stored set.
func (c *StoreCache) Save(items []models.MembershipItem) {
	if items == nil {
		items = []models.MembershipItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		c.logger.Warn("failed to encode local cache", "error", err)
		return
	}
	if err := c.kv.Put(c.key, data); err != nil {
		c.logger.Warn("failed to write local cache", "error", fmt.Errorf("%w: %v", shared.ErrStorage, err))
	}
}
