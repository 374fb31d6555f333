package cache

import (
	"context"

	"github.com/uptimekit/sitesync/types"
)

// FetchFunc retrieves a single authoritative site from the backend.
// It is injected at cache construction so the cache itself has no
// knowledge of the transport behind it.
type FetchFunc func(ctx context.Context, key string) (types.Site, error)

// SiteStore is the keyed backing store for the local mirror.
type SiteStore interface {
	// Get retrieves a site from the store.
	Get(key string) (types.Site, bool)

	// Set inserts or replaces a site. Whole-entity replacement only;
	// partial fields are never merged.
	Set(key string, site types.Site)

	// Delete removes a site from the store.
	Delete(key string)

	// ReplaceAll swaps the entire keyed collection for the given
	// snapshot in one step.
	ReplaceAll(sites []types.Site)

	// Snapshot returns all sites from one consistent view of the store.
	Snapshot() []types.Site

	// Len returns the number of stored sites.
	Len() int

	// Close releases store resources.
	Close()
}

// StoreFactory creates SiteStore instances.
type StoreFactory interface {
	// Create creates a new store instance.
	Create() (SiteStore, error)
}

// StoreConfig configures the bounded store implementations.
type StoreConfig struct {
	// MaxSize is the maximum number of sites (LRU only).
	MaxSize int

	// NumCounters is the number of admission counters (Ristretto only).
	// Recommended: 10 * the expected number of sites.
	NumCounters int64

	// MaxCost is the maximum total cost of stored sites (Ristretto only).
	MaxCost int64

	// BufferItems is the size of the Ristretto set buffer.
	BufferItems int64

	// IgnoreInternalCost ignores Ristretto's internal item cost.
	IgnoreInternalCost bool
}

// DefaultStoreConfig returns defaults sized for a renderer-scale mirror.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxSize:            10000,
		NumCounters:        1e5,
		MaxCost:            1 << 26, // 64MB
		BufferItems:        64,
		IgnoreInternalCost: false,
	}
}
