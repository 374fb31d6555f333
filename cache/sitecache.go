package cache

import (
	"sync/atomic"

	"github.com/uptimekit/sitesync/bus"
	"github.com/uptimekit/sitesync/logging"
	"github.com/uptimekit/sitesync/retry"
	"github.com/uptimekit/sitesync/types"
)

// SiteCache is the non-authoritative local mirror of monitored sites.
// Reads never block: a miss returns immediately and hands the key to
// the background loader, whose eventual result arrives as a
// cache-updated event. Every stored value is a complete,
// backend-confirmed site.
type SiteCache struct {
	store  SiteStore
	loader *Loader
	bus    *bus.Bus
	logger logging.Logger
	closed int32
}

// New creates a SiteCache instance.
func New(opts Options) (*SiteCache, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if opts.StoreFactory == nil {
		opts.StoreFactory = NewSnapshotStoreFactory()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.Runner == nil {
		opts.Runner = retry.NewRunner(opts.Bus, opts.Logger)
	}
	if opts.Policy == (retry.Policy{}) {
		opts.Policy = retry.DefaultPolicy()
	}

	store, err := opts.StoreFactory.Create()
	if err != nil {
		return nil, err
	}

	sc := &SiteCache{
		store:  store,
		bus:    opts.Bus,
		logger: opts.Logger,
	}
	sc.loader = newLoader(sc, opts)

	return sc, nil
}

// Get retrieves a site by key. Synchronous and non-blocking: when the
// key is absent it publishes cache-miss, triggers a coalesced
// background load and returns found == false. Get never panics; a
// failing backend only ever surfaces through events.
func (sc *SiteCache) Get(key string) (types.Site, bool) {
	if atomic.LoadInt32(&sc.closed) != 0 {
		return types.Site{}, false
	}

	site, found := sc.store.Get(key)
	if found {
		return site, true
	}

	sc.logger.Debug("cache miss, scheduling background load", "key", key)
	sc.bus.Publish(bus.TopicCacheMiss, map[string]any{"key": key})
	sc.loader.LoadInBackground(key)

	return types.Site{}, false
}

// Set inserts or replaces a site under its identifier. Whole-entity
// replacement only; the backend result is authoritative so partial
// fields are never merged.
func (sc *SiteCache) Set(key string, site types.Site) {
	if atomic.LoadInt32(&sc.closed) != 0 {
		return
	}
	sc.store.Set(key, site)
}

// ReplaceAll atomically swaps the entire mirror for the given snapshot.
// Readers observe either the old or the new collection, never a mix.
func (sc *SiteCache) ReplaceAll(sites []types.Site) {
	if atomic.LoadInt32(&sc.closed) != 0 {
		return
	}
	sc.store.ReplaceAll(sites)
	sc.logger.Debug("replaced local snapshot", "sites", len(sites))
}

// Remove deletes a site from the mirror.
func (sc *SiteCache) Remove(key string) {
	if atomic.LoadInt32(&sc.closed) != 0 {
		return
	}
	sc.store.Delete(key)
}

// Snapshot returns all mirrored sites from one consistent view.
func (sc *SiteCache) Snapshot() []types.Site {
	return sc.store.Snapshot()
}

// Len returns the number of mirrored sites.
func (sc *SiteCache) Len() int {
	return sc.store.Len()
}

// Loads reports how many background loads are currently in flight.
func (sc *SiteCache) Loads() int {
	return sc.loader.InFlight()
}

// Close closes the cache. In-flight background loads settle against
// the closed cache and their writes are dropped.
func (sc *SiteCache) Close() {
	if !atomic.CompareAndSwapInt32(&sc.closed, 0, 1) {
		return
	}
	sc.store.Close()
}
