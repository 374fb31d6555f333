package cache

import (
	"sync"

	lfu "github.com/dgraph-io/ristretto"

	"github.com/uptimekit/sitesync/types"
)

// LFUStoreFactory creates Ristretto store instances.
type LFUStoreFactory struct {
	config StoreConfig
}

// NewLFUStoreFactory creates a new Ristretto store factory.
func NewLFUStoreFactory(config StoreConfig) StoreFactory {
	return &LFUStoreFactory{config: config}
}

// Create creates a new Ristretto store instance.
func (f *LFUStoreFactory) Create() (SiteStore, error) {
	return NewLFUStore(f.config)
}

// LFUStore is a cost-bounded store backed by Ristretto. Ristretto does
// not expose key iteration and admits entries asynchronously, so the
// store keeps its own key index and calls Wait after bulk writes.
// Snapshot visibility after ReplaceAll is best-effort under admission
// pressure; deployments needing the strict swap guarantee use the
// snapshot or LRU stores.
type LFUStore struct {
	mu    sync.RWMutex
	cache *lfu.Cache
	keys  map[string]struct{}
}

// NewLFUStore creates a Ristretto-backed store.
func NewLFUStore(config StoreConfig) (*LFUStore, error) {
	cache, err := lfu.NewCache(&lfu.Config{
		NumCounters:        config.NumCounters,
		MaxCost:            config.MaxCost,
		BufferItems:        config.BufferItems,
		IgnoreInternalCost: config.IgnoreInternalCost,
	})
	if err != nil {
		return nil, err
	}

	return &LFUStore{
		cache: cache,
		keys:  make(map[string]struct{}),
	}, nil
}

// Get retrieves a site from the store.
func (s *LFUStore) Get(key string) (types.Site, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, found := s.cache.Get(key)
	if !found {
		return types.Site{}, false
	}
	site, ok := value.(types.Site)
	return site, ok
}

// Set inserts or replaces a site.
func (s *LFUStore) Set(key string, site types.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Set(key, site, 1)
	s.cache.Wait()
	s.keys[key] = struct{}{}
}

// Delete removes a site from the store.
func (s *LFUStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Del(key)
	delete(s.keys, key)
}

// ReplaceAll swaps the entire collection for the given snapshot.
func (s *LFUStore) ReplaceAll(sites []types.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Clear()
	next := make(map[string]struct{}, len(sites))
	for _, site := range sites {
		s.cache.Set(site.Identifier, site, 1)
		next[site.Identifier] = struct{}{}
	}
	s.cache.Wait()
	s.keys = next
}

// Snapshot returns all currently admitted sites.
func (s *LFUStore) Snapshot() []types.Site {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Site, 0, len(s.keys))
	for key := range s.keys {
		if value, found := s.cache.Get(key); found {
			if site, ok := value.(types.Site); ok {
				out = append(out, site)
			}
		}
	}
	return out
}

// Len returns the number of indexed sites.
func (s *LFUStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Close releases store resources.
func (s *LFUStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Close()
	s.keys = make(map[string]struct{})
}
