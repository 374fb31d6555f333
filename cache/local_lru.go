package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/uptimekit/sitesync/types"
)

// LRUStoreFactory creates LRU store instances.
type LRUStoreFactory struct {
	maxSize int
}

// NewLRUStoreFactory creates a new LRU store factory.
func NewLRUStoreFactory(maxSize int) StoreFactory {
	return &LRUStoreFactory{maxSize: maxSize}
}

// Create creates a new LRU store instance.
func (f *LRUStoreFactory) Create() (SiteStore, error) {
	return NewLRUStore(f.maxSize)
}

// LRUStore is a bounded store backed by golang-lru. The cache is
// internally thread-safe, but ReplaceAll must be atomic with respect to
// readers, so every operation goes through the store's own RWMutex.
type LRUStore struct {
	mu    sync.RWMutex
	cache *lru.Cache[string, types.Site]
}

// NewLRUStore creates a bounded LRU-backed store.
func NewLRUStore(maxSize int) (*LRUStore, error) {
	cache, err := lru.New[string, types.Site](maxSize)
	if err != nil {
		return nil, err
	}
	return &LRUStore{cache: cache}, nil
}

// Get retrieves a site from the store.
func (s *LRUStore) Get(key string) (types.Site, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.Get(key)
}

// Set inserts or replaces a site.
func (s *LRUStore) Set(key string, site types.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(key, site)
}

// Delete removes a site from the store.
func (s *LRUStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(key)
}

// ReplaceAll swaps the entire collection for the given snapshot. If the
// snapshot exceeds the store's bound, the oldest entries are evicted in
// insertion order.
func (s *LRUStore) ReplaceAll(sites []types.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
	for _, site := range sites {
		s.cache.Add(site.Identifier, site)
	}
}

// Snapshot returns all currently resident sites.
func (s *LRUStore) Snapshot() []types.Site {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.cache.Keys()
	out := make([]types.Site, 0, len(keys))
	for _, key := range keys {
		if site, found := s.cache.Peek(key); found {
			out = append(out, site)
		}
	}
	return out
}

// Len returns the number of resident sites.
func (s *LRUStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.Len()
}

// Close releases store resources.
func (s *LRUStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}
