package cache

import (
	"sync"

	"github.com/uptimekit/sitesync/types"
)

// SnapshotStoreFactory creates snapshot store instances.
type SnapshotStoreFactory struct{}

// NewSnapshotStoreFactory creates a new snapshot store factory.
func NewSnapshotStoreFactory() StoreFactory {
	return &SnapshotStoreFactory{}
}

// Create creates a new snapshot store instance.
func (f *SnapshotStoreFactory) Create() (SiteStore, error) {
	return NewSnapshotStore(), nil
}

// SnapshotStore is the default unbounded store. The whole collection
// lives behind a single map reference, so ReplaceAll builds the new map
// first and swaps the reference under the write lock: a concurrent
// reader observes the fully-old or fully-new snapshot, never a half-
// swapped mix.
type SnapshotStore struct {
	mu    sync.RWMutex
	sites map[string]types.Site
}

// NewSnapshotStore creates an empty snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		sites: make(map[string]types.Site),
	}
}

// Get retrieves a site from the store.
func (s *SnapshotStore) Get(key string) (types.Site, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, found := s.sites[key]
	return site, found
}

// Set inserts or replaces a site.
func (s *SnapshotStore) Set(key string, site types.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[key] = site
}

// Delete removes a site from the store.
func (s *SnapshotStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sites, key)
}

// ReplaceAll swaps the entire collection for the given snapshot.
func (s *SnapshotStore) ReplaceAll(sites []types.Site) {
	next := make(map[string]types.Site, len(sites))
	for _, site := range sites {
		next[site.Identifier] = site
	}

	s.mu.Lock()
	s.sites = next
	s.mu.Unlock()
}

// Snapshot returns all sites from the current map reference.
func (s *SnapshotStore) Snapshot() []types.Site {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	return out
}

// Len returns the number of stored sites.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sites)
}

// Close releases store resources.
func (s *SnapshotStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites = make(map[string]types.Site)
}
