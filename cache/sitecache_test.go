package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/uptimekit/sitesync/bus"
	"github.com/uptimekit/sitesync/retry"
	"github.com/uptimekit/sitesync/types"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, Backoff: retry.BackoffFixed, BaseDelay: 0}
}

func newTestCache(t *testing.T, b *bus.Bus, fetch FetchFunc) *SiteCache {
	t.Helper()
	sc, err := New(Options{
		Fetch:  fetch,
		Bus:    b,
		Policy: fastPolicy(),
	})
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	t.Cleanup(sc.Close)
	return sc
}

// updated returns a channel receiving one payload per cache-updated
// event.
func updated(b *bus.Bus) <-chan map[string]any {
	ch := make(chan map[string]any, 16)
	b.Subscribe(bus.TopicCacheUpdated, func(payload map[string]any, ts time.Time) {
		ch <- payload
	})
	return ch
}

func waitUpdated(t *testing.T, ch <-chan map[string]any) map[string]any {
	t.Helper()
	select {
	case payload := <-ch:
		return payload
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for cache-updated")
		return nil
	}
}

func TestGetMissReturnsImmediatelyAndLoads(t *testing.T) {
	b := bus.New(nil, 0)
	updates := updated(b)

	missed := make(chan string, 1)
	b.Subscribe(bus.TopicCacheMiss, func(payload map[string]any, ts time.Time) {
		missed <- payload["key"].(string)
	})

	sc := newTestCache(t, b, func(ctx context.Context, key string) (types.Site, error) {
		return types.Site{Identifier: key, Name: "Example"}, nil
	})

	if _, found := sc.Get("missing"); found {
		t.Fatal("Expected a miss on an empty cache")
	}

	select {
	case key := <-missed:
		if key != "missing" {
			t.Fatalf("Expected cache-miss for 'missing', got %q", key)
		}
	default:
		t.Fatal("Expected cache-miss to be published synchronously")
	}

	payload := waitUpdated(t, updates)
	if payload["key"] != "missing" {
		t.Fatalf("Expected cache-updated for 'missing', got %v", payload["key"])
	}
	site, ok := payload["entity"].(types.Site)
	if !ok || site.Name != "Example" {
		t.Fatalf("Expected the fetched site in the payload, got %v", payload["entity"])
	}

	if got, found := sc.Get("missing"); !found || got.Name != "Example" {
		t.Fatalf("Expected the site to be cached after the load, got %v found=%v", got, found)
	}
}

func TestConcurrentMissesCoalesceIntoOneFetch(t *testing.T) {
	b := bus.New(nil, 0)
	updates := updated(b)

	var fetches int64
	release := make(chan struct{})
	sc := newTestCache(t, b, func(ctx context.Context, key string) (types.Site, error) {
		atomic.AddInt64(&fetches, 1)
		<-release
		return types.Site{Identifier: key}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc.Get("s1")
		}()
	}
	wg.Wait()
	close(release)

	waitUpdated(t, updates)

	if n := atomic.LoadInt64(&fetches); n != 1 {
		t.Fatalf("Expected exactly 1 fetch for 10 overlapping misses, got %d", n)
	}
}

func TestFailedLoadNeverPanicsTheReader(t *testing.T) {
	b := bus.New(nil, 0)
	updates := updated(b)

	sc := newTestCache(t, b, func(ctx context.Context, key string) (types.Site, error) {
		return types.Site{}, errors.New("backend down")
	})

	if _, found := sc.Get("s1"); found {
		t.Fatal("Expected a miss")
	}

	payload := waitUpdated(t, updates)
	if payload["entity"] != nil {
		t.Fatalf("Expected nil entity on failure, got %v", payload["entity"])
	}
	if payload["error"] == nil {
		t.Fatal("Expected the load error in the payload")
	}

	// The entry stays absent until a later read re-triggers a load.
	if _, found := sc.store.Get("s1"); found {
		t.Fatal("Expected no entry after a failed load")
	}
}

func TestSetReplacesWholeEntity(t *testing.T) {
	b := bus.New(nil, 0)
	sc := newTestCache(t, b, func(ctx context.Context, key string) (types.Site, error) {
		return types.Site{}, errors.New("unused")
	})

	sc.Set("s1", types.Site{Identifier: "s1", Name: "A", Status: "up"})
	sc.Set("s1", types.Site{Identifier: "s1", Name: "B"})

	got, found := sc.Get("s1")
	if !found {
		t.Fatal("Expected the site to be present")
	}
	if got.Name != "B" || got.Status != "" {
		t.Fatalf("Expected whole-entity replacement, got %+v", got)
	}
}

func TestReplaceAllSwapsSnapshot(t *testing.T) {
	b := bus.New(nil, 0)
	sc := newTestCache(t, b, func(ctx context.Context, key string) (types.Site, error) {
		return types.Site{}, errors.New("unused")
	})

	sc.Set("old", types.Site{Identifier: "old"})
	sc.ReplaceAll([]types.Site{
		{Identifier: "s1", Name: "A"},
		{Identifier: "s2", Name: "B"},
	})

	if _, found := sc.store.Get("old"); found {
		t.Fatal("Expected the old entry to be gone after ReplaceAll")
	}
	if sc.Len() != 2 {
		t.Fatalf("Expected 2 sites, got %d", sc.Len())
	}
}

func TestRemove(t *testing.T) {
	b := bus.New(nil, 0)
	sc := newTestCache(t, b, func(ctx context.Context, key string) (types.Site, error) {
		return types.Site{}, errors.New("unused")
	})

	sc.Set("s1", types.Site{Identifier: "s1"})
	sc.Remove("s1")

	if _, found := sc.store.Get("s1"); found {
		t.Fatal("Expected the site to be removed")
	}
}

func TestClosedCacheDropsReadsAndWrites(t *testing.T) {
	b := bus.New(nil, 0)
	sc, err := New(Options{
		Fetch: func(ctx context.Context, key string) (types.Site, error) {
			t.Fatal("No load may start on a closed cache")
			return types.Site{}, nil
		},
		Bus:    b,
		Policy: fastPolicy(),
	})
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}

	sc.Close()

	if _, found := sc.Get("s1"); found {
		t.Fatal("Expected a closed cache to report misses without loading")
	}
	sc.Set("s1", types.Site{Identifier: "s1"})
	if sc.Len() != 0 {
		t.Fatal("Expected writes to a closed cache to be dropped")
	}
}

func TestOptionsValidate(t *testing.T) {
	fetch := func(ctx context.Context, key string) (types.Site, error) {
		return types.Site{}, nil
	}

	if _, err := New(Options{Bus: bus.New(nil, 0)}); err == nil {
		t.Fatal("Expected an error without a fetch function")
	}
	if _, err := New(Options{Fetch: fetch}); err == nil {
		t.Fatal("Expected an error without a bus")
	}
	if _, err := New(Options{
		Fetch:  fetch,
		Bus:    bus.New(nil, 0),
		Policy: retry.Policy{MaxAttempts: -1, Backoff: retry.BackoffFixed},
	}); err == nil {
		t.Fatal("Expected an error with an invalid policy")
	}
}
