package cache

import (
	"context"
	"sync"

	"github.com/uptimekit/sitesync/bus"
	"github.com/uptimekit/sitesync/logging"
	"github.com/uptimekit/sitesync/retry"
	"github.com/uptimekit/sitesync/types"
)

// inFlight tracks one outstanding background load. At most one exists
// per key; overlapping requests only bump the subscriber count.
type inFlight struct {
	subscribers int
}

// Loader fetches missing sites in the background, coalescing
// overlapping requests for the same key into a single retried fetch.
type Loader struct {
	cache  *SiteCache
	fetch  FetchFunc
	runner *retry.Runner
	policy retry.Policy
	bus    *bus.Bus
	logger logging.Logger
	onErr  func(error)

	mu       sync.Mutex
	inflight map[string]*inFlight
}

func newLoader(sc *SiteCache, opts Options) *Loader {
	return &Loader{
		cache:    sc,
		fetch:    opts.Fetch,
		runner:   opts.Runner,
		policy:   opts.Policy,
		bus:      opts.Bus,
		logger:   opts.Logger,
		onErr:    opts.OnError,
		inflight: make(map[string]*inFlight),
	}
}

// LoadInBackground schedules a fetch for key. Fire-and-forget: the
// caller already returned a miss and cannot block. If a load for key is
// already in flight, the request joins it and no duplicate fetch is
// issued.
func (l *Loader) LoadInBackground(key string) {
	l.mu.Lock()
	if req, exists := l.inflight[key]; exists {
		req.subscribers++
		subscribers := req.subscribers
		l.mu.Unlock()
		l.logger.Debug("joined in-flight load", "key", key, "subscribers", subscribers)
		return
	}
	l.inflight[key] = &inFlight{subscribers: 1}
	l.mu.Unlock()

	go l.load(key)
}

// load runs the retried fetch and settles the in-flight entry. The
// entry is removed from the map before the result is published, so a
// new load for the same key can start immediately after settlement.
func (l *Loader) load(key string) {
	result := retry.Run(context.Background(), l.runner, "load:"+key,
		func(ctx context.Context) (types.Site, error) {
			return l.fetch(ctx, key)
		}, l.policy, map[string]any{"key": key})

	l.mu.Lock()
	subscribers := 0
	if req, exists := l.inflight[key]; exists {
		subscribers = req.subscribers
	}
	delete(l.inflight, key)
	l.mu.Unlock()

	if !result.Succeeded() {
		l.logger.Warn("background load failed",
			"key", key, "attempts", result.Attempts, "error", result.Err)
		if l.onErr != nil {
			l.onErr(result.Err)
		}
		// The entry stays absent; the original readers already got a
		// miss and must never see this failure as a panic or error.
		l.bus.Publish(bus.TopicCacheUpdated, map[string]any{
			"key":         key,
			"entity":      nil,
			"error":       result.Err,
			"subscribers": subscribers,
		})
		return
	}

	l.cache.Set(key, result.Value)
	l.bus.Publish(bus.TopicCacheUpdated, map[string]any{
		"key":         key,
		"entity":      result.Value,
		"subscribers": subscribers,
	})
}

// InFlight reports the number of keys currently being loaded.
func (l *Loader) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inflight)
}
