// Package sitesync keeps a local in-memory mirror of monitored-site
// entities consistent with an authoritative backend origin. Reads are
// synchronous and never block: a miss triggers a coalesced background
// load, backend invalidation signals are debounced into a single full
// resync, and every fallible operation runs under bounded retry with
// lifecycle events. All failures surface as data (tagged results,
// event payloads, status fields), never as panics from a public entry
// point.
//
// Typical embedding:
//
//	rec, err := sitesync.New(sitesync.Config{
//		InstanceID: "renderer-1",
//		Origin: &origin.FuncOrigin{
//			FetchSiteFunc:     ipc.FetchSite,
//			FetchSnapshotFunc: ipc.FetchSnapshot,
//		},
//	})
//	if err != nil {
//		return err
//	}
//	defer rec.Close()
//
//	site, ok := rec.GetSite("site-1") // miss loads in background
package sitesync

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uptimekit/sitesync/bus"
	"github.com/uptimekit/sitesync/cache"
	"github.com/uptimekit/sitesync/logging"
	"github.com/uptimekit/sitesync/origin"
	"github.com/uptimekit/sitesync/retry"
	"github.com/uptimekit/sitesync/signal"
	"github.com/uptimekit/sitesync/syncer"
	"github.com/uptimekit/sitesync/types"
)

// Config configures a Reconciler instance.
type Config struct {
	// InstanceID uniquely identifies this process. Used to ignore this
	// instance's own pub/sub announcements.
	InstanceID string

	// Origin is the authoritative backend. If nil and RedisAddr is
	// set, a Redis-backed origin is created; otherwise required.
	Origin origin.Origin

	// RedisAddr is the optional Redis server address. When set, it
	// provides the default origin and the invalidation signal channel.
	RedisAddr string

	// RedisPassword is the optional Redis password.
	RedisPassword string

	// RedisDB is the Redis database number.
	RedisDB int

	// SnapshotKey is the Redis hash holding the site collection.
	SnapshotKey string

	// InvalidationChannel is the pub/sub channel carrying invalidation
	// signals. Empty disables the signal source.
	InvalidationChannel string

	// RetryPolicy bounds background loads and resyncs.
	// Zero value defaults to retry.DefaultPolicy.
	RetryPolicy retry.Policy

	// DebounceWindow is the quiet period after the last invalidation
	// signal. If zero, defaults to syncer.DefaultDebounceWindow.
	DebounceWindow time.Duration

	// HealthWindow is how recently a topic must have published to
	// report healthy. If zero, defaults to bus.DefaultHealthWindow.
	HealthWindow time.Duration

	// StoreFactory creates the mirror's backing store.
	// If nil, defaults to the snapshot store.
	StoreFactory cache.StoreFactory

	// Logger is the logger for debug logging.
	// If nil, defaults to no-op logger.
	Logger logging.Logger

	// DebugMode routes debug logging through a logrus logger when no
	// Logger is supplied.
	DebugMode bool

	// ContextTimeout bounds connection setup calls.
	ContextTimeout time.Duration

	// OnError is called when a background load or resync exhausts its
	// retries.
	OnError func(error)
}

// DefaultConfig returns default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		InstanceID:          "default-instance",
		SnapshotKey:         "sitesync:sites",
		InvalidationChannel: "sitesync:invalidate",
		RetryPolicy:         retry.DefaultPolicy(),
		DebounceWindow:      syncer.DefaultDebounceWindow,
		HealthWindow:        bus.DefaultHealthWindow,
		ContextTimeout:      5 * time.Second,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.InstanceID == "" {
		return ErrInvalidConfig
	}
	if c.Origin == nil && c.RedisAddr == "" {
		return ErrOriginRequired
	}
	if c.DebounceWindow < 0 || c.HealthWindow < 0 {
		return ErrInvalidConfig
	}
	if c.RetryPolicy != (retry.Policy{}) {
		if err := c.RetryPolicy.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Reconciler wires the bus, cache, loader and coordinator together and
// exposes the consumer-facing surface.
type Reconciler struct {
	bus         *bus.Bus
	cache       *cache.SiteCache
	coordinator *syncer.Coordinator
	origin      origin.Origin
	source      *signal.PubSubSource
	client      *redis.Client
	logger      logging.Logger
}

// New creates a Reconciler instance.
func New(cfg Config) (*Reconciler, error) {
	if cfg.SnapshotKey == "" {
		cfg.SnapshotKey = "sitesync:sites"
	}
	if cfg.ContextTimeout <= 0 {
		cfg.ContextTimeout = 5 * time.Second
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		if cfg.DebugMode {
			logger = logging.NewLogrusLogger(nil, "sitesync")
		} else {
			logger = logging.NewNoOpLogger()
		}
	}
	policy := cfg.RetryPolicy
	if policy == (retry.Policy{}) {
		policy = retry.DefaultPolicy()
	}

	org := cfg.Origin
	var client *redis.Client
	if cfg.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ContextTimeout)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			return nil, err
		}

		if org == nil {
			org = origin.NewRedisOriginFromClient(client, cfg.SnapshotKey)
		}
	}

	eventBus := bus.New(logger, cfg.HealthWindow)
	runner := retry.NewRunner(eventBus, logger)

	siteCache, err := cache.New(cache.Options{
		Fetch:        org.FetchSite,
		Bus:          eventBus,
		Runner:       runner,
		Policy:       policy,
		StoreFactory: cfg.StoreFactory,
		Logger:       logger,
		OnError:      cfg.OnError,
	})
	if err != nil {
		closeClient(client)
		return nil, err
	}

	coordinator, err := syncer.New(syncer.Options{
		Cache:          siteCache,
		Snapshot:       org.FetchSnapshot,
		Bus:            eventBus,
		Runner:         runner,
		Policy:         policy,
		DebounceWindow: cfg.DebounceWindow,
		Logger:         logger,
		OnError:        cfg.OnError,
	})
	if err != nil {
		siteCache.Close()
		closeClient(client)
		return nil, err
	}

	rec := &Reconciler{
		bus:         eventBus,
		cache:       siteCache,
		coordinator: coordinator,
		origin:      org,
		client:      client,
		logger:      logger,
	}

	if client != nil && cfg.InvalidationChannel != "" {
		source := signal.NewPubSubSource(client, cfg.InvalidationChannel, cfg.InstanceID, logger)
		source.OnSignal(coordinator)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ContextTimeout)
		err := source.Subscribe(ctx)
		cancel()
		if err != nil {
			rec.Close()
			return nil, err
		}
		rec.source = source
	}

	return rec, nil
}

func closeClient(client *redis.Client) {
	if client != nil {
		client.Close()
	}
}

// GetSite retrieves a site from the mirror. On a miss it returns
// immediately with found == false while a background load runs; the
// result arrives as a cache-updated event.
func (r *Reconciler) GetSite(key string) (types.Site, bool) {
	return r.cache.Get(key)
}

// SetSite writes a backend-confirmed site into the mirror.
func (r *Reconciler) SetSite(site types.Site) {
	r.cache.Set(site.Identifier, site)
}

// RemoveSite deletes a site from the mirror.
func (r *Reconciler) RemoveSite(key string) {
	r.cache.Remove(key)
}

// MutateSite applies a patch at the origin and reconciles the returned
// authoritative site into the mirror with a direct write. Local
// mutations never trigger a full resync; resyncs are reserved for
// backend-driven recovery signals.
func (r *Reconciler) MutateSite(ctx context.Context, key string, patch map[string]any) (types.Site, error) {
	site, err := r.origin.MutateSite(ctx, key, patch)
	if err != nil {
		return types.Site{}, err
	}
	r.cache.Set(key, site)
	return site, nil
}

// Sites returns all mirrored sites from one consistent view.
func (r *Reconciler) Sites() []types.Site {
	return r.cache.Snapshot()
}

// RequestFullResync replaces the mirror with a fresh authoritative
// snapshot. Concurrent calls share one backend round trip.
func (r *Reconciler) RequestFullResync(ctx context.Context) retry.Result[[]types.Site] {
	return r.coordinator.RequestFullResync(ctx)
}

// OnInvalidationSignal feeds an externally delivered signal into the
// debounced resync flow. Hosts not using the Redis signal source call
// this from their own transport.
func (r *Reconciler) OnInvalidationSignal(signal types.InvalidationSignal) {
	r.coordinator.OnInvalidationSignal(signal)
}

// SyncStatus returns a read-only snapshot of sync state.
func (r *Reconciler) SyncStatus() syncer.Status {
	return r.coordinator.Status()
}

// Subscribe registers a handler for a lifecycle topic.
func (r *Reconciler) Subscribe(topic bus.Topic, handler bus.Handler) bus.Unsubscribe {
	return r.bus.Subscribe(topic, handler)
}

// TopicHealth reports listener health for diagnostics dashboards.
func (r *Reconciler) TopicHealth(topic bus.Topic) bus.Health {
	return r.bus.TopicHealth(topic)
}

// Close releases all resources. In-flight loads settle against the
// closed cache and their writes are dropped.
func (r *Reconciler) Close() error {
	var errs []error

	if r.source != nil {
		if err := r.source.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	r.coordinator.Close()
	r.cache.Close()

	if r.client != nil {
		if err := r.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
