package syncer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/uptimekit/sitesync/bus"
	"github.com/uptimekit/sitesync/cache"
	"github.com/uptimekit/sitesync/logging"
	"github.com/uptimekit/sitesync/retry"
	"github.com/uptimekit/sitesync/types"
)

// SnapshotFunc retrieves the complete authoritative site collection.
type SnapshotFunc func(ctx context.Context) ([]types.Site, error)

// DefaultDebounceWindow is how long the coordinator waits after the
// last invalidation signal before resyncing.
const DefaultDebounceWindow = 200 * time.Millisecond

// Status is a point-in-time summary of sync state. Only the
// coordinator mutates it; everyone else reads copies.
type Status struct {
	// LastSyncedAt is when the last successful resync replaced the
	// mirror. Zero if no resync has succeeded yet.
	LastSyncedAt time.Time

	// PendingInvalidations counts signals received since the last
	// resync settled.
	PendingInvalidations int

	// LastError is the error from the most recent failed resync, nil
	// after a success.
	LastError error
}

// Options configures a Coordinator instance.
type Options struct {
	// Cache is the mirror replaced on resync. Required.
	Cache *cache.SiteCache

	// Snapshot fetches the authoritative collection. Required.
	Snapshot SnapshotFunc

	// Bus receives sync lifecycle events. Required.
	Bus *bus.Bus

	// Runner executes the resync fetch with retry.
	// If nil, a runner on Bus is created.
	Runner *retry.Runner

	// Policy bounds resync retries.
	// Zero value defaults to retry.DefaultPolicy.
	Policy retry.Policy

	// DebounceWindow is the quiet period after the last signal.
	// If zero, defaults to DefaultDebounceWindow.
	DebounceWindow time.Duration

	// Logger is the logger for debug logging.
	// If nil, defaults to no-op logger.
	Logger logging.Logger

	// OnError is called when a resync exhausts its retries.
	OnError func(error)
}

// Validate validates the options.
func (o *Options) Validate() error {
	if o.Cache == nil || o.Snapshot == nil || o.Bus == nil {
		return ErrInvalidOptions
	}
	if o.DebounceWindow < 0 {
		return ErrInvalidOptions
	}
	if o.Policy != (retry.Policy{}) {
		return o.Policy.Validate()
	}
	return nil
}

// ErrInvalidOptions is returned when coordinator options are invalid.
var ErrInvalidOptions = newError("invalid coordinator options")

func newError(msg string) error {
	return &syncError{msg: msg}
}

type syncError struct {
	msg string
}

func (e *syncError) Error() string {
	return e.msg
}

// Coordinator owns the two recovery flows: a coalesced full resync that
// replaces the mirror with the authoritative snapshot, and a debounced
// reaction to invalidation signals so bursts collapse into one resync.
type Coordinator struct {
	cache    *cache.SiteCache
	snapshot SnapshotFunc
	runner   *retry.Runner
	policy   retry.Policy
	bus      *bus.Bus
	window   time.Duration
	logger   logging.Logger
	onErr    func(error)

	group singleflight.Group

	mu     sync.Mutex
	timer  *time.Timer
	status Status
	closed bool
}

// New creates a Coordinator instance.
func New(opts Options) (*Coordinator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
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
	if opts.DebounceWindow == 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}

	return &Coordinator{
		cache:    opts.Cache,
		snapshot: opts.Snapshot,
		runner:   opts.Runner,
		policy:   opts.Policy,
		bus:      opts.Bus,
		window:   opts.DebounceWindow,
		logger:   opts.Logger,
		onErr:    opts.OnError,
	}, nil
}

// RequestFullResync fetches the authoritative snapshot and replaces the
// mirror. Coalesced: while a resync is in flight, further calls share
// its result instead of issuing another backend round trip. On failure
// the mirror keeps its last-known-good snapshot.
func (c *Coordinator) RequestFullResync(ctx context.Context) retry.Result[[]types.Site] {
	value, _, _ := c.group.Do("resync", func() (any, error) {
		return c.resync(ctx), nil
	})
	return value.(retry.Result[[]types.Site])
}

func (c *Coordinator) resync(ctx context.Context) retry.Result[[]types.Site] {
	c.bus.Publish(bus.TopicSyncStarted, map[string]any{})

	result := retry.Run(ctx, c.runner, "sync:full-resync",
		func(ctx context.Context) ([]types.Site, error) {
			return c.snapshot(ctx)
		}, c.policy, nil)

	if result.Succeeded() {
		c.cache.ReplaceAll(result.Value)
	}

	c.mu.Lock()
	c.status.PendingInvalidations = 0
	if result.Succeeded() {
		c.status.LastSyncedAt = time.Now()
		c.status.LastError = nil
	} else {
		c.status.LastError = result.Err
	}
	c.mu.Unlock()

	if result.Succeeded() {
		c.logger.Info("full resync completed",
			"sites", len(result.Value), "attempts", result.Attempts)
		c.bus.Publish(bus.TopicSyncCompleted, map[string]any{
			"sites":    len(result.Value),
			"attempts": result.Attempts,
		})
	} else {
		c.logger.Warn("full resync failed",
			"attempts", result.Attempts, "error", result.Err)
		if c.onErr != nil {
			c.onErr(result.Err)
		}
		c.bus.Publish(bus.TopicSyncFailed, map[string]any{
			"attempts": result.Attempts,
			"error":    result.Err,
		})
	}

	return result
}

// OnInvalidationSignal records an external staleness hint. Each signal
// resets the debounce timer; once the window elapses with no further
// signals, exactly one full resync runs no matter how many signals
// arrived.
func (c *Coordinator) OnInvalidationSignal(signal types.InvalidationSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.status.PendingInvalidations++
	c.logger.Debug("invalidation signal received",
		"scope", string(signal.Scope), "key", signal.Key,
		"pending", c.status.PendingInvalidations)
	c.armTimer()
}

// armTimer starts or resets the debounce timer. Caller holds c.mu.
func (c *Coordinator) armTimer() {
	if c.timer != nil {
		c.timer.Reset(c.window)
		return
	}
	c.timer = time.AfterFunc(c.window, c.debounceFired)
}

// cancelTimer stops the debounce timer. Caller holds c.mu.
func (c *Coordinator) cancelTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) debounceFired() {
	c.mu.Lock()
	c.timer = nil
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	c.RequestFullResync(context.Background())
}

// Status returns a read-only snapshot of sync state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Close stops the debounce timer and drops any pending resync trigger.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancelTimer()
}
