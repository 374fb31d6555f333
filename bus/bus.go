package bus

import (
	"sync"
	"time"

	"github.com/uptimekit/sitesync/logging"
)

// Topic identifies an event channel. The set of topics is closed: every
// event the library emits uses one of the constants below, so consumers
// get compile-time checking of topic names.
type Topic string

const (
	// TopicOperationPending is published before the first attempt of a
	// retried operation.
	TopicOperationPending Topic = "operation:pending"

	// TopicOperationRetry is published before each re-attempt.
	TopicOperationRetry Topic = "operation:retry"

	// TopicOperationSuccess is published when a retried operation succeeds.
	TopicOperationSuccess Topic = "operation:success"

	// TopicOperationFailure is published when all attempts are exhausted.
	TopicOperationFailure Topic = "operation:failure"

	// TopicCacheMiss is published when a read finds no local entry.
	TopicCacheMiss Topic = "cache:miss"

	// TopicCacheUpdated is published when a background load settles,
	// successfully or not.
	TopicCacheUpdated Topic = "cache:updated"

	// TopicSyncStarted is published when a full resync begins.
	TopicSyncStarted Topic = "sync:started"

	// TopicSyncCompleted is published when a full resync replaces the
	// local snapshot.
	TopicSyncCompleted Topic = "sync:completed"

	// TopicSyncFailed is published when a full resync exhausts retries.
	TopicSyncFailed Topic = "sync:failed"
)

// Health classifies the listener state of a topic.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthFailed   Health = "failed"
	HealthUnknown  Health = "unknown"
)

// Handler receives a published payload together with the publish time.
type Handler func(payload map[string]any, timestamp time.Time)

// Unsubscribe removes exactly the handler whose registration produced it.
// Calling it more than once is harmless.
type Unsubscribe func()

// SubscriptionSummary reports listener state for a topic.
type SubscriptionSummary struct {
	Count       int
	LastPublish time.Time
}

// DefaultHealthWindow is how recently a topic must have published to be
// considered healthy.
const DefaultHealthWindow = 5 * time.Minute

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a typed publish/subscribe channel. Delivery is synchronous and
// fire-and-forget: handlers registered at publish time run in
// subscription order, late subscribers see nothing, and nothing is
// queued or replayed.
type Bus struct {
	mu           sync.RWMutex
	nextID       uint64
	handlers     map[Topic][]subscription
	lastPublish  map[Topic]time.Time
	healthWindow time.Duration
	logger       logging.Logger
}

// New creates an event bus. A nil logger defaults to no-op; a
// non-positive healthWindow defaults to DefaultHealthWindow.
func New(logger logging.Logger, healthWindow time.Duration) *Bus {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if healthWindow <= 0 {
		healthWindow = DefaultHealthWindow
	}
	return &Bus{
		handlers:     make(map[Topic][]subscription),
		lastPublish:  make(map[Topic]time.Time),
		healthWindow: healthWindow,
		logger:       logger,
	}
}

// Subscribe registers a handler for a topic and returns the function
// that removes it.
func (b *Bus) Subscribe(topic Topic, handler Handler) Unsubscribe {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[topic]
		for i, sub := range subs {
			if sub.id == id {
				// Copy-on-remove so a snapshot taken by an in-progress
				// Publish keeps iterating its own slice untouched.
				next := make([]subscription, 0, len(subs)-1)
				next = append(next, subs[:i]...)
				next = append(next, subs[i+1:]...)
				b.handlers[topic] = next
				return
			}
		}
	}
}

// Publish delivers payload to all handlers currently subscribed to
// topic, in subscription order. A handler that panics is recovered and
// logged; delivery continues with the remaining handlers and nothing
// propagates to the publisher.
func (b *Bus) Publish(topic Topic, payload map[string]any) {
	now := time.Now()

	b.mu.Lock()
	subs := b.handlers[topic]
	b.lastPublish[topic] = now
	b.mu.Unlock()

	for _, sub := range subs {
		b.deliver(topic, sub, payload, now)
	}
}

func (b *Bus) deliver(topic Topic, sub subscription, payload map[string]any, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "topic", string(topic), "panic", r)
		}
	}()
	sub.handler(payload, now)
}

// SubscriptionSummary returns the listener count and last publish time
// for a topic.
func (b *Bus) SubscriptionSummary(topic Topic) SubscriptionSummary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return SubscriptionSummary{
		Count:       len(b.handlers[topic]),
		LastPublish: b.lastPublish[topic],
	}
}

// TopicHealth derives listener health for a topic from its subscription
// summary: no handlers is failed, a topic that never published is
// unknown, a stale topic is degraded, otherwise healthy.
func (b *Bus) TopicHealth(topic Topic) Health {
	summary := b.SubscriptionSummary(topic)
	switch {
	case summary.Count == 0:
		return HealthFailed
	case summary.LastPublish.IsZero():
		return HealthUnknown
	case time.Since(summary.LastPublish) > b.healthWindow:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}
