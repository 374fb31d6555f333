package sitesync

import (
	"github.com/uptimekit/sitesync/bus"
	"github.com/uptimekit/sitesync/cache"
	"github.com/uptimekit/sitesync/logging"
	"github.com/uptimekit/sitesync/retry"
	"github.com/uptimekit/sitesync/syncer"
	"github.com/uptimekit/sitesync/types"
)

// Site is an alias for types.Site.
type Site = types.Site

// InvalidationSignal is an alias for types.InvalidationSignal.
type InvalidationSignal = types.InvalidationSignal

// Topic is an alias for bus.Topic.
type Topic = bus.Topic

// Handler is an alias for bus.Handler.
type Handler = bus.Handler

// Unsubscribe is an alias for bus.Unsubscribe.
type Unsubscribe = bus.Unsubscribe

// Logger is an alias for logging.Logger.
type Logger = logging.Logger

// RetryPolicy is an alias for retry.Policy.
type RetryPolicy = retry.Policy

// SyncStatus is an alias for syncer.Status.
type SyncStatus = syncer.Status

// StoreFactory is an alias for cache.StoreFactory.
type StoreFactory = cache.StoreFactory

// StoreConfig is an alias for cache.StoreConfig.
type StoreConfig = cache.StoreConfig

// Event topics re-exported for consumers subscribing through the facade.
const (
	TopicOperationPending = bus.TopicOperationPending
	TopicOperationRetry   = bus.TopicOperationRetry
	TopicOperationSuccess = bus.TopicOperationSuccess
	TopicOperationFailure = bus.TopicOperationFailure
	TopicCacheMiss        = bus.TopicCacheMiss
	TopicCacheUpdated     = bus.TopicCacheUpdated
	TopicSyncStarted      = bus.TopicSyncStarted
	TopicSyncCompleted    = bus.TopicSyncCompleted
	TopicSyncFailed       = bus.TopicSyncFailed
)

// Invalidation scopes re-exported for signal producers.
const (
	ScopeEntity = types.ScopeEntity
	ScopeAll    = types.ScopeAll
)

// DefaultStoreConfig returns default bounded-store configuration.
func DefaultStoreConfig() StoreConfig {
	return cache.DefaultStoreConfig()
}
