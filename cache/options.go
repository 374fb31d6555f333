package cache

import (
	"github.com/uptimekit/sitesync/bus"
	"github.com/uptimekit/sitesync/logging"
	"github.com/uptimekit/sitesync/retry"
)

// Options configures a SiteCache instance.
type Options struct {
	// Fetch retrieves a single authoritative site. Required.
	Fetch FetchFunc

	// Bus receives cache-miss, cache-updated and operation lifecycle
	// events. Required: the cache is useless to its consumers without
	// the events that announce background completions.
	Bus *bus.Bus

	// Runner executes background fetches with retry.
	// If nil, a runner on Bus is created.
	Runner *retry.Runner

	// Policy bounds background fetch retries.
	// Zero value defaults to retry.DefaultPolicy.
	Policy retry.Policy

	// StoreFactory creates the backing store.
	// If nil, defaults to the snapshot store.
	StoreFactory StoreFactory

	// Logger is the logger for debug logging.
	// If nil, defaults to no-op logger.
	Logger logging.Logger

	// OnError is called when a background load exhausts its retries.
	OnError func(error)
}

// Validate validates the options.
func (o *Options) Validate() error {
	if o.Fetch == nil {
		return ErrInvalidOptions
	}
	if o.Bus == nil {
		return ErrInvalidOptions
	}
	if o.Policy != (retry.Policy{}) {
		return o.Policy.Validate()
	}
	return nil
}

// ErrInvalidOptions is returned when cache options are invalid.
var ErrInvalidOptions = newError("invalid cache options")

// ErrCacheClosed is returned when operations are performed on a closed cache.
var ErrCacheClosed = newError("cache is closed")

func newError(msg string) error {
	return &cacheError{msg: msg}
}

type cacheError struct {
	msg string
}

func (e *cacheError) Error() string {
	return e.msg
}
