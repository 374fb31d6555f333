package sitesync

import "errors"

// ErrInvalidConfig is returned when the reconciler configuration is invalid.
var ErrInvalidConfig = errors.New("invalid reconciler configuration")

// ErrOriginRequired is returned when neither an origin nor a Redis
// address is configured.
var ErrOriginRequired = errors.New("an origin or a redis address is required")
