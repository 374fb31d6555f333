package origin

import (
	"context"
	"errors"

	"github.com/uptimekit/sitesync/types"
)

// Origin is the authoritative backend the local mirror reconciles
// against. All three operations return complete, confirmed sites.
type Origin interface {
	// FetchSite retrieves a single site by key.
	FetchSite(ctx context.Context, key string) (types.Site, error)

	// FetchSnapshot retrieves the complete site collection.
	FetchSnapshot(ctx context.Context) ([]types.Site, error)

	// MutateSite applies a patch to a site and returns the resulting
	// authoritative value. Callers feed that value back into the local
	// cache directly; a mutation never triggers a full resync.
	MutateSite(ctx context.Context, key string, patch map[string]any) (types.Site, error)
}

// ErrNotFound is returned when a site does not exist in the origin.
var ErrNotFound = errors.New("site not found in origin")

// ErrNotSupported is returned by FuncOrigin for operations without an
// injected implementation.
var ErrNotSupported = errors.New("operation not supported by this origin")

// FuncOrigin adapts injected closures to the Origin interface. Used by
// hosts whose transport is already expressed as async functions, and by
// tests.
type FuncOrigin struct {
	FetchSiteFunc     func(ctx context.Context, key string) (types.Site, error)
	FetchSnapshotFunc func(ctx context.Context) ([]types.Site, error)
	MutateSiteFunc    func(ctx context.Context, key string, patch map[string]any) (types.Site, error)
}

// FetchSite retrieves a single site by key.
func (f *FuncOrigin) FetchSite(ctx context.Context, key string) (types.Site, error) {
	if f.FetchSiteFunc == nil {
		return types.Site{}, ErrNotSupported
	}
	return f.FetchSiteFunc(ctx, key)
}

// FetchSnapshot retrieves the complete site collection.
func (f *FuncOrigin) FetchSnapshot(ctx context.Context) ([]types.Site, error) {
	if f.FetchSnapshotFunc == nil {
		return nil, ErrNotSupported
	}
	return f.FetchSnapshotFunc(ctx)
}

// MutateSite applies a patch and returns the authoritative result.
func (f *FuncOrigin) MutateSite(ctx context.Context, key string, patch map[string]any) (types.Site, error) {
	if f.MutateSiteFunc == nil {
		return types.Site{}, ErrNotSupported
	}
	return f.MutateSiteFunc(ctx, key, patch)
}
