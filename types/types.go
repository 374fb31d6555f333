package types

// Site is a monitored-site entity mirrored from the authoritative backend.
// A cached Site is always a complete, backend-confirmed value; partial or
// optimistic records are never stored in the local mirror.
type Site struct {
	Identifier  string         `json:"identifier"`
	Name        string         `json:"name,omitempty"`
	URL         string         `json:"url,omitempty"`
	Monitoring  bool           `json:"monitoring,omitempty"`
	Status      string         `json:"status,omitempty"`
	LastChecked int64          `json:"lastChecked,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Scope identifies how much local state an invalidation signal covers.
type Scope string

const (
	// ScopeEntity invalidates a single site by key.
	ScopeEntity Scope = "entity"

	// ScopeAll invalidates the whole local mirror.
	ScopeAll Scope = "all"
)

// InvalidationSignal is a backend-originated hint that local state is stale.
// Signals are advisory: the coordinator reacts by fetching a fresh
// authoritative snapshot, never by patching entries in place.
type InvalidationSignal struct {
	Scope  Scope  `json:"scope"`
	Key    string `json:"key,omitempty"`
	Sender string `json:"sender,omitempty"`
}
