package origin

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uptimekit/sitesync/types"
)

// RedisOrigin is a reference Origin backed by Redis: the site
// collection lives in one hash keyed by site identifier, each field
// holding the serialized site.
type RedisOrigin struct {
	client     *redis.Client
	hashKey    string
	serializer Serializer
}

// NewRedisOrigin creates a Redis-backed origin and verifies the
// connection.
func NewRedisOrigin(addr, password string, db int, hashKey string) (*RedisOrigin, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisOriginFromClient(client, hashKey), nil
}

// NewRedisOriginFromClient wraps an existing client, so one connection
// can serve both the origin and the pub/sub signal source.
func NewRedisOriginFromClient(client *redis.Client, hashKey string) *RedisOrigin {
	return &RedisOrigin{
		client:     client,
		hashKey:    hashKey,
		serializer: NewJSONSerializer(),
	}
}

// FetchSite retrieves a single site by key.
func (ro *RedisOrigin) FetchSite(ctx context.Context, key string) (types.Site, error) {
	data, err := ro.client.HGet(ctx, ro.hashKey, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Site{}, ErrNotFound
		}
		return types.Site{}, err
	}

	var site types.Site
	if err := ro.serializer.Unmarshal(data, &site); err != nil {
		return types.Site{}, err
	}
	return site, nil
}

// FetchSnapshot retrieves the complete site collection.
func (ro *RedisOrigin) FetchSnapshot(ctx context.Context) ([]types.Site, error) {
	fields, err := ro.client.HGetAll(ctx, ro.hashKey).Result()
	if err != nil {
		return nil, err
	}

	sites := make([]types.Site, 0, len(fields))
	for _, payload := range fields {
		var site types.Site
		if err := ro.serializer.Unmarshal([]byte(payload), &site); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// MutateSite applies a patch to the stored site and returns the
// resulting authoritative value. The patch is merged field-by-field
// over the serialized form, so unknown payload fields survive.
func (ro *RedisOrigin) MutateSite(ctx context.Context, key string, patch map[string]any) (types.Site, error) {
	data, err := ro.client.HGet(ctx, ro.hashKey, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Site{}, ErrNotFound
		}
		return types.Site{}, err
	}

	var fields map[string]any
	if err := ro.serializer.Unmarshal(data, &fields); err != nil {
		return types.Site{}, err
	}
	for k, v := range patch {
		fields[k] = v
	}
	fields["identifier"] = key

	merged, err := ro.serializer.Marshal(fields)
	if err != nil {
		return types.Site{}, err
	}

	var site types.Site
	if err := ro.serializer.Unmarshal(merged, &site); err != nil {
		return types.Site{}, err
	}

	if err := ro.client.HSet(ctx, ro.hashKey, key, merged).Err(); err != nil {
		return types.Site{}, err
	}
	return site, nil
}

// SeedSnapshot writes a full collection into the origin hash. Intended
// for tests and for priming a fresh backend.
func (ro *RedisOrigin) SeedSnapshot(ctx context.Context, sites []types.Site) error {
	values := make(map[string]any, len(sites))
	for _, site := range sites {
		data, err := ro.serializer.Marshal(site)
		if err != nil {
			return err
		}
		values[site.Identifier] = data
	}

	pipe := ro.client.TxPipeline()
	pipe.Del(ctx, ro.hashKey)
	if len(values) > 0 {
		pipe.HSet(ctx, ro.hashKey, values)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the underlying Redis connection.
func (ro *RedisOrigin) Close() error {
	return ro.client.Close()
}

// GetClient returns the underlying Redis client.
func (ro *RedisOrigin) GetClient() *redis.Client {
	return ro.client
}
