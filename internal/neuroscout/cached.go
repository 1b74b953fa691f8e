package neuroscout

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/nsstatus/internal/cache"
)

// CachedClient wraps a Client and keeps the CLI image version in the cache.
// The version changes only on releases, while every status page asks for it.
type CachedClient struct {
	Client
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedClient(c Client, ca cache.Cache, ttl time.Duration) *CachedClient {
	return &CachedClient{Client: c, cache: ca, ttl: ttl}
}

// ImageVersion serves from cache when possible. Cache failures fall through
// to the upstream. Empty versions are not cached.
func (c *CachedClient) ImageVersion(ctx context.Context) (string, error) {
	key := cache.ImageVersionKey()

	val, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("image version cache read failed", "error", err)
	} else if ok {
		return string(val), nil
	}

	v, err := c.Client.ImageVersion(ctx)
	if err != nil || v == "" {
		return v, err
	}

	if err := c.cache.Set(ctx, key, []byte(v), c.ttl); err != nil {
		slog.Warn("image version cache write failed", "error", err)
	}
	return v, nil
}

var _ Client = (*CachedClient)(nil)
