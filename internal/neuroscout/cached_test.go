package neuroscout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/nsstatus/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Ping(_ context.Context) error { return nil }

func (c *memCache) IncrWithExpiry(_ context.Context, _ string, expiry time.Duration) (int64, time.Duration, error) {
	return 1, expiry, nil
}

var _ cache.Cache = (*memCache)(nil)

type versionClient struct {
	Client
	version string
	err     error
	calls   int
}

func (c *versionClient) ImageVersion(_ context.Context) (string, error) {
	c.calls++
	return c.version, c.err
}

func TestCachedClient_MissThenHit(t *testing.T) {
	inner := &versionClient{version: "0.8.1"}
	mc := newMemCache()
	c := NewCachedClient(inner, mc, 10*time.Minute)

	v, err := c.ImageVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.8.1", v)

	v, err = c.ImageVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.8.1", v)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 10*time.Minute, mc.ttls[cache.ImageVersionKey()])
}

func TestCachedClient_EmptyVersionNotCached(t *testing.T) {
	inner := &versionClient{version: ""}
	mc := newMemCache()
	c := NewCachedClient(inner, mc, time.Minute)

	_, _ = c.ImageVersion(context.Background())
	_, _ = c.ImageVersion(context.Background())

	assert.Equal(t, 2, inner.calls)
	assert.Empty(t, mc.data)
}

func TestCachedClient_UpstreamErrorPassesThrough(t *testing.T) {
	inner := &versionClient{err: ErrUpstreamUnreachable}
	c := NewCachedClient(inner, newMemCache(), time.Minute)

	_, err := c.ImageVersion(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnreachable)
}

func TestCachedClient_CacheFailuresFallThrough(t *testing.T) {
	inner := &versionClient{version: "0.8.1"}
	mc := newMemCache()
	mc.getErr = errors.New("redis down")
	mc.setErr = errors.New("redis down")
	c := NewCachedClient(inner, mc, time.Minute)

	v, err := c.ImageVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.8.1", v)
}

func TestCachedClient_DelegatesOtherCalls(t *testing.T) {
	inner := &recordingClient{}
	c := NewCachedClient(inner, newMemCache(), time.Minute)

	require.NoError(t, c.Compile(context.Background(), "Mv3ev", true))
	assert.Equal(t, []string{"compile Mv3ev true"}, inner.calls)
}

type recordingClient struct {
	Client
	calls []string
}

func (c *recordingClient) Compile(_ context.Context, id string, build bool) error {
	c.calls = append(c.calls, fmt.Sprintf("compile %s %t", id, build))
	return nil
}
