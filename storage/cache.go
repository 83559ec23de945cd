package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tracking-api/domain"
)

type backend interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) (*domain.BusinessProfile, error)
	Save(ctx context.Context, p *domain.BusinessProfile) error
	Update(ctx context.Context, name string, fn func(*domain.BusinessProfile) (bool, error)) (*domain.BusinessProfile, error)
	Delete(ctx context.Context, name string) error
}

// Cache wraps a profile store with Redis-backed caching for loads.
// Writes go to the backing store first and evict the cached copy, so a
// stale token can never be served after a save.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) List(ctx context.Context) ([]string, error) {
	return c.base.List(ctx)
}

func (c *Cache) Load(ctx context.Context, name string) (*domain.BusinessProfile, error) {
	if p, ok := c.loadFromCache(ctx, name); ok {
		return p, nil
	}
	p, err := c.base.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	c.store(ctx, name, p)
	return p, nil
}

func (c *Cache) Save(ctx context.Context, p *domain.BusinessProfile) error {
	if err := c.base.Save(ctx, p); err != nil {
		return err
	}
	c.evict(ctx, p.Name)
	return nil
}

func (c *Cache) Update(ctx context.Context, name string, fn func(*domain.BusinessProfile) (bool, error)) (*domain.BusinessProfile, error) {
	p, err := c.base.Update(ctx, name, fn)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, name)
	return p, nil
}

func (c *Cache) Delete(ctx context.Context, name string) error {
	if err := c.base.Delete(ctx, name); err != nil {
		return err
	}
	c.evict(ctx, name)
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context, name string) (*domain.BusinessProfile, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, profileCacheKey(name)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, profileCacheKey(name)).Err()
		}
		return nil, false
	}
	var p domain.BusinessProfile
	if err := json.Unmarshal(data, &p); err != nil {
		_ = c.redis.Del(ctx, profileCacheKey(name)).Err()
		return nil, false
	}
	return &p, true
}

func (c *Cache) store(ctx context.Context, name string, p *domain.BusinessProfile) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, profileCacheKey(name), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, name string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, profileCacheKey(name)).Result()
}

func profileCacheKey(name string) string {
	return "profile:" + Slugify(name)
}
