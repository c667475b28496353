package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "simplecms:content_type:"

// Cache implements simplecms.TypeCache on Redis so that several processes
// share serialized content types.
type Cache struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New wraps an existing client. A zero ttl stores entries without expiry.
func New(client goredis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// NewFromAddr builds a client for addr and wraps it.
func NewFromAddr(addr, password string, db int, prefix string, ttl time.Duration) (*Cache, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return New(client, prefix, ttl), nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) key(slug string) string {
	return c.prefix + slug
}

func (c *Cache) Get(ctx context.Context, slug string) (*simplecms.SerializedContentType, bool, error) {
	raw, err := c.client.Get(ctx, c.key(slug)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", slug, err)
	}
	var ct simplecms.SerializedContentType
	if err := json.Unmarshal(raw, &ct); err != nil {
		// Unreadable entries are treated as misses and dropped.
		_ = c.client.Del(ctx, c.key(slug)).Err()
		return nil, false, nil
	}
	return &ct, true, nil
}

func (c *Cache) Set(ctx context.Context, ct *simplecms.SerializedContentType) error {
	raw, err := json.Marshal(ct)
	if err != nil {
		return fmt.Errorf("encode content type %s: %w", ct.Slug, err)
	}
	if err := c.client.Set(ctx, c.key(ct.Slug), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", ct.Slug, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, slug string) error {
	if err := c.client.Del(ctx, c.key(slug)).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis del %s: %w", slug, err)
	}
	return nil
}
