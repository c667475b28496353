package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

type entry struct {
	ct        *simplecms.SerializedContentType
	expiresAt time.Time
}

// Cache implements simplecms.TypeCache in process memory. Entries expire
// after the configured TTL; a zero TTL keeps them until overwritten.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// New creates an in-memory content type cache.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (c *Cache) Get(ctx context.Context, slug string) (*simplecms.SerializedContentType, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[slug]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[slug]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, slug)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return clone(e.ct), true, nil
}

func (c *Cache) Set(ctx context.Context, ct *simplecms.SerializedContentType) error {
	e := entry{ct: clone(ct)}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[ct.Slug] = e
	c.mu.Unlock()
	return nil
}

func (c *Cache) Delete(ctx context.Context, slug string) error {
	c.mu.Lock()
	delete(c.entries, slug)
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func clone(ct *simplecms.SerializedContentType) *simplecms.SerializedContentType {
	cp := *ct
	cp.Schema = ct.Schema.Clone()
	return &cp
}
