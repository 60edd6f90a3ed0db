package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/signoff/model"
)

type cacheEntry struct {
	users   []model.User
	expires time.Time
}

// CachedDirectory wraps a UserDirectory with an in-memory TTL cache.
// Errors are never cached.
type CachedDirectory struct {
	next    model.UserDirectory
	ttl     time.Duration
	observe func(hit bool)
	mu      sync.RWMutex
	cache   map[string]cacheEntry
}

// NewCachedDirectory creates a cache in front of next. observe, if not nil,
// is called on every lookup with whether it was served from cache.
func NewCachedDirectory(next model.UserDirectory, ttl time.Duration, observe func(hit bool)) *CachedDirectory {
	return &CachedDirectory{
		next:    next,
		ttl:     ttl,
		observe: observe,
		cache:   make(map[string]cacheEntry),
	}
}

// FindUsersByRole implements model.UserDirectory.
func (c *CachedDirectory) FindUsersByRole(ctx context.Context, roles []string) ([]model.User, error) {
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	return c.lookup("role:"+strings.Join(sorted, ","), func() ([]model.User, error) {
		return c.next.FindUsersByRole(ctx, roles)
	})
}

// FindUsersByDepartment implements model.UserDirectory.
func (c *CachedDirectory) FindUsersByDepartment(ctx context.Context, department string) ([]model.User, error) {
	return c.lookup("dept:"+department, func() ([]model.User, error) {
		return c.next.FindUsersByDepartment(ctx, department)
	})
}

func (c *CachedDirectory) lookup(key string, load func() ([]model.User, error)) ([]model.User, error) {
	c.mu.RLock()
	if entry, ok := c.cache[key]; ok && time.Now().Before(entry.expires) {
		c.mu.RUnlock()
		c.record(true)
		return entry.users, nil
	}
	c.mu.RUnlock()
	c.record(false)

	users, err := load()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{users: users, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return users, nil
}

func (c *CachedDirectory) record(hit bool) {
	if c.observe != nil {
		c.observe(hit)
	}
}

// Invalidate drops every cached lookup.
func (c *CachedDirectory) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.mu.Unlock()
}
