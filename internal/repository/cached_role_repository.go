package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/db/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type cachedRole struct {
	role  auth.Role
	found bool
}

// CachedRoleDirectory memoizes GetRole results, including misses, for a
// bounded time. Writes through this decorator invalidate affected entries;
// writes made by other replicas become visible once the TTL passes.
//
// Every invalidation bumps a generation. A lookup only fills the cache when
// no invalidation happened while it read the inner directory, so a read that
// raced a write cannot put the old role back.
type CachedRoleDirectory struct {
	inner RoleDirectory
	cache *expirable.LRU[string, cachedRole]

	mu  sync.Mutex
	gen uint64
}

// NewCachedRoleDirectory wraps inner with an LRU of the given size and TTL.
func NewCachedRoleDirectory(inner RoleDirectory, size int, ttl time.Duration) *CachedRoleDirectory {
	if size <= 0 {
		size = 1024
	}
	return &CachedRoleDirectory{
		inner: inner,
		cache: expirable.NewLRU[string, cachedRole](size, nil, ttl),
	}
}

func (c *CachedRoleDirectory) GetRole(ctx context.Context, email string) (auth.Role, bool, error) {
	key := normalizeEmail(email)
	if v, ok := c.cache.Get(key); ok {
		return v.role, v.found, nil
	}

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	role, found, err := c.inner.GetRole(ctx, key)
	if err != nil {
		return "", false, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.cache.Add(key, cachedRole{role: role, found: found})
	}
	c.mu.Unlock()
	return role, found, nil
}

func (c *CachedRoleDirectory) UpsertRole(ctx context.Context, email string, role auth.Role) error {
	err := c.inner.UpsertRole(ctx, email, role)
	c.invalidate(normalizeEmail(email))
	return err
}

func (c *CachedRoleDirectory) ListAdmins(ctx context.Context) ([]models.UserRole, error) {
	return c.inner.ListAdmins(ctx)
}

func (c *CachedRoleDirectory) ReplaceAdmins(ctx context.Context, actor string, admins []string) (AdminDiff, error) {
	diff, err := c.inner.ReplaceAdmins(ctx, actor, admins)
	c.invalidate(slices.Concat(diff.Added, diff.Removed)...)
	return diff, err
}

// Purge drops every cached lookup.
func (c *CachedRoleDirectory) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Purge()
}

// invalidate runs after the inner write so lookups started before it never
// fill the cache.
func (c *CachedRoleDirectory) invalidate(emails ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, email := range emails {
		c.cache.Remove(email)
	}
}
