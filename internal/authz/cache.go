package authz

import (
	"strconv"
	"sync"
	"time"

	"github.com/trufflehub/farm-management/internal/permission"
)

type cacheEntry struct {
	allowed   bool
	userID    int64
	route     string
	expiresAt time.Time
}

// Cache holds authorization decisions keyed by (user, route[, tenant]) with a
// bounded TTL. Invalidation is keyed, never global: a permission or grant
// change drops every entry for that route, a role-assignment change drops
// every entry for that user. Secondary indexes make both lookups O(affected).
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	byUser  map[int64]map[string]struct{}
	byRoute map[string]map[string]struct{}
	ttl     time.Duration
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		byUser:  make(map[int64]map[string]struct{}),
		byRoute: make(map[string]map[string]struct{}),
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(userID int64, route string, tenantID int64) string {
	key := "user:" + strconv.FormatInt(userID, 10) + "|" + route
	if tenantID != 0 {
		key += "|tenant:" + strconv.FormatInt(tenantID, 10)
	}
	return key
}

func (c *Cache) Get(userID int64, namespace, controller, action string, tenantID int64) (bool, bool) {
	route := permission.RouteKey(namespace, controller, action)
	key := cacheKey(userID, route, tenantID)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if c.now().After(entry.expiresAt) {
		c.dropLocked(key, entry)
		return false, false
	}
	return entry.allowed, true
}

func (c *Cache) Set(userID int64, namespace, controller, action string, tenantID int64, allowed bool) {
	route := permission.RouteKey(namespace, controller, action)
	key := cacheKey(userID, route, tenantID)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		allowed:   allowed,
		userID:    userID,
		route:     route,
		expiresAt: c.now().Add(c.ttl),
	}

	if c.byUser[userID] == nil {
		c.byUser[userID] = make(map[string]struct{})
	}
	c.byUser[userID][key] = struct{}{}

	if c.byRoute[route] == nil {
		c.byRoute[route] = make(map[string]struct{})
	}
	c.byRoute[route][key] = struct{}{}
}

// InvalidateRoute drops every cached decision for one triple, across all
// users and tenants.
func (c *Cache) InvalidateRoute(namespace, controller, action string) {
	route := permission.RouteKey(namespace, controller, action)

	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.byRoute[route] {
		if entry, ok := c.entries[key]; ok {
			c.dropLocked(key, entry)
		}
	}
}

// InvalidateUser drops every cached decision for one user, across all routes.
func (c *Cache) InvalidateUser(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.byUser[userID] {
		if entry, ok := c.entries[key]; ok {
			c.dropLocked(key, entry)
		}
	}
}

// Len reports live entry count; used by tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) dropLocked(key string, entry cacheEntry) {
	delete(c.entries, key)
	if keys, ok := c.byUser[entry.userID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byUser, entry.userID)
		}
	}
	if keys, ok := c.byRoute[entry.route]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byRoute, entry.route)
		}
	}
}
