package resources

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
)

// ErrCacheDisposed is returned by a cache after Dispose.
var ErrCacheDisposed = errors.New("resource cache disposed")

// Resource is a shared visual resource (material, geometry, texture set).
type Resource interface {
	Dispose()
}

// Factory constructs a resource on first request for its key.
type Factory func() (Resource, error)

// Cache memoizes shared resources by key for one streaming session.
// Chunks hold non-owning references; only the cache disposes entries.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]Resource
	building map[string]*build
	disposed bool
	builds   int
	hits     int
}

// build is a factory call in progress. Callers asking for the same key wait
// on done instead of running their own factory.
type build struct {
	done chan struct{}
	res  Resource
	err  error
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries:  make(map[string]Resource),
		building: make(map[string]*build),
	}
}

// GetOrCreate returns the resource for key, constructing it with factory at most once.
// A factory error is returned and not memoized, so a later call may retry.
// The factory runs without the cache lock held and may request other keys;
// requesting its own key deadlocks.
func (c *Cache) GetOrCreate(key string, factory Factory) (Resource, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, ErrCacheDisposed
	}
	if res, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return res, nil
	}
	if b, ok := c.building[key]; ok {
		c.mu.Unlock()
		<-b.done
		if b.err != nil {
			return nil, b.err
		}
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return b.res, nil
	}
	b := &build{done: make(chan struct{})}
	c.building[key] = b
	c.mu.Unlock()

	res, err := factory()
	switch {
	case err != nil:
		err = fmt.Errorf("failed to build resource %q: %w", key, err)
	case res == nil:
		err = fmt.Errorf("factory for resource %q returned nil", key)
	}

	c.mu.Lock()
	delete(c.building, key)
	if err == nil && c.disposed {
		res.Dispose()
		err = ErrCacheDisposed
	}
	if err == nil {
		c.entries[key] = res
		c.builds++
		b.res = res
	}
	b.err = err
	c.mu.Unlock()
	close(b.done)

	if err != nil {
		return nil, err
	}
	return res, nil
}

// Get returns an existing resource without constructing one.
func (c *Cache) Get(key string) (Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[key]
	return res, ok
}

// Len returns the number of distinct cached resources.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns how many resources were built and how many lookups hit.
func (c *Cache) Stats() (builds, hits int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds, c.hits
}

// Dispose releases every owned resource. Further use returns ErrCacheDisposed.
func (c *Cache) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	for key, res := range c.entries {
		res.Dispose()
		delete(c.entries, key)
	}
	c.disposed = true
	log.Printf("[Cache] disposed after %d builds, %d hits", c.builds, c.hits)
}
