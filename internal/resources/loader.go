package resources

import (
	"context"
	"errors"
	"log"
	"sync"
)

// FetchFunc produces a decoded resource off the streaming loop.
type FetchFunc func(ctx context.Context) (Resource, error)

// ApplyFunc splices a loaded resource into long-lived state on the streaming loop.
type ApplyFunc func(Resource)

// LoadResult reports the outcome of one load when it is drained.
type LoadResult struct {
	Key       string
	Err       error
	Cancelled bool
}

type completed struct {
	ctx   context.Context
	key   string
	res   Resource
	err   error
	apply ApplyFunc
}

// Loader runs asset fetches concurrently and hands results back to the
// owning loop through Drain, so apply callbacks never race the loop.
type Loader struct {
	mu       sync.Mutex
	done     []completed
	inFlight sync.WaitGroup
	pending  int
}

// NewLoader creates an idle loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load starts fetch in the background. apply runs during a later Drain, and
// only if ctx has not been cancelled by then.
func (l *Loader) Load(ctx context.Context, key string, fetch FetchFunc, apply ApplyFunc) {
	l.mu.Lock()
	l.pending++
	l.mu.Unlock()

	l.inFlight.Add(1)
	go func() {
		defer l.inFlight.Done()
		res, err := fetch(ctx)

		l.mu.Lock()
		l.pending--
		l.done = append(l.done, completed{ctx: ctx, key: key, res: res, err: err, apply: apply})
		l.mu.Unlock()
	}()
}

// LoadShared fetches a resource and stores it in cache under key when drained.
// If the cache already holds key, the fetched copy is disposed and the cached
// instance is applied instead.
func (l *Loader) LoadShared(ctx context.Context, cache *Cache, key string, fetch FetchFunc, apply ApplyFunc) {
	l.Load(ctx, key, fetch, func(res Resource) {
		shared, err := cache.GetOrCreate(key, func() (Resource, error) { return res, nil })
		if err != nil {
			log.Printf("[Loader] failed to cache %s: %v", key, err)
			res.Dispose()
			return
		}
		if shared != res {
			res.Dispose()
		}
		if apply != nil {
			apply(shared)
		}
	})
}

// Drain applies every completed load. Failed loads are logged and reported,
// never fatal. Loads whose context was cancelled are dropped and their
// resources disposed.
func (l *Loader) Drain() []LoadResult {
	l.mu.Lock()
	batch := l.done
	l.done = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	results := make([]LoadResult, 0, len(batch))
	for _, c := range batch {
		if err := c.ctx.Err(); err != nil {
			if c.res != nil {
				c.res.Dispose()
			}
			results = append(results, LoadResult{Key: c.key, Cancelled: true})
			continue
		}
		if c.err != nil {
			// A failed fetch may still hand back a partial resource.
			if c.res != nil {
				c.res.Dispose()
			}
			if errors.Is(c.err, context.Canceled) {
				results = append(results, LoadResult{Key: c.key, Cancelled: true})
				continue
			}
			log.Printf("[Loader] load %s failed: %v", c.key, c.err)
			results = append(results, LoadResult{Key: c.key, Err: c.err})
			continue
		}
		if c.res == nil {
			continue
		}
		if c.apply != nil {
			c.apply(c.res)
		}
		results = append(results, LoadResult{Key: c.key})
	}
	return results
}

// Pending returns the number of fetches still running.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// Wait blocks until every started fetch has completed.
func (l *Loader) Wait() {
	l.inFlight.Wait()
}
