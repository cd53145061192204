package resources

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type testResource struct {
	name     string
	disposed int
}

func (r *testResource) Dispose() { r.disposed++ }

func TestGetOrCreateSameKeyReturnsSameInstance(t *testing.T) {
	cache := NewCache()
	firstCalls, secondCalls := 0, 0

	first, err := cache.GetOrCreate("floor", func() (Resource, error) {
		firstCalls++
		return &testResource{name: "first"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.GetOrCreate("floor", func() (Resource, error) {
		secondCalls++
		return &testResource{name: "second"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Fatal("expected identical instance for the same key")
	}
	if firstCalls != 1 || secondCalls != 0 {
		t.Errorf("expected only the first factory to run, got %d and %d", firstCalls, secondCalls)
	}
	if builds, hits := cache.Stats(); builds != 1 || hits != 1 {
		t.Errorf("expected 1 build and 1 hit, got %d and %d", builds, hits)
	}
}

func TestGetOrCreateDistinctKeys(t *testing.T) {
	cache := NewCache()
	a, _ := cache.GetOrCreate("a", func() (Resource, error) { return &testResource{}, nil })
	b, _ := cache.GetOrCreate("b", func() (Resource, error) { return &testResource{}, nil })
	if a == b {
		t.Fatal("expected different instances for different keys")
	}
	keys := cache.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestGetOrCreateFactoryErrorIsNotMemoized(t *testing.T) {
	cache := NewCache()
	boom := errors.New("decode failed")

	if _, err := cache.GetOrCreate("tex", func() (Resource, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected failed build to leave cache empty")
	}

	res, err := cache.GetOrCreate("tex", func() (Resource, error) { return &testResource{}, nil })
	if err != nil || res == nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestGetOrCreateNilResource(t *testing.T) {
	cache := NewCache()
	if _, err := cache.GetOrCreate("nil", func() (Resource, error) { return nil, nil }); err == nil {
		t.Error("expected error for nil resource")
	}
}

func TestDisposeReleasesEntriesOnce(t *testing.T) {
	cache := NewCache()
	res := &testResource{}
	cache.GetOrCreate("floor", func() (Resource, error) { return res, nil })

	cache.Dispose()
	cache.Dispose()

	if res.disposed != 1 {
		t.Errorf("expected resource disposed once, got %d", res.disposed)
	}
	if _, err := cache.GetOrCreate("floor", func() (Resource, error) { return res, nil }); !errors.Is(err, ErrCacheDisposed) {
		t.Errorf("expected ErrCacheDisposed, got %v", err)
	}
	if _, ok := cache.Get("floor"); ok {
		t.Error("expected disposed cache to be empty")
	}
}

func TestFactoryMayUseTheCache(t *testing.T) {
	cache := NewCache()
	texture := &testResource{name: "brick"}
	done := make(chan error, 1)

	go func() {
		_, err := cache.GetOrCreate("material:wall", func() (Resource, error) {
			tex, err := cache.GetOrCreate("texture:brick", func() (Resource, error) { return texture, nil })
			if err != nil {
				return nil, err
			}
			return &testResource{name: "wall:" + tex.(*testResource).name}, nil
		})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("nested build failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("nested GetOrCreate deadlocked")
	}
	if res, ok := cache.Get("texture:brick"); !ok || res != texture {
		t.Error("expected the texture to be cached")
	}
	if cache.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", cache.Len())
	}
}

func TestConcurrentCallersShareOneBuild(t *testing.T) {
	cache := NewCache()
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	const callers = 8
	results := make([]Resource, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := cache.GetOrCreate("pillar", func() (Resource, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				<-release
				return &testResource{name: "pillar"}, nil
			})
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
			}
			results[i] = res
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("expected one factory call, got %d", calls)
	}
	for i, res := range results {
		if res != results[0] {
			t.Errorf("caller %d got a different instance", i)
		}
	}
	if builds, hits := cache.Stats(); builds != 1 || hits != callers-1 {
		t.Errorf("expected 1 build and %d hits, got %d and %d", callers-1, builds, hits)
	}
}

func TestDisposeDuringBuildReleasesResult(t *testing.T) {
	cache := NewCache()
	started := make(chan struct{})
	release := make(chan struct{})
	res := &testResource{}
	done := make(chan error, 1)

	go func() {
		_, err := cache.GetOrCreate("sky", func() (Resource, error) {
			close(started)
			<-release
			return res, nil
		})
		done <- err
	}()
	<-started
	cache.Dispose()
	close(release)

	if err := <-done; !errors.Is(err, ErrCacheDisposed) {
		t.Errorf("expected ErrCacheDisposed, got %v", err)
	}
	if res.disposed != 1 {
		t.Errorf("expected the late resource to be disposed, got %d", res.disposed)
	}
}
