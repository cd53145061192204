package resources

import (
	"context"
	"errors"
	"testing"
)

func TestLoaderAppliesOnDrain(t *testing.T) {
	loader := NewLoader()
	var applied Resource
	want := &testResource{name: "sky"}

	loader.Load(context.Background(), "sky", func(context.Context) (Resource, error) {
		return want, nil
	}, func(res Resource) {
		applied = res
	})
	loader.Wait()

	if applied != nil {
		t.Fatal("apply must not run before Drain")
	}
	results := loader.Drain()
	if len(results) != 1 || results[0].Err != nil || results[0].Cancelled {
		t.Fatalf("unexpected results %+v", results)
	}
	if applied != want {
		t.Error("expected loaded resource to be applied")
	}
	if loader.Pending() != 0 {
		t.Errorf("expected no pending loads, got %d", loader.Pending())
	}
}

func TestLoaderCancelledBeforeDrain(t *testing.T) {
	loader := NewLoader()
	ctx, cancel := context.WithCancel(context.Background())
	res := &testResource{}
	applied := false

	loader.Load(ctx, "hdr", func(context.Context) (Resource, error) {
		return res, nil
	}, func(Resource) {
		applied = true
	})
	loader.Wait()
	cancel()

	results := loader.Drain()
	if len(results) != 1 || !results[0].Cancelled {
		t.Fatalf("expected a cancelled result, got %+v", results)
	}
	if applied {
		t.Error("apply must not run after cancellation")
	}
	if res.disposed != 1 {
		t.Errorf("expected orphaned resource to be disposed, got %d", res.disposed)
	}
}

func TestLoaderFailureIsReported(t *testing.T) {
	loader := NewLoader()
	boom := errors.New("404")

	loader.Load(context.Background(), "model", func(context.Context) (Resource, error) {
		return nil, boom
	}, func(Resource) {
		t.Error("apply must not run for a failed load")
	})
	loader.Wait()

	results := loader.Drain()
	if len(results) != 1 || !errors.Is(results[0].Err, boom) {
		t.Fatalf("expected failure result, got %+v", results)
	}
}

func TestLoaderDisposesResourceOfFailedLoad(t *testing.T) {
	loader := NewLoader()
	boom := errors.New("truncated")
	partial := &testResource{name: "half"}

	loader.Load(context.Background(), "model", func(context.Context) (Resource, error) {
		return partial, boom
	}, func(Resource) {
		t.Error("apply must not run for a failed load")
	})
	loader.Wait()

	results := loader.Drain()
	if len(results) != 1 || !errors.Is(results[0].Err, boom) {
		t.Fatalf("expected failure result, got %+v", results)
	}
	if partial.disposed != 1 {
		t.Errorf("expected the partial resource to be disposed once, got %d", partial.disposed)
	}
}

func TestLoaderDrainEmpty(t *testing.T) {
	if results := NewLoader().Drain(); results != nil {
		t.Errorf("expected nil results, got %+v", results)
	}
}

func TestLoadSharedReusesCachedInstance(t *testing.T) {
	loader := NewLoader()
	cache := NewCache()
	cached := &testResource{name: "cached"}
	cache.GetOrCreate("floor", func() (Resource, error) { return cached, nil })

	fetched := &testResource{name: "fetched"}
	var applied Resource
	loader.LoadShared(context.Background(), cache, "floor", func(context.Context) (Resource, error) {
		return fetched, nil
	}, func(res Resource) {
		applied = res
	})
	loader.Wait()
	loader.Drain()

	if applied != cached {
		t.Error("expected the cached instance to be applied")
	}
	if fetched.disposed != 1 {
		t.Errorf("expected duplicate fetch to be disposed, got %d", fetched.disposed)
	}
}

func TestLoadSharedStoresNewInstance(t *testing.T) {
	loader := NewLoader()
	cache := NewCache()
	fetched := &testResource{}

	loader.LoadShared(context.Background(), cache, "wall", func(context.Context) (Resource, error) {
		return fetched, nil
	}, nil)
	loader.Wait()
	loader.Drain()

	got, ok := cache.Get("wall")
	if !ok || got != fetched {
		t.Fatal("expected fetched resource to be cached")
	}
	if fetched.disposed != 0 {
		t.Error("cached resource must not be disposed")
	}
}
