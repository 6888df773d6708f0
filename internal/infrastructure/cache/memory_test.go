package cache

import (
	"sync"
	"testing"
	"time"
)

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache := NewMemoryCache[string](time.Minute)
	defer cache.Close()

	tests := []struct {
		name  string
		key   string
		value string
		ttl   time.Duration
	}{
		{name: "store and retrieve string", key: "test-key-1", value: "test-value", ttl: time.Minute},
		{name: "zero ttl uses default", key: "test-key-2", value: "defaulted", ttl: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache.Set(tt.key, tt.value, tt.ttl)

			got, ok := cache.Get(tt.key)
			if !ok {
				t.Fatalf("Get(%q) missed", tt.key)
			}
			if got != tt.value {
				t.Errorf("Get() = %v, want %v", got, tt.value)
			}
		})
	}
}

func TestMemoryCache_Expiration(t *testing.T) {
	cache := NewMemoryCache[int](time.Minute)
	defer cache.Close()

	current := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	cache.Set("k", 42, 5*time.Minute)

	current = current.Add(4 * time.Minute)
	if v, ok := cache.Get("k"); !ok || v != 42 {
		t.Errorf("Get before expiry = %v, %v; want 42, true", v, ok)
	}

	current = current.Add(2 * time.Minute)
	if _, ok := cache.Get("k"); ok {
		t.Error("expected cache miss after expiration")
	}

	cache.purge()
	if cache.Size() != 0 {
		t.Errorf("Size after purge = %d, want 0", cache.Size())
	}
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	cache := NewMemoryCache[string](time.Minute)
	defer cache.Close()

	cache.Set("a", "1", 0)
	cache.Set("b", "2", 0)
	cache.Delete("a")

	if _, ok := cache.Get("a"); ok {
		t.Error("expected a to be deleted")
	}
	if cache.Size() != 1 {
		t.Errorf("Size = %d, want 1", cache.Size())
	}

	cache.Clear()
	if cache.Size() != 0 {
		t.Errorf("Size after Clear = %d, want 0", cache.Size())
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache[int](time.Minute)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cache.Set("shared", n, 0)
			cache.Get("shared")
		}(i)
	}
	wg.Wait()

	if _, ok := cache.Get("shared"); !ok {
		t.Error("expected shared key to be present")
	}
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	cache := NewMemoryCache[string](time.Minute)
	cache.Close()
	cache.Close()
}

func TestMemoryCache_CloseStopsSweep(t *testing.T) {
	cache := NewMemoryCache[string](time.Minute)
	cache.Set("k", "v", 0)

	cache.Close()
	cache.Close()

	select {
	case <-cache.done:
	case <-time.After(time.Second):
		t.Fatal("sweep goroutine still running after Close")
	}

	// the cache stays usable for reads and writes
	if v, ok := cache.Get("k"); !ok || v != "v" {
		t.Errorf("Get after Close = %q, %v; want v, true", v, ok)
	}
}
