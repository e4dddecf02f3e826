package services

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestContextCachePutGet(t *testing.T) {
	cache := NewContextCacheService()

	key := SessionKey("user1", "chatgpt")
	cache.Put(key, "engineered context", "user1")

	entry, ok := cache.Get(key)
	if !ok {
		t.Fatal("Expected cache hit after Put")
	}
	if entry.Payload != "engineered context" {
		t.Errorf("Payload = %q, want %q", entry.Payload, "engineered context")
	}
	if entry.UserID != "user1" {
		t.Errorf("UserID = %q, want %q", entry.UserID, "user1")
	}
}

func TestContextCacheMiss(t *testing.T) {
	cache := NewContextCacheService()

	if _, ok := cache.Get(SessionKey("nobody", "nothing")); ok {
		t.Error("Expected miss for unknown session key")
	}
}

func TestContextCacheLastWriterWins(t *testing.T) {
	cache := NewContextCacheService()

	key := SessionKey("user1", "claude")
	cache.Put(key, "first", "user1")
	cache.Put(key, "second", "user1")

	entry, ok := cache.Get(key)
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if entry.Payload != "second" {
		t.Errorf("Payload = %q, want the later write", entry.Payload)
	}
	if cache.Count() != 1 {
		t.Errorf("Count = %d, want 1: replacement must not add entries", cache.Count())
	}
}

func TestContextCacheExpiry(t *testing.T) {
	cache := NewContextCacheServiceWithTTL(20 * time.Millisecond)

	key := SessionKey("user1", "chatgpt")
	cache.Put(key, "payload", "user1")

	if _, ok := cache.Get(key); !ok {
		t.Fatal("Expected hit before TTL")
	}

	time.Sleep(40 * time.Millisecond)

	if _, ok := cache.Get(key); ok {
		t.Error("Expected miss after TTL elapsed")
	}
	// Count reflects live entries even before the janitor sweeps
	if got := cache.Count(); got != 0 {
		t.Errorf("Count = %d, want 0 after expiry", got)
	}
}

func TestContextCacheEvictsOldestBatch(t *testing.T) {
	cache := NewContextCacheService()

	// Deterministic insertion order via injected clock
	base := time.Now()
	tick := 0
	cache.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < 101; i++ {
		cache.Put(fmt.Sprintf("user%03d_app", i), "payload", fmt.Sprintf("user%03d", i))
	}

	if got := cache.Count(); got != 51 {
		t.Fatalf("Count = %d, want 51 after evicting the 50 oldest", got)
	}

	// The 50 oldest insertions are gone
	for i := 0; i < 50; i++ {
		if _, ok := cache.Get(fmt.Sprintf("user%03d_app", i)); ok {
			t.Errorf("Expected entry %d to be evicted", i)
		}
	}

	// The newest survive
	for i := 51; i < 101; i++ {
		if _, ok := cache.Get(fmt.Sprintf("user%03d_app", i)); !ok {
			t.Errorf("Expected entry %d to survive eviction", i)
		}
	}
}

func TestContextCacheConcurrentPuts(t *testing.T) {
	cache := NewContextCacheService()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				key := SessionKey(fmt.Sprintf("user%d", n), fmt.Sprintf("app%d", j))
				cache.Put(key, "payload", fmt.Sprintf("user%d", n))
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if cache.Count() > maxCacheEntries {
		t.Errorf("Count = %d, want at most %d live entries", cache.Count(), maxCacheEntries)
	}
}
