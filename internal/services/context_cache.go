package services

import (
	"log"
	"sort"
	"sync"
	"time"

	"recall/internal/models"

	"github.com/patrickmn/go-cache"
)

const (
	contextCacheTTL = 30 * time.Minute

	// When live entries exceed maxCacheEntries, the evictBatch oldest
	// entries by insertion time are dropped.
	maxCacheEntries = 100
	evictBatch      = 50
)

// ContextCacheService memoizes engineered context per (user, client)
// session. Entries are advisory hints for the planner, never a substitute
// for per-message retrieval. Puts replace the whole entry atomically;
// last writer wins.
type ContextCacheService struct {
	cache *cache.Cache
	mu    sync.Mutex // serializes put+evict; reads go through go-cache's own lock

	maxEntries int
	now        func() time.Time
}

// NewContextCacheService creates a session context cache with the default
// 30 minute TTL.
func NewContextCacheService() *ContextCacheService {
	return NewContextCacheServiceWithTTL(contextCacheTTL)
}

// NewContextCacheServiceWithTTL creates a cache with a custom TTL
func NewContextCacheServiceWithTTL(ttl time.Duration) *ContextCacheService {
	return &ContextCacheService{
		cache:      cache.New(ttl, 10*time.Minute),
		maxEntries: maxCacheEntries,
		now:        time.Now,
	}
}

// SessionKey builds the composite cache key for a user+client session
func SessionKey(userID, clientID string) string {
	return userID + "_" + clientID
}

// Get returns the cached entry for the session key, or ok=false if absent
// or expired. go-cache treats expired items as missing even before its
// janitor physically removes them.
func (s *ContextCacheService) Get(sessionKey string) (*models.ContextCacheEntry, bool) {
	value, found := s.cache.Get(sessionKey)
	if !found {
		return nil, false
	}

	entry, ok := value.(*models.ContextCacheEntry)
	if !ok {
		return nil, false
	}

	return entry, true
}

// Put inserts or replaces the session's entry, then enforces the live
// entry cap by evicting the oldest insertions.
func (s *ContextCacheService) Put(sessionKey, payload, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &models.ContextCacheEntry{
		Payload:    payload,
		UserID:     userID,
		InsertedAt: s.now(),
	}
	s.cache.Set(sessionKey, entry, cache.DefaultExpiration)

	s.evictOldest()
}

// evictOldest drops the evictBatch oldest live entries once the cache
// grows past maxEntries. Caller holds s.mu.
func (s *ContextCacheService) evictOldest() {
	items := s.cache.Items()
	if len(items) <= s.maxEntries {
		return
	}

	type keyed struct {
		key        string
		insertedAt time.Time
	}
	entries := make([]keyed, 0, len(items))
	for key, item := range items {
		if entry, ok := item.Object.(*models.ContextCacheEntry); ok {
			entries = append(entries, keyed{key: key, insertedAt: entry.InsertedAt})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].insertedAt.Before(entries[j].insertedAt)
	})

	evicted := 0
	for _, e := range entries {
		if evicted >= evictBatch {
			break
		}
		s.cache.Delete(e.key)
		evicted++
	}

	log.Printf("🗑️  [CONTEXT-CACHE] Evicted %d oldest entries (%d live)", evicted, len(items)-evicted)
}

// Count returns the number of live entries. Items() skips entries that
// have expired but not yet been swept by the janitor; ItemCount() would
// include them.
func (s *ContextCacheService) Count() int {
	return len(s.cache.Items())
}

// Clear empties the cache. Used for test isolation.
func (s *ContextCacheService) Clear() {
	s.cache.Flush()
}
