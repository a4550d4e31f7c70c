package main

import "sync"

// RecordCache holds the most recent raw upstream response per
// category for one login session. The stored value is always the
// unfiltered response; filtered views are derived on demand and
// never written back. Readers observe either the previous or the new
// response, never a partial one.
type RecordCache struct {
	mu      sync.RWMutex
	entries map[Category]any
	seq     map[Category]uint64
}

func newRecordCache() *RecordCache {
	return &RecordCache{
		entries: make(map[Category]any),
		seq:     make(map[Category]uint64),
	}
}

// BeginFetch reserves a sequence token for a fetch that is about to
// start. Tokens are per category and monotonically increasing, so a
// slow in-flight request can not clobber the result of a newer one.
func (rc *RecordCache) BeginFetch(c Category) uint64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.seq[c]++
	return rc.seq[c]
}

// Store saves a completed fetch, replacing any previous entry for
// the category. It reports whether the response was accepted; a
// stale token leaves the cache untouched.
func (rc *RecordCache) Store(c Category, raw any, token uint64) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if token != rc.seq[c] {
		return false
	}
	rc.entries[c] = raw
	return true
}

// Get returns the cached raw response for a category, if any.
func (rc *RecordCache) Get(c Category) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	raw, ok := rc.entries[c]
	return raw, ok
}

// Clear drops the entry for one category. The sequence counter is
// kept so tokens stay monotone across clears.
func (rc *RecordCache) Clear(c Category) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.entries, c)
}

// ClearAll drops every entry, as done on logout.
func (rc *RecordCache) ClearAll() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries = make(map[Category]any)
}

// sessionRegistry tracks one RecordCache per signed-in user. Caches
// are created on first use after login and dropped on logout.
type sessionRegistry struct {
	mu     sync.Mutex
	caches map[string]*RecordCache
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{caches: make(map[string]*RecordCache)}
}

func (sr *sessionRegistry) cacheFor(user string) *RecordCache {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	cache, ok := sr.caches[user]
	if !ok {
		cache = newRecordCache()
		sr.caches[user] = cache
	}
	return cache
}

func (sr *sessionRegistry) drop(user string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if cache, ok := sr.caches[user]; ok {
		cache.ClearAll()
		delete(sr.caches, user)
	}
}
