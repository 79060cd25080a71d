package util

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultRegexCacheSize bounds the number of compiled patterns kept in
// memory. Rule sets are small in practice; the bound protects against a
// misbehaving rule author generating unbounded distinct patterns.
const DefaultRegexCacheSize = 1024

// RegexCache is a bounded cache of compiled regexp2 patterns, keyed by
// pattern and match timeout. It is safe for concurrent use by multiple
// ingestion loops.
type RegexCache struct {
	cache *lru.Cache[string, *regexp2.Regexp]
}

// NewRegexCache creates a RegexCache holding at most size compiled
// patterns. A non-positive size falls back to DefaultRegexCacheSize.
func NewRegexCache(size int) (*RegexCache, error) {
	if size <= 0 {
		size = DefaultRegexCacheSize
	}
	cache, err := lru.New[string, *regexp2.Regexp](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create regex cache: %w", err)
	}
	return &RegexCache{cache: cache}, nil
}

// Get returns the compiled pattern with the given match timeout, compiling
// and caching it on first use. Different timeouts for the same pattern get
// distinct cache entries.
func (rc *RegexCache) Get(pattern string, timeout time.Duration) (*regexp2.Regexp, error) {
	key := fmt.Sprintf("%s:%d", pattern, timeout.Milliseconds())
	if re, ok := rc.cache.Get(key); ok {
		return re, nil
	}

	re, err := CompileWithTimeout(pattern, timeout)
	if err != nil {
		return nil, err
	}

	// A concurrent caller may have compiled the same pattern; Add keeps
	// whichever arrives last, which is harmless since both are equivalent.
	rc.cache.Add(key, re)
	return re, nil
}

// Len returns the number of cached compiled patterns.
func (rc *RegexCache) Len() int {
	return rc.cache.Len()
}

// Purge drops all cached patterns. Used by tests.
func (rc *RegexCache) Purge() {
	rc.cache.Purge()
}
