// Package rules serves per-target extraction rule sets to the consumer,
// caching them so the hot path does not hit the database for every record.
package rules

import (
	"context"
	"fmt"
	"sync"

	"auditsync/core"
	"auditsync/metrics"
	"auditsync/storage"

	"go.uber.org/zap"
)

// Cache holds the active rule set per target. Rules change rarely and are
// authored out of band, so the cache loads a target's rules once and
// serves them until Invalidate is called.
type Cache struct {
	store  storage.RuleStorageInterface
	logger *zap.SugaredLogger

	mu     sync.RWMutex
	byName map[string][]core.ExtractionRule
}

// NewCache creates a rule cache backed by the given storage.
func NewCache(store storage.RuleStorageInterface, logger *zap.SugaredLogger) *Cache {
	return &Cache{
		store:  store,
		logger: logger,
		byName: make(map[string][]core.ExtractionRule),
	}
}

// RulesFor returns the target's active rules in evaluation order, loading
// them from storage on first use. A load failure is not cached; the next
// call retries.
func (c *Cache) RulesFor(ctx context.Context, targetName string) ([]core.ExtractionRule, error) {
	c.mu.RLock()
	cached, ok := c.byName[targetName]
	c.mu.RUnlock()
	if ok {
		metrics.RuleCacheHits.Inc()
		return cached, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have loaded the target while we waited.
	if cached, ok := c.byName[targetName]; ok {
		metrics.RuleCacheHits.Inc()
		return cached, nil
	}

	metrics.RuleCacheMisses.Inc()
	loaded, err := c.store.GetActiveRulesByTarget(ctx, targetName)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for target %s: %w", targetName, err)
	}

	c.byName[targetName] = loaded
	c.logger.Infof("Loaded %d active rule(s) for target %s", len(loaded), targetName)
	return loaded, nil
}

// Invalidate drops the cached rules for a target, or for all targets when
// name is empty.
func (c *Cache) Invalidate(targetName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if targetName == "" {
		c.byName = make(map[string][]core.ExtractionRule)
		return
	}
	delete(c.byName, targetName)
}

// Len returns the number of cached targets.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}
