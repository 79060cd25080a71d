package rules

import (
	"context"
	"errors"
	"sync"
	"testing"

	"auditsync/core"
	"auditsync/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCache_LoadsOncePerTarget(t *testing.T) {
	store := storage.NewMockRuleStorage()
	store.SetRules("DB1", []core.ExtractionRule{
		{ID: "r1", TargetName: "DB1", RuleName: "msisdn", SourceField: "text",
			RegexPattern: `msisdn = '(\d+)'`, IsActive: true, RuleOrder: 1},
	})
	cache := NewCache(store, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	first, err := cache.RulesFor(ctx, "DB1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := cache.RulesFor(ctx, "DB1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.LoadCount)
}

func TestCache_ConcurrentLookupsLoadOnce(t *testing.T) {
	store := storage.NewMockRuleStorage()
	store.SetRules("DB1", []core.ExtractionRule{
		{ID: "r1", TargetName: "DB1", RuleName: "msisdn", SourceField: "text",
			RegexPattern: `\d+`, IsActive: true, RuleOrder: 1},
	})
	cache := NewCache(store, zaptest.NewLogger(t).Sugar())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rules, err := cache.RulesFor(context.Background(), "DB1")
			assert.NoError(t, err)
			assert.Len(t, rules, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.LoadCount)
}

func TestCache_LoadFailureNotCached(t *testing.T) {
	store := storage.NewMockRuleStorage()
	store.SetRules("DB1", []core.ExtractionRule{
		{ID: "r1", TargetName: "DB1", RuleName: "msisdn", SourceField: "text",
			RegexPattern: `\d+`, IsActive: true, RuleOrder: 1},
	})
	store.FailAll = errors.New("database is locked")
	cache := NewCache(store, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	_, err := cache.RulesFor(ctx, "DB1")
	require.Error(t, err)
	assert.Zero(t, cache.Len())

	// Storage recovers and the next lookup succeeds.
	store.FailAll = nil
	rules, err := cache.RulesFor(ctx, "DB1")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestCache_EmptyRuleSetIsCached(t *testing.T) {
	store := storage.NewMockRuleStorage()
	cache := NewCache(store, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	rules, err := cache.RulesFor(ctx, "NoRules")
	require.NoError(t, err)
	assert.Empty(t, rules)

	_, err = cache.RulesFor(ctx, "NoRules")
	require.NoError(t, err)
	assert.Equal(t, 1, store.LoadCount)
}

func TestCache_Invalidate(t *testing.T) {
	store := storage.NewMockRuleStorage()
	store.SetRules("DB1", []core.ExtractionRule{
		{ID: "r1", TargetName: "DB1", RuleName: "a", SourceField: "text",
			RegexPattern: `a`, IsActive: true, RuleOrder: 1},
	})
	store.SetRules("DB2", []core.ExtractionRule{
		{ID: "r2", TargetName: "DB2", RuleName: "b", SourceField: "text",
			RegexPattern: `b`, IsActive: true, RuleOrder: 1},
	})
	cache := NewCache(store, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	_, err := cache.RulesFor(ctx, "DB1")
	require.NoError(t, err)
	_, err = cache.RulesFor(ctx, "DB2")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	cache.Invalidate("DB1")
	assert.Equal(t, 1, cache.Len())

	cache.Invalidate("")
	assert.Zero(t, cache.Len())

	_, err = cache.RulesFor(ctx, "DB1")
	require.NoError(t, err)
	assert.Equal(t, 3, store.LoadCount)
}
