package testcase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"recruitoj/internal/common/cache"
	"recruitoj/internal/contest/model"
)

const (
	testCaseCacheKeyPrefix = "contest:testcases:"
	defaultTestCaseTTL     = 10 * time.Minute
)

// CachedProvider puts a cache-aside layer in front of another Provider.
// Missing or corrupt sets are never cached because the wrapped provider reports them as errors.
type CachedProvider struct {
	next  Provider
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedProvider(next Provider, cacheClient cache.Cache, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = defaultTestCaseTTL
	}
	return &CachedProvider{next: next, cache: cacheClient, ttl: ttl}
}

func (p *CachedProvider) Load(ctx context.Context, problemID int) ([]model.TestCase, error) {
	return cache.GetWithCached(
		ctx,
		p.cache,
		fmt.Sprintf("%s%d", testCaseCacheKeyPrefix, problemID),
		cache.JitterTTL(p.ttl),
		0,
		func(cases []model.TestCase) bool { return len(cases) == 0 },
		marshalCases,
		unmarshalCases,
		func(ctx context.Context) ([]model.TestCase, error) {
			return p.next.Load(ctx, problemID)
		},
	)
}

func marshalCases(cases []model.TestCase) string {
	data, err := json.Marshal(cases)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalCases(data string) ([]model.TestCase, error) {
	var cases []model.TestCase
	if err := json.Unmarshal([]byte(data), &cases); err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("empty cached test case set")
	}
	return cases, nil
}
