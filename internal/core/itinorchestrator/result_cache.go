package itinorchestrator

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
)

// ResultCache is a best-effort cache of finished PlanResults, keyed on the
// planning request shape. A cache miss or any cache error is silent: the
// orchestrator always falls through to a fresh Plan call.
type ResultCache interface {
	Get(ctx context.Context, req PlanRequest) (*PlanResult, bool)
	Set(ctx context.Context, req PlanRequest, result *PlanResult)
}

// CacheKey hashes the parts of PlanRequest that determine the plan's shape;
// POI identity and date range are included, free-text persona is not, since
// persona only steers ordering, not sufficiency.
func CacheKey(req PlanRequest) string {
	ids := make([]string, 0, len(req.Pois))
	for _, p := range req.Pois {
		ids = append(ids, p.PoiID)
	}
	raw := fmt.Sprintf("%s|%s|%s|%v|%v", req.Destination, req.StartDate, req.EndDate, req.Budget, ids)
	sum := md5.Sum([]byte(raw))
	return "itin:plan:" + hex.EncodeToString(sum[:])
}

// LocalResultCache wraps patrickmn/go-cache (teacher's idiom), used when no
// Redis address is configured.
type LocalResultCache struct {
	cache *cache.Cache
}

func NewLocalResultCache(ttl time.Duration) *LocalResultCache {
	return &LocalResultCache{cache: cache.New(ttl, ttl*2)}
}

var _ ResultCache = (*LocalResultCache)(nil)

func (c *LocalResultCache) Get(_ context.Context, req PlanRequest) (*PlanResult, bool) {
	v, ok := c.cache.Get(CacheKey(req))
	if !ok {
		return nil, false
	}
	result, ok := v.(*PlanResult)
	return result, ok
}

func (c *LocalResultCache) Set(_ context.Context, req PlanRequest, result *PlanResult) {
	c.cache.Set(CacheKey(req), result, cache.DefaultExpiration)
}

// RedisResultCache shares cached plans across process instances, grounded
// on the pack's go-redis task-store idiom (NewClient, Get/Set with TTL,
// silent degrade on error rather than failing the caller).
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisResultCache(addr string, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

var _ ResultCache = (*RedisResultCache)(nil)

func (c *RedisResultCache) Get(ctx context.Context, req PlanRequest) (*PlanResult, bool) {
	raw, err := c.client.Get(ctx, CacheKey(req)).Bytes()
	if err != nil {
		return nil, false
	}
	var result PlanResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (c *RedisResultCache) Set(ctx context.Context, req PlanRequest, result *PlanResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.client.Set(ctx, CacheKey(req), raw, c.ttl)
}

