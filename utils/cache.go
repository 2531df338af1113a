package utils

import (
	"context"
	"encoding/json"
	"time"
)

const (
	defaultCacheTTL = 10 * time.Minute
	// HomeFeedCachePrefix covers every cached home and category feed page.
	HomeFeedCachePrefix = "cache:posts:feed:"
)

// CacheGetBytes returns cached bytes for a key. A nil Redis client is always a miss.
func CacheGetBytes(key string) ([]byte, bool) {
	rc := GetRedis()
	if rc == nil {
		return nil, false
	}
	ctx, cancel := redisCtx()
	defer cancel()
	b, err := rc.Get(ctx, key).Bytes()
	if err != nil {
		Sugar.Debugf("cache get miss key=%s err=%v", key, err)
		return nil, false
	}
	return b, true
}

// CacheGetJSON decodes a cached JSON value into v.
func CacheGetJSON(key string, v interface{}) bool {
	b, ok := CacheGetBytes(key)
	if !ok {
		return false
	}
	return json.Unmarshal(b, v) == nil
}

// CacheSetJSON marshals v and stores it with ttl (default when <= 0).
func CacheSetJSON(key string, v interface{}, ttl time.Duration) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	ctx, cancel := redisCtx()
	defer cancel()
	if err := rc.Set(ctx, key, b, ttl).Err(); err != nil {
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
}

// InvalidateByPrefix deletes keys that match the given prefix using SCAN.
func InvalidateByPrefix(prefix string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var cursor uint64
	for i := 0; i < 10; i++ { // bounded rounds
		keys, next, err := rc.Scan(ctx, cursor, prefix+"*", 500).Result()
		if err != nil {
			Sugar.Warnf("cache invalidate failed prefix=%s err=%v", prefix, err)
			return
		}
		if len(keys) > 0 {
			if err := rc.Del(ctx, keys...).Err(); err != nil {
				Sugar.Warnf("cache delete failed prefix=%s err=%v", prefix, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
