package utils

import (
	"sync"
	"time"
)

const blacklistPrefix = "jwt:blacklist:"

var (
	blacklist   = map[string]time.Time{}
	blacklistMu sync.RWMutex
)

// BlacklistToken revokes a token until its natural expiration. Redis is preferred.
func BlacklistToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := redisCtx()
		defer cancel()
		if err := rc.Set(ctx, blacklistPrefix+token, "1", ttl).Err(); err == nil {
			return
		}
	}
	blacklistMu.Lock()
	sweepBlacklistLocked(time.Now())
	blacklist[token] = expiresAt
	blacklistMu.Unlock()
}

// IsTokenBlacklisted checks if a token was revoked before natural expiration.
func IsTokenBlacklisted(token string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := redisCtx()
		defer cancel()
		if n, err := rc.Exists(ctx, blacklistPrefix+token).Result(); err == nil && n > 0 {
			return true
		}
		// fall through: the token may have been revoked while redis was unreachable
	}
	blacklistMu.RLock()
	expiresAt, ok := blacklist[token]
	blacklistMu.RUnlock()
	return ok && time.Now().Before(expiresAt)
}

func sweepBlacklistLocked(now time.Time) {
	for token, expiresAt := range blacklist {
		if now.After(expiresAt) {
			delete(blacklist, token)
		}
	}
}
