package utils

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeCodeScript deletes the key only when the stored code matches.
var consumeCodeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v and v == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0`)

type codeEntry struct {
	code      string
	expiresAt time.Time
}

// CodeStore keeps short-lived verification codes keyed per flow (usually an email).
// Redis is used when available; otherwise codes live in process memory.
type CodeStore struct {
	rc     *redis.Client
	prefix string

	mu        sync.Mutex
	entries   map[string]codeEntry
	cooldowns map[string]time.Time
	now       func() time.Time
}

// NewCodeStore creates a store; rc may be nil.
func NewCodeStore(rc *redis.Client, prefix string) *CodeStore {
	if prefix == "" {
		prefix = "verify:email:"
	}
	return &CodeStore{
		rc:        rc,
		prefix:    prefix,
		entries:   map[string]codeEntry{},
		cooldowns: map[string]time.Time{},
		now:       time.Now,
	}
}

// GenerateVerificationCode creates a numeric code with given length.
func GenerateVerificationCode(n int) string {
	if n <= 0 {
		n = 6
	}
	digits := make([]byte, n)
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			v = big.NewInt(time.Now().UnixNano() % 10)
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits)
}

// Save stores code under key for ttl, replacing any previous code for the same key.
func (s *CodeStore) Save(key, code string, ttl time.Duration) error {
	if s.rc != nil {
		ctx, cancel := redisCtx()
		defer cancel()
		err := s.rc.Set(ctx, s.prefix+key, code, ttl).Err()
		if err == nil {
			return nil
		}
		Sugar.Warnf("code store: redis set failed, using memory: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.entries[key] = codeEntry{code: code, expiresAt: s.now().Add(ttl)}
	return nil
}

// VerifyAndConsume reports whether code matches the live code for key and removes it on success.
// A wrong code leaves the stored code in place until it expires.
func (s *CodeStore) VerifyAndConsume(key, code string) bool {
	if code == "" {
		return false
	}
	if s.rc != nil {
		ctx, cancel := redisCtx()
		defer cancel()
		n, err := consumeCodeScript.Run(ctx, s.rc, []string{s.prefix + key}, code).Int()
		if err == nil {
			if n == 1 {
				return true
			}
		} else {
			Sugar.Warnf("code store: redis verify failed, checking memory: %v", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return false
	}
	if entry.code != code {
		return false
	}
	delete(s.entries, key)
	return true
}

// TryCooldown sets a cooldown marker for key. It returns false while a previous marker is live.
func (s *CodeStore) TryCooldown(key string, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	if s.rc != nil {
		ctx, cancel := redisCtx()
		defer cancel()
		if ok, err := s.rc.SetNX(ctx, "cooldown:"+s.prefix+key, "1", cooldown).Result(); err == nil {
			return ok
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	if until, ok := s.cooldowns[key]; ok && s.now().Before(until) {
		return false
	}
	s.cooldowns[key] = s.now().Add(cooldown)
	return true
}

func (s *CodeStore) sweepLocked() {
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	for k, until := range s.cooldowns {
		if !now.Before(until) {
			delete(s.cooldowns, k)
		}
	}
}
