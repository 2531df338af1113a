package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/nasda-team/nasda/utils"
)

const limiterIdleTTL = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one token bucket per client key.
type limiterStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

func newLimiterStore(perMinute int) *limiterStore {
	if perMinute < 1 {
		perMinute = 1
	}
	return &limiterStore{
		visitors: map[string]*visitor{},
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
	}
}

func (s *limiterStore) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.visitors {
		if now.Sub(v.lastSeen) > limiterIdleTTL {
			delete(s.visitors, k)
		}
	}
	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// RateLimitMiddleware applies an IP based token bucket of perMinute requests.
// Each call creates an independent bucket set, so route groups do not share quota.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	store := newLimiterStore(perMinute)
	return func(ctx *gin.Context) {
		if !store.allow(ctx.ClientIP(), time.Now()) {
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
