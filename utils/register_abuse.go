package utils

import (
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nasda-team/nasda/config"
)

func regKey(parts ...string) string {
	return "reg:" + strings.Join(parts, ":")
}

// RegistrationCooldownTry enforces a short cooldown between attempts per IP.
// Without Redis the check always passes.
func RegistrationCooldownTry(ip string) bool {
	sec := config.Get().RegisterAttemptCooldownSec
	cli := GetRedis()
	if sec <= 0 || cli == nil {
		return true
	}
	ctx, cancel := redisCtx()
	defer cancel()
	ok, err := cli.SetNX(ctx, regKey("cooldown", ip), "1", time.Duration(sec)*time.Second).Result()
	if err != nil {
		return true // fail-open
	}
	return ok
}

// RegistrationDailyLimitCheck allows up to N successful registrations per day per IP.
func RegistrationDailyLimitCheck(ip string) bool {
	limit := config.Get().RegisterMaxPerIPPerDay
	cli := GetRedis()
	if limit <= 0 || cli == nil {
		return true
	}
	ctx, cancel := redisCtx()
	defer cancel()
	n, err := cli.Get(ctx, regKey("succday", ip, time.Now().Format("20060102"))).Int()
	if err == redis.Nil {
		return true
	}
	if err != nil {
		return true
	}
	return n < limit
}

// RegistrationDailyIncrement increments the success counter for today.
func RegistrationDailyIncrement(ip string) {
	cli := GetRedis()
	if cli == nil {
		return
	}
	ctx, cancel := redisCtx()
	defer cancel()
	key := regKey("succday", ip, time.Now().Format("20060102"))
	if err := cli.Incr(ctx, key).Err(); err == nil {
		_ = cli.Expire(ctx, key, 24*time.Hour).Err()
	}
}
