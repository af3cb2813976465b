package security

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// IdentifierFunc names the caller a limit applies to.
type IdentifierFunc func(e *core.RequestEvent) string

type RateLimiter struct {
	redis    redis.Cmdable
	identify IdentifierFunc
}

// NewRateLimiter counts requests per caller in redis. A nil identify falls
// back to the client IP.
func NewRateLimiter(redisClient redis.Cmdable, identify IdentifierFunc) *RateLimiter {
	if identify == nil {
		identify = func(e *core.RequestEvent) string { return e.RealIP() }
	}
	return &RateLimiter{redis: redisClient, identify: identify}
}

// Limit allows max requests per window for each caller under name. Redis
// failures let the request through.
func (r *RateLimiter) Limit(name string, max int, window time.Duration) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if max <= 0 {
			return e.Next()
		}

		ctx := e.Request.Context()
		key := fmt.Sprintf("ratelimit:%s:%s", name, r.identify(e))

		count, err := r.redis.Incr(ctx, key).Result()
		if err != nil {
			slog.Warn("rate limiter unavailable", "limit", name, "error", err)
			return e.Next()
		}
		if count == 1 {
			r.redis.Expire(ctx, key, window)
		}
		if count > int64(max) {
			return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
		}
		return e.Next()
	}
}

// AntiBot rejects requests from user agents that identify as crawlers.
func (r *RateLimiter) AntiBot() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if r.isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return apis.NewForbiddenError("Access denied", nil)
		}
		return e.Next()
	}
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
