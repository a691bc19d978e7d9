package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/infinitystory/humanstudy/pkg/response"
)

type RateLimiter struct {
	redis *redis.Client
}

// NewRateLimiter creates a limiter backed by Redis. A nil client disables limiting.
func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deviceID := GetDeviceID(c)
		if rl.redis == nil || maxRequests <= 0 || deviceID == "" {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, deviceID)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// Redis down: allow the request
			return c.Next()
		}

		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// SubmitLimit limits answer submissions per device
func (rl *RateLimiter) SubmitLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("submit", maxPerMin, time.Minute)
}

// ExportLimit limits export generation per device
func (rl *RateLimiter) ExportLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("export", maxPerHour, time.Hour)
}
