package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scan-gate/internal/status"
)

// RateLimiter throttles scan attempts per device so a wedged or malicious
// gate cannot flood the validation endpoint.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  perMinute,
		window: time.Minute,
	}
}

// AllowScan counts one attempt against the device (falling back to the
// caller's address when no device id is sent) and rejects once the window
// limit is exceeded. Redis being down never blocks scanning.
func (r *RateLimiter) AllowScan(ctx context.Context, deviceInfo, remoteAddr string) error {
	if r.redis == nil || r.limit <= 0 {
		return nil
	}

	identity := deviceInfo
	if identity == "" {
		identity = remoteAddr
	}
	key := fmt.Sprintf("scanlimit:%s", identity)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return nil
	}
	if count == 1 {
		r.redis.Expire(ctx, key, r.window)
	}
	if count > int64(r.limit) {
		return status.ErrRateLimited
	}

	return nil
}
