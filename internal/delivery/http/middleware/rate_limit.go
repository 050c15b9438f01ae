package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go-candidate-tracker/internal/delivery/http/response"
	"go-candidate-tracker/pkg/audit"
	"go-candidate-tracker/pkg/logger"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for one rate limit tier
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	// KeyPrefix namespaces counters in Redis, e.g. "rl:ip:"
	KeyPrefix string
	// KeyFunc defaults to the client IP
	KeyFunc func(*gin.Context) string
}

// Atomic increment with TTL on first hit.
// KEYS[1] = counter key, ARGV[1] = TTL in seconds.
// Returns: [current_count, ttl_remaining]
var rateLimitScript = goredis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('TTL', KEYS[1])
return {count, ttl}
`)

type window struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter counts requests in Redis when a client is available and in
// process memory otherwise (or when Redis errors).
type RateLimiter struct {
	redis *goredis.Client
	audit *audit.Logger
	now   func() time.Time

	windows sync.Map // key -> *window
}

func NewRateLimiter(client *goredis.Client, auditLog *audit.Logger) *RateLimiter {
	return &RateLimiter{redis: client, audit: auditLog, now: time.Now}
}

// Middleware enforces cfg on every request passing through it.
func (l *RateLimiter) Middleware(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	log := logger.Component("rate_limit")

	return func(c *gin.Context) {
		key := cfg.KeyPrefix + cfg.KeyFunc(c)

		count, resetAt, err := l.hit(c.Request.Context(), key, cfg)
		if err != nil {
			log.Warn("Redis rate limit failed, using in-memory counter", "error", err)
			count, resetAt = l.hitInMemory(key, cfg)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		c.Header("X-RateLimit-Reset", resetAt.Format(time.RFC3339))

		if count > cfg.Limit {
			retryAfter := int(resetAt.Sub(l.now()).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			l.audit.Log(c.Request.Context(), audit.Event{
				Event: audit.EventRateLimitExceeded,
				Details: map[string]interface{}{
					"ip":   c.ClientIP(),
					"path": c.FullPath(),
				},
			})

			response.Error(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", nil)
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(cfg.Limit-count, 0)))
		c.Next()
	}
}

func (l *RateLimiter) hit(ctx context.Context, key string, cfg RateLimitConfig) (int, time.Time, error) {
	if l.redis == nil {
		count, resetAt := l.hitInMemory(key, cfg)
		return count, resetAt, nil
	}

	ttlSeconds := int(cfg.Window.Seconds())
	result, err := rateLimitScript.Run(ctx, l.redis, []string{key}, ttlSeconds).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis rate limit eval failed: %w", err)
	}

	arr, ok := result.([]interface{})
	if !ok || len(arr) < 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected redis result format")
	}
	count, _ := arr[0].(int64)
	ttl, _ := arr[1].(int64)

	return int(count), l.now().Add(time.Duration(ttl) * time.Second), nil
}

func (l *RateLimiter) hitInMemory(key string, cfg RateLimitConfig) (int, time.Time) {
	now := l.now()
	v, _ := l.windows.LoadOrStore(key, &window{resetAt: now.Add(cfg.Window)})
	w := v.(*window)

	w.mu.Lock()
	defer w.mu.Unlock()
	if now.After(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(cfg.Window)
	}
	w.count++
	return w.count, w.resetAt
}

// Cleanup drops expired in-memory windows every interval until ctx is done.
func (l *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := l.now()
			l.windows.Range(func(key, value interface{}) bool {
				w := value.(*window)
				w.mu.Lock()
				if now.After(w.resetAt) {
					l.windows.Delete(key)
				}
				w.mu.Unlock()
				return true
			})
		}
	}
}
