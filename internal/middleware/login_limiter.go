package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	pkgredis "github.com/nqd2/bluemoon-admin-gateway/pkg/redis"
	"github.com/nqd2/bluemoon-admin-gateway/pkg/response"
)

// LoginLimiterConfig holds rate limiting configuration for the login
// endpoint. Limits are per client IP.
type LoginLimiterConfig struct {
	// RequestsPerMinute is the sustained allowance (0 disables the limiter)
	RequestsPerMinute int
	// BurstSize is the token bucket capacity
	BurstSize int
	// Redis switches to a distributed fixed window when set; nil keeps the
	// limiter local to the process
	Redis *pkgredis.Client
	// KeyPrefix for Redis keys
	KeyPrefix string
	// CleanupInterval for stale local entries
	CleanupInterval time.Duration
	// EntryTTL after which an idle local entry is dropped
	EntryTTL time.Duration
}

// DefaultLoginLimiterConfig allows a handful of attempts per minute, enough
// for fat fingers, too slow for brute force.
func DefaultLoginLimiterConfig() LoginLimiterConfig {
	return LoginLimiterConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		KeyPrefix:         "login_limit:",
		CleanupInterval:   time.Minute,
		EntryTTL:          5 * time.Minute,
	}
}

type limiterEntry struct {
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// loginLimiter implements a per-IP token bucket with periodic cleanup. The
// cleanup goroutine lives as long as the process, like the limiter itself.
type loginLimiter struct {
	config  LoginLimiterConfig
	entries sync.Map
}

func newLoginLimiter(config LoginLimiterConfig) *loginLimiter {
	l := &loginLimiter{config: config}
	go l.cleanup()
	return l
}

func (l *loginLimiter) allow(key string) bool {
	now := time.Now()

	entry, _ := l.entries.LoadOrStore(key, &limiterEntry{
		tokens:     float64(l.config.BurstSize),
		lastUpdate: now,
	})
	e := entry.(*limiterEntry)

	e.mu.Lock()
	defer e.mu.Unlock()

	perSecond := float64(l.config.RequestsPerMinute) / 60.0
	elapsed := now.Sub(e.lastUpdate).Seconds()
	e.tokens = min(float64(l.config.BurstSize), e.tokens+elapsed*perSecond)
	e.lastUpdate = now

	if e.tokens >= 1 {
		e.tokens--
		return true
	}
	return false
}

func (l *loginLimiter) cleanup() {
	interval := l.config.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-l.config.EntryTTL)
		l.entries.Range(func(key, value interface{}) bool {
			e := value.(*limiterEntry)
			e.mu.Lock()
			stale := e.lastUpdate.Before(cutoff)
			e.mu.Unlock()
			if stale {
				l.entries.Delete(key)
			}
			return true
		})
	}
}

// allowRedis implements a fixed one-minute window shared across replicas.
func (l *loginLimiter) allowRedis(c *gin.Context, key string) bool {
	ctx := c.Request.Context()
	rdb := l.config.Redis.Client()

	window := time.Now().Unix() / 60
	redisKey := fmt.Sprintf("%s%s:%d", l.config.KeyPrefix, key, window)

	count, err := rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		// Redis down must not lock users out; fall back to the local bucket.
		return l.allow(key)
	}
	if count == 1 {
		rdb.Expire(ctx, redisKey, 2*time.Minute)
	}
	return count <= int64(l.config.RequestsPerMinute)
}

// LoginRateLimiter guards the login endpoint against credential stuffing.
func LoginRateLimiter(config LoginLimiterConfig) gin.HandlerFunc {
	if config.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if config.BurstSize <= 0 {
		config.BurstSize = config.RequestsPerMinute
	}

	limiter := newLoginLimiter(config)

	return func(c *gin.Context) {
		key := c.ClientIP()

		allowed := false
		if config.Redis != nil {
			allowed = limiter.allowRedis(c, key)
		} else {
			allowed = limiter.allow(key)
		}

		if !allowed {
			response.TooManyRequests(c, "Too many login attempts, please try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}
