package middleware

import (
	"context"
	"time"

	pkgerrors "recruitoj/pkg/errors"
	"recruitoj/pkg/utils/logger"
	"recruitoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ipRateKeyPrefix = "contest:rate:ip:"

// Counter is the fixed-window counter backing IPRateLimit.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// IPRateLimitConfig caps requests per client IP. Max 0 disables the limit.
type IPRateLimitConfig struct {
	Max     int           `yaml:"max"`
	Window  time.Duration `yaml:"window"`
	Timeout time.Duration `yaml:"timeout"`
}

// IPRateLimit rejects clients that exceed cfg.Max requests per window.
// Counter failures are logged and the request is let through.
func IPRateLimit(counter Counter, cfg IPRateLimitConfig) gin.HandlerFunc {
	if counter == nil || cfg.Max <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	return func(c *gin.Context) {
		key := ipRateKeyPrefix + c.ClientIP()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.Timeout)
		count, err := counter.Incr(ctx, key)
		if err == nil {
			ensureWindow(ctx, counter, key, count, cfg.Window)
		}
		cancel()
		if err != nil {
			logger.Warn(c.Request.Context(), "ip rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if int(count) > cfg.Max {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.TooManyRequests).WithMessage("too many requests from this address"))
			return
		}
		c.Next()
	}
}

// ensureWindow sets the window on a fresh counter and repairs one whose
// earlier Expire was lost, so a key never counts forever.
func ensureWindow(ctx context.Context, counter Counter, key string, count int64, window time.Duration) {
	if count > 1 {
		ttl, err := counter.TTL(ctx, key)
		if err != nil || ttl > 0 {
			return
		}
	}
	if err := counter.Expire(ctx, key, window); err != nil {
		logger.Warn(ctx, "set rate limit window failed", zap.String("key", key), zap.Error(err))
	}
}
