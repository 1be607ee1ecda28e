package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aman-churiwal/crm-gateway/internal/metrics"
	"github.com/aman-churiwal/crm-gateway/internal/ratelimit"
)

// QuotaRule binds a path prefix to a quota class consumed on top of the general class.
type QuotaRule struct {
	Prefix string
	Class  string
}

// RateLimit charges the general class for every request, then every class whose
// prefix matches the request path. The first exhausted class answers 429.
func RateLimit(limiters map[string]ratelimit.Limiter, rules []QuotaRule, log *zap.SugaredLogger) gin.HandlerFunc {
	general := limiters[ratelimit.ClassGeneral]

	return func(c *gin.Context) {
		ip := c.ClientIP()
		path := c.Request.URL.Path

		if general != nil && !consume(c, general, ip, log) {
			return
		}

		for _, rule := range rules {
			if !matchesPrefix(path, rule.Prefix) {
				continue
			}
			limiter, ok := limiters[rule.Class]
			if !ok {
				continue
			}
			if !consume(c, limiter, ip, log) {
				return
			}
		}

		c.Next()
	}
}

// consume counts the request against limiter and writes the rate limit headers.
// It returns false after answering 429.
func consume(c *gin.Context, limiter ratelimit.Limiter, ip string, log *zap.SugaredLogger) bool {
	policy := limiter.Policy()

	result, err := limiter.Allow(c.Request.Context(), ip)
	if err != nil {
		// Fail open: a broken counter store must not take the API down.
		log.Errorw("Rate limit check failed", "class", policy.Class, "ip", ip, "error", err)
		return true
	}

	resetIn := int(time.Until(result.ResetAt).Seconds() + 0.5)
	if resetIn < 0 {
		resetIn = 0
	}

	c.Header("RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("RateLimit-Reset", strconv.Itoa(resetIn))

	if !result.Allowed {
		metrics.QuotaRejected.WithLabelValues(policy.Class).Inc()
		log.Warnw("Quota exhausted", "class", policy.Class, "ip", ip, "path", c.Request.URL.Path)

		c.Header("Retry-After", strconv.Itoa(resetIn))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"msg": policy.Message,
		})
		return false
	}

	return true
}

func matchesPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
