package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aman-churiwal/crm-gateway/internal/metrics"
)

// vercelSuffix marks preview deployments, which are always admitted.
const vercelSuffix = ".vercel.app"

var (
	AllowedMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	AllowedHeaders = []string{
		"Content-Type", "Authorization", "x-auth-token", "Accept", "Origin",
		"Cookie", "Cache-Control", "Pragma", "X-Requested-With",
	}
)

// OriginPolicy decides which browser origins may call the API. It is built once
// at boot and never mutated.
type OriginPolicy struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
	summary  []string
}

// NewOriginPolicy splits origins into exact entries and '*' wildcard patterns.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{
		exact: make(map[string]struct{}, len(origins)),
	}

	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		p.summary = append(p.summary, o)
		if strings.Contains(o, "*") {
			p.patterns = append(p.patterns, wildcardPattern(o))
			continue
		}
		p.exact[o] = struct{}{}
	}

	return p
}

// wildcardPattern anchors o and lets '*' match any run of characters; every other
// character is literal.
func wildcardPattern(o string) *regexp.Regexp {
	parts := strings.Split(o, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// Admit reports whether a request carrying origin may proceed. An empty origin
// means a non-browser client.
func (p *OriginPolicy) Admit(origin string) bool {
	if origin == "" {
		return true
	}
	if strings.HasSuffix(origin, vercelSuffix) {
		return true
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, re := range p.patterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}

// Summary lists the configured origins for deny logs.
func (p *OriginPolicy) Summary() []string {
	out := make([]string, len(p.summary)+1)
	copy(out, p.summary)
	out[len(p.summary)] = "*" + vercelSuffix
	return out
}

// CORS admits or blocks each request by origin. Admitted cross-origin requests get
// their headers from gin-contrib/cors; pre-flights end here with 200 either way.
// Blocked requests never reach a handler and carry no CORS headers.
func CORS(policy *OriginPolicy, log *zap.SugaredLogger) gin.HandlerFunc {
	emitHeaders := cors.New(cors.Config{
		// Admission has already happened by the time this runs.
		AllowOriginFunc:           func(string) bool { return true },
		AllowMethods:              AllowedMethods,
		AllowHeaders:              AllowedHeaders,
		ExposeHeaders:             []string{"Content-Length", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "X-Request-ID"},
		AllowCredentials:          true,
		MaxAge:                    12 * time.Hour,
		OptionsResponseStatusCode: http.StatusOK,
	})

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusOK)
				return
			}
			c.Next()
			return
		}

		if !policy.Admit(origin) {
			metrics.CORSDenied.Inc()
			log.Warnw("[CORS] Blocked origin: "+origin,
				"allowed", policy.Summary(),
				"method", c.Request.Method,
				"path", c.Request.URL.Path)
			c.AbortWithStatus(http.StatusOK)
			return
		}

		log.Infow("[CORS] Allowed origin: "+origin, "method", c.Request.Method, "path", c.Request.URL.Path)
		emitHeaders(c)
		if c.IsAborted() {
			return
		}

		// Same-host origins are not treated as CORS by gin-contrib/cors, so make sure
		// pre-flights still terminate here.
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// Preflight answers OPTIONS on a single route with the same admission decision.
func Preflight(policy *OriginPolicy, log *zap.SugaredLogger) gin.HandlerFunc {
	return CORS(policy, log)
}
