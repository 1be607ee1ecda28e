package middleware

import (
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"
	ReqLoggerKey    = "reqLogger"
)

// RequestID tags each request with the caller's X-Request-ID or a fresh UUID and
// stores a request-scoped logger in the context.
func RequestID(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		c.Set(RequestIDKey, id)
		c.Set(ReqLoggerKey, log.With(RequestIDKey, id))
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// Logger writes one access log line per request. The health probe is skipped so
// the keep-alive pinger does not flood the log.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/api/health"},
		Context: func(c *gin.Context) []zapcore.Field {
			return []zapcore.Field{zap.String(RequestIDKey, c.GetString(RequestIDKey))}
		},
	})
}

// GetReqLogger returns the request-scoped logger if RequestID ran, otherwise fallback.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}
