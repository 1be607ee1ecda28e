package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/aman-churiwal/crm-gateway/internal/apiresponses"
)

// Recovery is the terminal error handler. It turns panics and errors recorded
// with c.Error into the JSON error envelope; nothing else writes that envelope.
// The failure text and stack reach the client only when showDetails is set.
func Recovery(showDetails bool, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if r == http.ErrAbortHandler {
					panic(r)
				}
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				reportFailure(c, http.StatusInternalServerError, err, string(debug.Stack()), showDetails, log)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		reportFailure(c, apiresponses.StatusOf(err), err, apiresponses.StackOf(err), showDetails, log)
	}
}

func reportFailure(c *gin.Context, status int, err error, stack string, showDetails bool, log *zap.SugaredLogger) {
	fields := []interface{}{
		"error", err.Error(),
		"stack", stack,
		"url", c.Request.URL.String(),
		"method", c.Request.Method,
		"ip", c.ClientIP(),
		"status", status,
	}
	if id := c.GetString(RequestIDKey); id != "" {
		fields = append(fields, "request_id", id)
	}
	log.Errorw("Request failed", fields...)

	if c.Writer.Written() {
		return
	}

	env := apiresponses.Envelope(err, showDetails)
	if showDetails {
		env.Stack = stack
	}
	c.AbortWithStatusJSON(status, env)
}

// NotFound routes unknown paths into the error envelope.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		_ = c.Error(apiresponses.NewHTTPError(http.StatusNotFound,
			errors.Errorf("route not found: %s %s", c.Request.Method, c.Request.URL.Path)))
		c.Abort()
	}
}
