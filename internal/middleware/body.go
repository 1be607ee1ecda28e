package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/aman-churiwal/crm-gateway/internal/apiresponses"
)

// BodyLimit buffers JSON and urlencoded bodies up to max bytes. Larger bodies fail
// with 413 and malformed JSON with 400, both through the error envelope. Other
// content types (multipart uploads) pass through untouched.
func BodyLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody || !parsedContentType(c.ContentType()) {
			c.Next()
			return
		}

		if c.Request.ContentLength > max {
			rejectTooLarge(c, max)
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, max+1))
		_ = c.Request.Body.Close()
		if err != nil {
			_ = c.Error(apiresponses.NewHTTPError(http.StatusBadRequest, errors.Wrap(err, "read request body")))
			c.Abort()
			return
		}
		if int64(len(body)) > max {
			rejectTooLarge(c, max)
			return
		}

		if c.ContentType() == gin.MIMEJSON && len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
			_ = c.Error(apiresponses.Errorf(http.StatusBadRequest, "request body is not valid JSON"))
			c.Abort()
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Request.ContentLength = int64(len(body))
		c.Next()
	}
}

func rejectTooLarge(c *gin.Context, max int64) {
	_ = c.Error(apiresponses.Errorf(http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", max))
	c.Abort()
}

func parsedContentType(ct string) bool {
	return ct == gin.MIMEJSON || ct == gin.MIMEPOSTForm || strings.HasSuffix(ct, "+json")
}
