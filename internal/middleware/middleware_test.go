package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aman-churiwal/crm-gateway/internal/apiresponses"
	"github.com/aman-churiwal/crm-gateway/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func envelopeOf(t *testing.T, w *httptest.ResponseRecorder) apiresponses.ErrorEnvelope {
	t.Helper()
	var env apiresponses.ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestBodyLimit(t *testing.T) {
	const max = 64

	engine := gin.New()
	engine.Use(Recovery(true, zap.NewNop().Sugar()), BodyLimit(max))
	engine.POST("/echo", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.Data(http.StatusOK, "text/plain", body)
	})

	post := func(ct string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader(body))
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	exact := []byte(`"` + strings.Repeat("a", max-2) + `"`)
	w := post(gin.MIMEJSON, exact)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, exact, w.Body.Bytes())

	over := []byte(`"` + strings.Repeat("a", max-1) + `"`)
	w = post(gin.MIMEJSON, over)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Internal Server Error", envelopeOf(t, w).Msg)

	// A lying Content-Length is caught by the read limit.
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader(over))
	req.Header.Set("Content-Type", gin.MIMEJSON)
	req.ContentLength = -1
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = post(gin.MIMEJSON, []byte(`{"a":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(gin.MIMEPOSTForm, []byte("a=1&b=2"))
	assert.Equal(t, http.StatusOK, w.Code)

	// Multipart uploads are not buffered here.
	big := bytes.Repeat([]byte("x"), 4*max)
	w = post("multipart/form-data; boundary=xyz", big)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Body.Bytes(), len(big))
}

func TestRecoveryEnvelope(t *testing.T) {
	newEngine := func(showDetails bool) (*gin.Engine, *observer.ObservedLogs) {
		core, logs := observer.New(zapcore.DebugLevel)
		log := zap.New(core).Sugar()

		engine := gin.New()
		engine.Use(Recovery(showDetails, log), RequestID(log))
		engine.GET("/fail", func(c *gin.Context) {
			_ = c.Error(errors.New("db down"))
			c.Abort()
		})
		engine.GET("/panic", func(c *gin.Context) {
			panic("kaboom")
		})
		engine.GET("/conflict", func(c *gin.Context) {
			_ = c.Error(apiresponses.NewHTTPError(http.StatusConflict, errors.New("duplicate email")))
			c.Abort()
		})
		engine.NoRoute(NotFound())
		return engine, logs
	}

	serve := func(engine *gin.Engine, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	t.Run("details hidden", func(t *testing.T) {
		engine, logs := newEngine(false)

		w := serve(engine, "/fail")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"success":false,"msg":"Internal Server Error","error":"An error occurred. Please try again later."}`, w.Body.String())

		entries := logs.FilterMessage("Request failed").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "db down", fields["error"])
		assert.Contains(t, fields["stack"], "db down")
		assert.NotEmpty(t, fields["request_id"])
	})

	t.Run("details shown", func(t *testing.T) {
		engine, _ := newEngine(true)

		env := envelopeOf(t, serve(engine, "/fail"))
		assert.Equal(t, "db down", env.Error)
		assert.Contains(t, env.Stack, "middleware_test.go")
	})

	t.Run("panic becomes 500", func(t *testing.T) {
		engine, logs := newEngine(false)

		w := serve(engine, "/panic")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, apiresponses.GenericErrorMessage, envelopeOf(t, w).Error)
		require.Equal(t, 1, logs.FilterMessage("Request failed").Len())
		assert.Equal(t, "kaboom", logs.FilterMessage("Request failed").All()[0].ContextMap()["error"])
	})

	t.Run("advertised status", func(t *testing.T) {
		engine, _ := newEngine(true)

		w := serve(engine, "/conflict")
		assert.Equal(t, http.StatusConflict, w.Code)
		env := envelopeOf(t, w)
		assert.Equal(t, "Internal Server Error", env.Msg)
		assert.Equal(t, "duplicate email", env.Error)
	})

	t.Run("unknown route", func(t *testing.T) {
		engine, _ := newEngine(false)

		w := serve(engine, "/missing")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Internal Server Error", envelopeOf(t, w).Msg)
	})
}

func TestRateLimitConsumesGeneralThenSpecific(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	limiters := ratelimit.NewLimiters(store, map[string]ratelimit.Policy{
		ratelimit.ClassGeneral:    {Window: time.Minute, Max: 3, Message: "general exhausted"},
		ratelimit.ClassOTPRequest: {Window: time.Minute, Max: 1, Message: "otp exhausted"},
	})
	rules := []QuotaRule{{Prefix: "/otp", Class: ratelimit.ClassOTPRequest}}

	engine := gin.New()
	engine.Use(RateLimit(limiters, rules, zap.NewNop().Sugar()))
	engine.Any("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hit := func(path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = ip + ":4000"
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	w := hit("/otp", "10.0.0.1")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "1", w.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("RateLimit-Remaining"))

	w = hit("/otp", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"msg":"otp exhausted"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// "/otpx" shares the prefix text but not the path segment.
	w = hit("/otpx", "10.0.0.1")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "3", w.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("RateLimit-Remaining"))

	w = hit("/anything", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"msg":"general exhausted"}`, w.Body.String())

	assert.Equal(t, http.StatusNoContent, hit("/anything", "10.0.0.2").Code)
}

type stubValidator struct {
	claims jwt.MapClaims
	err    error
	got    string
}

func (s *stubValidator) ValidateToken(token string) (jwt.MapClaims, error) {
	s.got = token
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	newEngine := func(v TokenValidator) *gin.Engine {
		engine := gin.New()
		engine.Use(Recovery(true, zap.NewNop().Sugar()))
		engine.GET("/me", RequireAuth(v), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "role": c.GetString("role")})
		})
		return engine
	}

	ok := &stubValidator{claims: jwt.MapClaims{"user_id": "emp-1", "role": "counsellor"}}

	tests := []struct {
		name      string
		validator *stubValidator
		headers   map[string]string
		wantCode  int
		wantToken string
	}{
		{"missing token", ok, nil, http.StatusUnauthorized, ""},
		{"x-auth-token", ok, map[string]string{"x-auth-token": "abc"}, http.StatusOK, "abc"},
		{"bearer", ok, map[string]string{"Authorization": "bearer def"}, http.StatusOK, "def"},
		{"x-auth-token wins", ok, map[string]string{"x-auth-token": "abc", "Authorization": "Bearer def"}, http.StatusOK, "abc"},
		{"bad scheme", ok, map[string]string{"Authorization": "Basic Zm9v"}, http.StatusUnauthorized, ""},
		{"invalid token", &stubValidator{err: errors.New("expired")}, map[string]string{"x-auth-token": "old"}, http.StatusUnauthorized, "old"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validator.got = ""
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			newEngine(tt.validator).ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantToken, tt.validator.got)
			if tt.wantCode == http.StatusOK {
				assert.JSONEq(t, `{"user_id":"emp-1","role":"counsellor"}`, w.Body.String())
			} else {
				assert.Equal(t, "Internal Server Error", envelopeOf(t, w).Msg)
			}
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID(zap.NewNop().Sugar()))
	engine.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RequestIDKey)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Body.String(), 36)
}
