package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/aman-churiwal/crm-gateway/internal/apiresponses"
)

const AuthTokenHeader = "x-auth-token"

// TokenValidator is implemented by service.AuthService.
type TokenValidator interface {
	ValidateToken(token string) (jwt.MapClaims, error)
}

// Validates JWT token and requires authentication
func RequireAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractToken(c)
		if err != nil {
			_ = c.Error(apiresponses.NewHTTPError(http.StatusUnauthorized, err))
			c.Abort()
			return
		}

		// Validate token
		claims, err := validator.ValidateToken(tokenString)
		if err != nil {
			_ = c.Error(apiresponses.NewHTTPError(http.StatusUnauthorized, err))
			c.Abort()
			return
		}

		// Store user info in context
		c.Set("user_id", claims["user_id"])
		c.Set("email", claims["email"])
		c.Set("role", claims["role"])

		c.Next()
	}
}

// extractToken accepts "Authorization: Bearer <token>" or the x-auth-token header.
func extractToken(c *gin.Context) (string, error) {
	if token := strings.TrimSpace(c.GetHeader(AuthTokenHeader)); token != "" {
		return token, nil
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header required")
	}

	// Check Bearer prefix
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format, use: Bearer <token>")
	}

	return parts[1], nil
}
