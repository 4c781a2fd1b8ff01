package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/sitebot/internal/api/response"
	"github.com/liliang-cn/sitebot/internal/domain"
)

const apiKeyHeader = "X-API-Key"

// Auth guards the admin API with a static key sent as X-API-Key or a
// bearer token. An empty key disables the check.
func Auth(apiKey string) gin.HandlerFunc {
	want := []byte(apiKey)

	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		if subtle.ConstantTimeCompare([]byte(presentedKey(c)), want) != 1 {
			response.Error(c, domain.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Next()
	}
}

// presentedKey returns the X-API-Key header, falling back to a bearer token
func presentedKey(c *gin.Context) string {
	if key := c.GetHeader(apiKeyHeader); key != "" {
		return key
	}
	key, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(key)
}
