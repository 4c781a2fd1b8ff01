package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OwnerHeader carries the caller's owner ID, set by the upstream gateway
const OwnerHeader = "X-Owner-ID"

const ownerKey = "owner_id"

// Owner rejects requests without an owner ID and stores it for handlers
func Owner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := strings.TrimSpace(c.GetHeader(OwnerHeader))
		if owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + OwnerHeader + " header"})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

// OwnerID returns the owner stored by Owner
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}
