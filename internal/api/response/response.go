// Package response maps service errors onto HTTP responses.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/sitebot/internal/domain"
)

// Status returns the HTTP status code for err
func Status(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrBotNotReady):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrGenerationQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrGenerationUnavailable), errors.Is(err, domain.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as {"error": "..."} with its mapped status
func Error(c *gin.Context, err error) {
	c.JSON(Status(err), gin.H{"error": err.Error()})
}
