package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/sitebot/internal/api/response"
	"github.com/liliang-cn/sitebot/internal/service"
)

// Handler handles admin API requests
type Handler struct {
	adminService *service.AdminService
}

// NewHandler creates a new admin handler
func NewHandler(adminService *service.AdminService) *Handler {
	return &Handler{adminService: adminService}
}

// RegisterRoutes registers admin routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bots := r.Group("/bots")
	{
		bots.GET("", h.ListBots)
		bots.DELETE("/:id", h.DeleteBot)
		bots.GET("/:id/logs", h.ListChatLogs)
	}

	r.GET("/stats", h.GetStats)
}

// Bot handlers

func (h *Handler) ListBots(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	resp, err := h.adminService.ListBots(c.Request.Context(), c.Query("owner_id"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) DeleteBot(c *gin.Context) {
	if err := h.adminService.DeleteBot(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "bot deleted"})
}

func (h *Handler) ListChatLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.adminService.ListChatLogs(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// Stats handler

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.adminService.GetStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
