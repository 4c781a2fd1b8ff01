package bots

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/sitebot/internal/api/middleware"
	"github.com/liliang-cn/sitebot/internal/api/response"
	"github.com/liliang-cn/sitebot/internal/domain"
	"github.com/liliang-cn/sitebot/internal/service"
)

// Handler handles the owner-facing bot API
type Handler struct {
	botService *service.BotService
}

// NewHandler creates a new bot handler
func NewHandler(botService *service.BotService) *Handler {
	return &Handler{botService: botService}
}

// RegisterRoutes registers bot routes. The group must run middleware.Owner.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.Create)
	r.GET("", h.List)
	r.POST("/:id/refresh", h.Refresh)
	r.GET("/:id/metrics", h.Metrics)
	r.DELETE("/:id", h.Delete)
}

// Create builds a bot for a website, or returns the one the owner already has
func (h *Handler) Create(c *gin.Context) {
	var req domain.CreateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bot, created, err := h.botService.Create(c.Request.Context(), middleware.OwnerID(c), req.WebsiteURL)
	if err != nil {
		if bot == nil {
			response.Error(c, err)
			return
		}
		c.JSON(response.Status(err), botResponse(bot, err))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, botResponse(bot, nil))
}

func (h *Handler) List(c *gin.Context) {
	bots, err := h.botService.ListByOwner(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bots": bots})
}

// Refresh re-crawls the website and rebuilds the bot's index
func (h *Handler) Refresh(c *gin.Context) {
	bot, err := h.botService.Refresh(c.Request.Context(), middleware.OwnerID(c), c.Param("id"))
	if err != nil {
		if bot == nil {
			response.Error(c, err)
			return
		}
		c.JSON(response.Status(err), botResponse(bot, err))
		return
	}

	c.JSON(http.StatusOK, botResponse(bot, nil))
}

func (h *Handler) Metrics(c *gin.Context) {
	metrics, err := h.botService.Metrics(c.Request.Context(), middleware.OwnerID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, metrics)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.botService.Delete(c.Request.Context(), middleware.OwnerID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "bot deleted"})
}

func botResponse(bot *domain.Bot, err error) *domain.BotCreateResponse {
	resp := &domain.BotCreateResponse{
		BotID:   bot.ID,
		ChatURL: domain.ChatURL(bot.ID),
		Status:  bot.Status,
		Error:   bot.LastError,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
