package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/sitebot/internal/api/response"
	"github.com/liliang-cn/sitebot/internal/domain"
	"github.com/liliang-cn/sitebot/internal/service"
)

// Handler handles public chat requests
type Handler struct {
	chatService *service.ChatService
}

// NewHandler creates a new chat handler
func NewHandler(chatService *service.ChatService) *Handler {
	return &Handler{chatService: chatService}
}

// RegisterRoutes registers chat routes. Extra handlers run before Chat,
// typically a per-bot rate limiter.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, extra ...gin.HandlerFunc) {
	r.POST("/:bot_id", append(extra, h.Chat)...)
}

// Chat answers one question from the bot's knowledge base
func (h *Handler) Chat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.chatService.Ask(c.Request.Context(), c.Param("bot_id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
