package api

import (
	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/sitebot/internal/api/admin"
	"github.com/liliang-cn/sitebot/internal/api/bots"
	"github.com/liliang-cn/sitebot/internal/api/chat"
	"github.com/liliang-cn/sitebot/internal/api/middleware"
	"github.com/liliang-cn/sitebot/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string

	// Chat rate limit per bot; disabled when RequestsPerMinute is zero
	RequestsPerMinute int
	Burst             int
}

// SetupRouter sets up the Gin router
func SetupRouter(
	botService *service.BotService,
	chatService *service.ChatService,
	adminService *service.AdminService,
	cfg RouterConfig,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(middleware.CORS(cfg.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Owner API (owner identity comes from the gateway)
	botGroup := r.Group("/api/bots")
	botGroup.Use(middleware.Owner())
	bots.NewHandler(botService).RegisterRoutes(botGroup)

	// Public chat API (based on bot_id)
	var limits []gin.HandlerFunc
	if cfg.RequestsPerMinute > 0 {
		limits = append(limits, middleware.RateLimit("bot_id", cfg.RequestsPerMinute, cfg.Burst))
	}
	chat.NewHandler(chatService).RegisterRoutes(r.Group("/api/chat"), limits...)

	// Admin API (requires API key)
	adminGroup := r.Group("/api/admin")
	adminGroup.Use(middleware.Auth(cfg.APIKey))
	admin.NewHandler(adminService).RegisterRoutes(adminGroup)

	return r
}
