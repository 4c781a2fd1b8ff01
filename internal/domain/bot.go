package domain

import "time"

// BotStatus is the lifecycle state of a bot
type BotStatus string

// Bot status constants
const (
	BotStatusProcessing BotStatus = "processing"
	BotStatusReady      BotStatus = "ready"
	BotStatusFailed     BotStatus = "failed"
)

// Bot represents a website knowledge base owned by a user
type Bot struct {
	ID           string     `json:"bot_id"`
	OwnerID      string     `json:"owner_id"`
	WebsiteURL   string     `json:"website_url"`
	Status       BotStatus  `json:"status"`
	MessageCount int        `json:"message_count"`
	PageCount    int        `json:"page_count"`
	ChunkCount   int        `json:"chunk_count"`
	LastError    string     `json:"last_error,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsReady reports whether the bot can answer questions
func (b *Bot) IsReady() bool {
	return b.Status == BotStatusReady
}

// CreateBotRequest is the request to create a bot
type CreateBotRequest struct {
	WebsiteURL string `json:"website_url" binding:"required"`
}

// BotCreateResponse is the response for bot creation and refresh
type BotCreateResponse struct {
	BotID   string    `json:"bot_id"`
	ChatURL string    `json:"chat_url"`
	Status  BotStatus `json:"status"`
	Error   string    `json:"error,omitempty"`
}

// BotMetrics is the usage summary of a bot
type BotMetrics struct {
	BotID        string     `json:"bot_id"`
	WebsiteURL   string     `json:"website_url"`
	Status       BotStatus  `json:"status"`
	MessageCount int        `json:"message_count"`
	PageCount    int        `json:"page_count"`
	ChunkCount   int        `json:"chunk_count"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// BotListResponse is the response for listing bots
type BotListResponse struct {
	Bots     []*Bot `json:"bots"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// ChatURL returns the public chat path for a bot
func ChatURL(botID string) string {
	return "/chat/" + botID
}
