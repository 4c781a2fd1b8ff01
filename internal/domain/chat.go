package domain

import "time"

// ChatLog records one answered question
type ChatLog struct {
	ID               string        `json:"id"`
	BotID            string        `json:"bot_id"`
	SessionID        string        `json:"session_id,omitempty"`
	UserMessage      string        `json:"user_message"`
	BotResponse      string        `json:"bot_response"`
	RetrievedSources []SourceChunk `json:"retrieved_sources"`
	ResponseTimeMS   int64         `json:"response_time_ms"`
	CreatedAt        time.Time     `json:"created_at"`
}

// SourceChunk represents a retrieved chunk used as citation
type SourceChunk struct {
	Text    string  `json:"text"`
	PageURL string  `json:"page_url"`
	Score   float64 `json:"score"`
}

// ChatRequest is the request to ask a bot a question
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message" binding:"required"`
}

// ChatResponse is the answer to a chat request
type ChatResponse struct {
	SessionID    string        `json:"session_id,omitempty"`
	Answer       string        `json:"answer"`
	SourceChunks []SourceChunk `json:"source_chunks"`
}

// Stats represents system statistics
type Stats struct {
	TotalBots     int               `json:"total_bots"`
	BotsByStatus  map[BotStatus]int `json:"bots_by_status"`
	TotalMessages int               `json:"total_messages"`
	TotalChats    int               `json:"total_chats"`
}
