package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/liliang-cn/sitebot/internal/domain"
)

// ChatLogRepository handles chat log persistence
type ChatLogRepository struct {
	db *DB
}

// NewChatLogRepository creates a new chat log repository
func NewChatLogRepository(db *DB) *ChatLogRepository {
	return &ChatLogRepository{db: db}
}

// Create appends a chat log
func (r *ChatLogRepository) Create(log *domain.ChatLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	sourcesJSON, err := json.Marshal(log.RetrievedSources)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO chat_logs (id, bot_id, session_id, user_message, bot_response, retrieved_sources, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.BotID, log.SessionID, log.UserMessage, log.BotResponse,
		string(sourcesJSON), log.ResponseTimeMS, log.CreatedAt)

	return err
}

// ListByBot retrieves the most recent chat logs of a bot, newest first
func (r *ChatLogRepository) ListByBot(botID string, limit int) ([]*domain.ChatLog, error) {
	rows, err := r.db.Query(`
		SELECT id, bot_id, session_id, user_message, bot_response, retrieved_sources, response_time_ms, created_at
		FROM chat_logs WHERE bot_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, botID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.ChatLog
	for rows.Next() {
		log := &domain.ChatLog{}
		var sessionID, sourcesJSON sql.NullString

		if err := rows.Scan(&log.ID, &log.BotID, &sessionID, &log.UserMessage, &log.BotResponse,
			&sourcesJSON, &log.ResponseTimeMS, &log.CreatedAt); err != nil {
			return nil, err
		}

		log.SessionID = sessionID.String
		if sourcesJSON.Valid && sourcesJSON.String != "" {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &log.RetrievedSources); err != nil {
				return nil, fmt.Errorf("decode sources of chat log %s: %w", log.ID, err)
			}
		}
		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// Count returns the total number of chat logs
func (r *ChatLogRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM chat_logs`).Scan(&count)
	return count, err
}
