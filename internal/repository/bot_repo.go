package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/liliang-cn/sitebot/internal/domain"
)

const botColumns = `id, owner_id, website_url, status, message_count, page_count, chunk_count,
	last_error, last_used_at, created_at, updated_at`

// BotRepository handles bot persistence
type BotRepository struct {
	db *DB
}

// NewBotRepository creates a new bot repository
func NewBotRepository(db *DB) *BotRepository {
	return &BotRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(s rowScanner) (*domain.Bot, error) {
	bot := &domain.Bot{}
	var lastUsed sql.NullTime

	if err := s.Scan(&bot.ID, &bot.OwnerID, &bot.WebsiteURL, &bot.Status, &bot.MessageCount,
		&bot.PageCount, &bot.ChunkCount, &bot.LastError, &lastUsed, &bot.CreatedAt, &bot.UpdatedAt); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		bot.LastUsedAt = &t
	}
	return bot, nil
}

// Create creates a new bot. A second bot for the same owner and URL fails
// with ErrDuplicate.
func (r *BotRepository) Create(bot *domain.Bot) error {
	if bot.ID == "" {
		bot.ID = uuid.New().String()
	}
	if bot.Status == "" {
		bot.Status = domain.BotStatusProcessing
	}
	now := time.Now().UTC()
	bot.CreatedAt = now
	bot.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO bots (id, owner_id, website_url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, bot.ID, bot.OwnerID, bot.WebsiteURL, bot.Status, bot.CreatedAt, bot.UpdatedAt)

	if isUniqueViolation(err) {
		return fmt.Errorf("%w: bot for %s already exists", ErrDuplicate, bot.WebsiteURL)
	}
	return err
}

// Get retrieves a bot by ID
func (r *BotRepository) Get(id string) (*domain.Bot, error) {
	bot, err := scanBot(r.db.QueryRow(`SELECT `+botColumns+` FROM bots WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return bot, err
}

// FindByOwnerURL retrieves the bot an owner created for a website
func (r *BotRepository) FindByOwnerURL(ownerID, websiteURL string) (*domain.Bot, error) {
	bot, err := scanBot(r.db.QueryRow(`
		SELECT `+botColumns+` FROM bots WHERE owner_id = ? AND website_url = ?
	`, ownerID, websiteURL))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return bot, err
}

// ListByOwner retrieves all bots of an owner, newest first
func (r *BotRepository) ListByOwner(ownerID string) ([]*domain.Bot, error) {
	return r.query(`SELECT `+botColumns+` FROM bots WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
}

// List retrieves bots with pagination. An empty ownerID lists every owner.
func (r *BotRepository) List(ownerID string, offset, limit int) ([]*domain.Bot, int, error) {
	where, args := "", []any{}
	if ownerID != "" {
		where, args = "WHERE owner_id = ?", append(args, ownerID)
	}

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM bots `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	bots, err := r.query(`SELECT `+botColumns+` FROM bots `+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return bots, total, nil
}

func (r *BotRepository) query(q string, args ...any) ([]*domain.Bot, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bots []*domain.Bot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}

	return bots, rows.Err()
}

// MarkProcessing moves a bot back to processing and clears its last error
func (r *BotRepository) MarkProcessing(id string) error {
	return r.update(id, `status = ?, last_error = ''`, domain.BotStatusProcessing)
}

// MarkReady records a successful ingestion
func (r *BotRepository) MarkReady(id string, pages, chunks int) error {
	return r.update(id, `status = ?, page_count = ?, chunk_count = ?, last_error = ''`,
		domain.BotStatusReady, pages, chunks)
}

// MarkFailed records a failed ingestion with its cause
func (r *BotRepository) MarkFailed(id string, cause string) error {
	return r.update(id, `status = ?, last_error = ?`, domain.BotStatusFailed, cause)
}

// RecordMessage increments the message count and stamps last_used_at
func (r *BotRepository) RecordMessage(id string, at time.Time) error {
	return r.update(id, `message_count = message_count + 1, last_used_at = ?`, at.UTC())
}

func (r *BotRepository) update(id, set string, args ...any) error {
	args = append(args, time.Now().UTC(), id)
	result, err := r.db.Exec(`UPDATE bots SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: bot %s", domain.ErrNotFound, id)
	}

	return nil
}

// Delete deletes a bot and, by cascade, its chat logs
func (r *BotRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM bots WHERE id = ?`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: bot %s", domain.ErrNotFound, id)
	}

	return nil
}

// CountByStatus returns the number of bots per status
func (r *BotRepository) CountByStatus() (map[domain.BotStatus]int, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM bots GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.BotStatus]int)
	for rows.Next() {
		var status domain.BotStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

// TotalMessages returns the sum of message counts over all bots
func (r *BotRepository) TotalMessages() (int, error) {
	var total int
	err := r.db.QueryRow(`SELECT COALESCE(SUM(message_count), 0) FROM bots`).Scan(&total)
	return total, err
}
