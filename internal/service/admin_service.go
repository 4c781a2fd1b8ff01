package service

import (
	"context"

	"github.com/liliang-cn/sitebot/internal/domain"
	"github.com/liliang-cn/sitebot/internal/repository"
)

// AdminService handles admin operations
type AdminService struct {
	botRepo     *repository.BotRepository
	chatLogRepo *repository.ChatLogRepository
	bots        *BotService
}

// NewAdminService creates a new admin service
func NewAdminService(
	botRepo *repository.BotRepository,
	chatLogRepo *repository.ChatLogRepository,
	bots *BotService,
) *AdminService {
	return &AdminService{
		botRepo:     botRepo,
		chatLogRepo: chatLogRepo,
		bots:        bots,
	}
}

// ListBots lists bots of every owner, or of one owner when ownerID is set
func (s *AdminService) ListBots(ctx context.Context, ownerID string, page, pageSize int) (*domain.BotListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	bots, total, err := s.botRepo.List(ownerID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	if bots == nil {
		bots = []*domain.Bot{}
	}

	return &domain.BotListResponse{
		Bots:     bots,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// ListChatLogs returns the most recent chat logs of a bot, newest first.
// limit defaults to 50 and is capped at 500.
func (s *AdminService) ListChatLogs(ctx context.Context, botID string, limit int) ([]*domain.ChatLog, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	bot, err := s.botRepo.Get(botID)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, domain.ErrNotFound
	}

	logs, err := s.chatLogRepo.ListByBot(botID, limit)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []*domain.ChatLog{}
	}
	return logs, nil
}

// DeleteBot deletes any bot regardless of owner
func (s *AdminService) DeleteBot(ctx context.Context, botID string) error {
	return s.bots.Delete(ctx, "", botID)
}

// Stats

func (s *AdminService) GetStats(ctx context.Context) (*domain.Stats, error) {
	byStatus, err := s.botRepo.CountByStatus()
	if err != nil {
		return nil, err
	}
	messages, err := s.botRepo.TotalMessages()
	if err != nil {
		return nil, err
	}
	chats, err := s.chatLogRepo.Count()
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range byStatus {
		total += n
	}

	return &domain.Stats{
		TotalBots:     total,
		BotsByStatus:  byStatus,
		TotalMessages: messages,
		TotalChats:    chats,
	}, nil
}
