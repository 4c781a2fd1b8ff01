package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/liliang-cn/sitebot/internal/crawler"
	"github.com/liliang-cn/sitebot/internal/domain"
	"github.com/liliang-cn/sitebot/internal/lock"
	"github.com/liliang-cn/sitebot/internal/repository"
	"github.com/liliang-cn/sitebot/internal/vectorindex"
)

// DefaultPipelineTimeout bounds one ingestion when no timeout is configured
const DefaultPipelineTimeout = 10 * time.Minute

// BotService manages the bot lifecycle: processing, then ready or failed.
type BotService struct {
	botRepo  *repository.BotRepository
	pipeline *Pipeline
	index    vectorindex.Index
	locker   lock.Locker
	timeout  time.Duration
	logger   *zap.Logger

	creates singleflight.Group
}

// NewBotService creates a new bot service
func NewBotService(
	botRepo *repository.BotRepository,
	pipeline *Pipeline,
	index vectorindex.Index,
	locker lock.Locker,
	timeout time.Duration,
	logger *zap.Logger,
) *BotService {
	if timeout <= 0 {
		timeout = DefaultPipelineTimeout
	}
	return &BotService{
		botRepo:  botRepo,
		pipeline: pipeline,
		index:    index,
		locker:   locker,
		timeout:  timeout,
		logger:   logger.Named("bots"),
	}
}

type createResult struct {
	bot     *domain.Bot
	created bool
}

// Create returns the owner's bot for websiteURL, building it first when it
// does not exist yet. created reports whether this call built the bot. When
// ingestion fails the failed bot is returned together with the error. A build
// that has started runs to completion even if ctx is cancelled.
func (s *BotService) Create(ctx context.Context, ownerID, websiteURL string) (*domain.Bot, bool, error) {
	if ownerID == "" {
		return nil, false, fmt.Errorf("%w: owner is required", domain.ErrInvalidRequest)
	}
	normalized, err := crawler.Normalize(websiteURL)
	if err != nil {
		return nil, false, err
	}

	// Coalesced callers share this build, so it must not die with the first
	// caller's request. runLocked still bounds it by the pipeline timeout.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.creates.Do(ownerID+"|"+normalized, func() (any, error) {
		bot, created, err := s.create(shared, ownerID, normalized)
		return createResult{bot: bot, created: created}, err
	})
	res, _ := v.(createResult)
	return res.bot, res.created, err
}

func (s *BotService) create(ctx context.Context, ownerID, websiteURL string) (*domain.Bot, bool, error) {
	existing, err := s.botRepo.FindByOwnerURL(ownerID, websiteURL)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		s.logger.Info("reusing existing bot",
			zap.String("bot_id", existing.ID),
			zap.String("owner_id", ownerID),
			zap.String("url", websiteURL))
		return existing, false, nil
	}

	bot := &domain.Bot{OwnerID: ownerID, WebsiteURL: websiteURL, Status: domain.BotStatusProcessing}
	if err := s.botRepo.Create(bot); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, false, err
		}
		// Another process created it between our lookup and insert.
		winner, err := s.botRepo.FindByOwnerURL(ownerID, websiteURL)
		if err != nil {
			return nil, false, err
		}
		if winner == nil {
			return nil, false, fmt.Errorf("bot for %s vanished after duplicate insert", websiteURL)
		}
		return winner, false, nil
	}
	s.logger.Info("bot created",
		zap.String("bot_id", bot.ID),
		zap.String("owner_id", ownerID),
		zap.String("url", websiteURL))

	return bot, true, s.ingest(ctx, bot, false)
}

// Refresh rebuilds a bot from scratch. Any state may be refreshed.
func (s *BotService) Refresh(ctx context.Context, ownerID, botID string) (*domain.Bot, error) {
	bot, err := s.owned(ownerID, botID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("refreshing bot", zap.String("bot_id", bot.ID), zap.String("url", bot.WebsiteURL))
	return bot, s.ingest(ctx, bot, true)
}

// ingest runs the pipeline under the bot lock and records the outcome. The
// failed transition happens here and nowhere else.
func (s *BotService) ingest(ctx context.Context, bot *domain.Bot, reset bool) error {
	result, err := s.runLocked(ctx, bot, reset)
	if err == nil {
		if markErr := s.botRepo.MarkReady(bot.ID, result.Pages, result.Chunks); markErr != nil {
			err = fmt.Errorf("mark ready: %w", markErr)
		}
	}
	if err != nil {
		bot.Status = domain.BotStatusFailed
		bot.LastError = err.Error()
		if markErr := s.botRepo.MarkFailed(bot.ID, bot.LastError); markErr != nil {
			s.logger.Error("failed to mark bot failed", zap.String("bot_id", bot.ID), zap.Error(markErr))
		}
		s.logger.Warn("bot ingestion failed", zap.String("bot_id", bot.ID), zap.Error(err))
		return err
	}

	bot.Status = domain.BotStatusReady
	bot.PageCount = result.Pages
	bot.ChunkCount = result.Chunks
	bot.LastError = ""
	s.logger.Info("bot ready",
		zap.String("bot_id", bot.ID),
		zap.Int("pages", result.Pages),
		zap.Int("chunks", result.Chunks))
	return nil
}

func (s *BotService) runLocked(ctx context.Context, bot *domain.Bot, reset bool) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	unlock, err := s.locker.Lock(ctx, bot.ID)
	if err != nil {
		return Result{}, fmt.Errorf("lock bot: %w", err)
	}
	defer unlock()

	if reset {
		if err := s.botRepo.MarkProcessing(bot.ID); err != nil {
			return Result{}, err
		}
		bot.Status = domain.BotStatusProcessing
		bot.LastError = ""
		if err := s.index.Reset(ctx, bot.ID); err != nil {
			return Result{}, fmt.Errorf("reset index: %w", err)
		}
	}

	return s.pipeline.Run(ctx, bot)
}

// Get retrieves a bot by ID
func (s *BotService) Get(ctx context.Context, botID string) (*domain.Bot, error) {
	bot, err := s.botRepo.Get(botID)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, domain.ErrNotFound
	}
	return bot, nil
}

// ListByOwner lists the bots of one owner
func (s *BotService) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Bot, error) {
	bots, err := s.botRepo.ListByOwner(ownerID)
	if err != nil {
		return nil, err
	}
	if bots == nil {
		bots = []*domain.Bot{}
	}
	return bots, nil
}

// Metrics returns the usage summary of an owned bot
func (s *BotService) Metrics(ctx context.Context, ownerID, botID string) (*domain.BotMetrics, error) {
	bot, err := s.owned(ownerID, botID)
	if err != nil {
		return nil, err
	}
	return &domain.BotMetrics{
		BotID:        bot.ID,
		WebsiteURL:   bot.WebsiteURL,
		Status:       bot.Status,
		MessageCount: bot.MessageCount,
		PageCount:    bot.PageCount,
		ChunkCount:   bot.ChunkCount,
		LastUsedAt:   bot.LastUsedAt,
		CreatedAt:    bot.CreatedAt,
	}, nil
}

// Delete removes a bot, its index partition and its chat logs. An empty
// ownerID skips the ownership check.
func (s *BotService) Delete(ctx context.Context, ownerID, botID string) error {
	bot, err := s.owned(ownerID, botID)
	if err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, bot.ID)
	if err != nil {
		return fmt.Errorf("lock bot: %w", err)
	}
	defer unlock()

	if err := s.index.Reset(ctx, bot.ID); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	if err := s.botRepo.Delete(bot.ID); err != nil {
		return err
	}
	s.logger.Info("bot deleted", zap.String("bot_id", bot.ID))
	return nil
}

// owned loads a bot and checks that ownerID owns it. An empty ownerID is
// the admin path and skips the check.
func (s *BotService) owned(ownerID, botID string) (*domain.Bot, error) {
	bot, err := s.botRepo.Get(botID)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, domain.ErrNotFound
	}
	if ownerID != "" && bot.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return bot, nil
}
