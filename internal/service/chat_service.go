package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liliang-cn/sitebot/internal/domain"
	"github.com/liliang-cn/sitebot/internal/embedding"
	"github.com/liliang-cn/sitebot/internal/generation"
	"github.com/liliang-cn/sitebot/internal/repository"
	"github.com/liliang-cn/sitebot/internal/vectorindex"
)

// DefaultTopK is the number of chunks retrieved per question
const DefaultTopK = 3

// ChatOptions tunes retrieval
type ChatOptions struct {
	TopK            int
	MaxContextChars int
}

// ChatService answers questions about a bot's website
type ChatService struct {
	botRepo     *repository.BotRepository
	chatLogRepo *repository.ChatLogRepository
	embedder    embedding.Embedder
	index       vectorindex.Index
	generator   generation.Generator
	opts        ChatOptions
	logger      *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	botRepo *repository.BotRepository,
	chatLogRepo *repository.ChatLogRepository,
	embedder embedding.Embedder,
	index vectorindex.Index,
	generator generation.Generator,
	opts ChatOptions,
	logger *zap.Logger,
) *ChatService {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = DefaultMaxContextChars
	}
	return &ChatService{
		botRepo:     botRepo,
		chatLogRepo: chatLogRepo,
		embedder:    embedder,
		index:       index,
		generator:   generator,
		opts:        opts,
		logger:      logger.Named("chat"),
	}
}

// Ask answers a question from the bot's indexed content. Retrieval failures
// never change the bot's state.
func (s *ChatService) Ask(ctx context.Context, botID string, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	start := time.Now()

	bot, err := s.botRepo.Get(botID)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, domain.ErrNotFound
	}
	if !bot.IsReady() {
		return nil, fmt.Errorf("%w: status is %s", domain.ErrBotNotReady, bot.Status)
	}

	question := strings.TrimSpace(req.Message)
	if question == "" {
		return nil, fmt.Errorf("%w: message is empty", domain.ErrInvalidRequest)
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: %w", embedding.ErrIncomplete)
	}

	matches, err := s.index.Query(ctx, bot.ID, vectors[0], s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if len(matches) == 0 {
		s.logger.Warn("no chunks retrieved", zap.String("bot_id", bot.ID))
		return nil, domain.ErrNoContextRetrieved
	}

	answer, err := s.generator.Generate(ctx, BuildPrompt(question, matches, s.opts.MaxContextChars))
	if err != nil {
		return nil, err
	}

	sources := make([]domain.SourceChunk, len(matches))
	for i, m := range matches {
		sources[i] = domain.SourceChunk{Text: m.Text, PageURL: m.Metadata.PageURL, Score: m.Score}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	s.record(bot.ID, &domain.ChatLog{
		BotID:            bot.ID,
		SessionID:        sessionID,
		UserMessage:      question,
		BotResponse:      answer,
		RetrievedSources: sources,
		ResponseTimeMS:   time.Since(start).Milliseconds(),
	})

	return &domain.ChatResponse{
		SessionID:    sessionID,
		Answer:       answer,
		SourceChunks: sources,
	}, nil
}

// record updates usage metrics. Failures are logged so the answer still
// reaches the caller.
func (s *ChatService) record(botID string, entry *domain.ChatLog) {
	if err := s.botRepo.RecordMessage(botID, time.Now()); err != nil {
		s.logger.Warn("failed to update bot metrics", zap.String("bot_id", botID), zap.Error(err))
	}
	if err := s.chatLogRepo.Create(entry); err != nil {
		s.logger.Warn("failed to store chat log", zap.String("bot_id", botID), zap.Error(err))
	}
	s.logger.Info("question answered",
		zap.String("bot_id", botID),
		zap.Int("sources", len(entry.RetrievedSources)),
		zap.Int64("response_time_ms", entry.ResponseTimeMS))
}
