// Package app wires the configured components into a running SiteBot.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/liliang-cn/sitebot/internal/api"
	"github.com/liliang-cn/sitebot/internal/chunker"
	"github.com/liliang-cn/sitebot/internal/cleaner"
	"github.com/liliang-cn/sitebot/internal/config"
	"github.com/liliang-cn/sitebot/internal/crawler"
	"github.com/liliang-cn/sitebot/internal/embedding"
	"github.com/liliang-cn/sitebot/internal/generation"
	"github.com/liliang-cn/sitebot/internal/lock"
	"github.com/liliang-cn/sitebot/internal/repository"
	"github.com/liliang-cn/sitebot/internal/service"
	"github.com/liliang-cn/sitebot/internal/vectorindex"
)

// App holds every long-lived component
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Fetcher  crawler.Fetcher
	Frontier *crawler.Frontier
	Cleaner  *cleaner.Cleaner
	Chunker  *chunker.Chunker
	Embedder embedding.Embedder

	Bots  *service.BotService
	Chat  *service.ChatService
	Admin *service.AdminService

	db     *repository.DB
	index  vectorindex.Index
	locker lock.Locker
}

// NewLogger builds a zap logger from the log section
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

// New opens storage and backends and builds the services. A generation
// backend that cannot be created is logged and replaced by one that always
// fails, so ingestion keeps working without it. Every other failure is fatal.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.db, err = repository.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	botRepo := repository.NewBotRepository(a.db)
	chatLogRepo := repository.NewChatLogRepository(a.db)

	a.index, err = vectorindex.New(ctx, cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	a.locker, err = lock.New(ctx, cfg.Lock, logger)
	if err != nil {
		return nil, fmt.Errorf("create locker: %w", err)
	}

	embedder, err := embedding.New(ctx, cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	a.Embedder = embedder

	generator, genErr := generation.New(ctx, cfg.Generation)
	if genErr != nil {
		logger.Warn("generation backend unavailable, chat requests will fail", zap.Error(genErr))
		generator = generation.Unavailable{Reason: genErr}
	}

	a.Cleaner, err = cleaner.New()
	if err != nil {
		return nil, err
	}
	a.Chunker = chunker.New(cfg.Chunker.MaxWords, cfg.Chunker.OverlapWords)

	a.Fetcher = crawler.New(cfg.Crawler)
	a.Frontier = crawler.NewFrontier(a.Fetcher, crawler.Options{
		MaxPages:      cfg.Crawler.MaxPages,
		MinTextLength: cfg.Crawler.MinTextLength,
		Workers:       cfg.Crawler.Workers,
		Logger:        logger,
	})

	pipeline := service.NewPipeline(a.Frontier, a.Cleaner, a.Chunker, a.Embedder, a.index, logger)
	a.Bots = service.NewBotService(botRepo, pipeline, a.index, a.locker, cfg.Pipeline.Timeout, logger)
	a.Chat = service.NewChatService(botRepo, chatLogRepo, a.Embedder, a.index, generator, service.ChatOptions{
		TopK:            cfg.Retrieval.TopK,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
	}, logger)
	a.Admin = service.NewAdminService(botRepo, chatLogRepo, a.Bots)

	logger.Info("sitebot initialized",
		zap.String("fetcher", cfg.Crawler.Fetcher),
		zap.String("embedder", a.Embedder.Name()),
		zap.String("generator", generator.Name()),
		zap.String("index", cfg.Index.Backend),
		zap.String("lock", cfg.Lock.Backend))
	return a, nil
}

// Router returns the HTTP API
func (a *App) Router() *gin.Engine {
	rpm := 0
	if a.Config.RateLimit.Enabled {
		rpm = a.Config.RateLimit.RequestsPerMinute
	}
	return api.SetupRouter(a.Bots, a.Chat, a.Admin, api.RouterConfig{
		APIKey:            a.Config.Admin.APIKey,
		AllowOrigins:      a.Config.Server.AllowOrigins,
		RequestsPerMinute: rpm,
		Burst:             a.Config.RateLimit.Burst,
	})
}

// Close releases the index, the fetcher, the locker and the database
func (a *App) Close() error {
	var errs []error
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if c, ok := a.Fetcher.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.locker != nil {
		errs = append(errs, a.locker.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
