package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/liliang-cn/sitebot/internal/chunker"
	"github.com/liliang-cn/sitebot/internal/cleaner"
	"github.com/liliang-cn/sitebot/internal/domain"
	"github.com/liliang-cn/sitebot/internal/embedding"
	"github.com/liliang-cn/sitebot/internal/vectorindex"
)

// PageSource discovers the pages of a website
type PageSource interface {
	Crawl(ctx context.Context, startURL string) ([]domain.Page, error)
}

// Result summarizes one ingestion run
type Result struct {
	Pages  int // pages that contributed at least one chunk
	Chunks int
}

// Pipeline turns a website into indexed chunks: crawl, clean, chunk, embed, insert.
type Pipeline struct {
	source   PageSource
	cleaner  *cleaner.Cleaner
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	index    vectorindex.Index
	logger   *zap.Logger
}

// NewPipeline creates a new ingestion pipeline
func NewPipeline(
	source PageSource,
	cl *cleaner.Cleaner,
	ch *chunker.Chunker,
	embedder embedding.Embedder,
	index vectorindex.Index,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		source:   source,
		cleaner:  cl,
		chunker:  ch,
		embedder: embedder,
		index:    index,
		logger:   logger.Named("pipeline"),
	}
}

// Run ingests the bot's website into the bot's index partition. Nothing is
// written to the index unless every stage before the insert succeeded.
func (p *Pipeline) Run(ctx context.Context, bot *domain.Bot) (Result, error) {
	pages, err := p.source.Crawl(ctx, bot.WebsiteURL)
	if err != nil {
		return Result{}, fmt.Errorf("crawl %s: %w", bot.WebsiteURL, err)
	}
	if len(pages) == 0 {
		return Result{}, domain.ErrCrawlEmpty
	}
	p.logger.Info("crawled website",
		zap.String("bot_id", bot.ID),
		zap.String("url", bot.WebsiteURL),
		zap.Int("pages", len(pages)))

	var (
		batch           vectorindex.Batch
		pagesWithChunks int
	)
	for _, page := range pages {
		chunks := p.chunker.Split(p.cleaner.Clean(page.Text))
		if len(chunks) == 0 {
			p.logger.Warn("no chunks created for page", zap.String("bot_id", bot.ID), zap.String("page_url", page.URL))
			continue
		}

		vectors, err := p.embedder.Embed(ctx, chunks)
		if errors.Is(err, embedding.ErrIncomplete) {
			p.logger.Warn("dropping page with incomplete embeddings",
				zap.String("bot_id", bot.ID),
				zap.String("page_url", page.URL),
				zap.Error(err))
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("embed %s: %w", page.URL, err)
		}

		for i, text := range chunks {
			c := domain.Chunk{BotID: bot.ID, PageURL: page.URL, Index: batch.Len(), Text: text}
			batch.IDs = append(batch.IDs, c.RecordID())
			batch.Texts = append(batch.Texts, c.Text)
			batch.Vectors = append(batch.Vectors, vectors[i])
			batch.Metadata = append(batch.Metadata, vectorindex.Metadata{
				BotID:      bot.ID,
				PageURL:    c.PageURL,
				ChunkIndex: c.Index,
			})
		}
		pagesWithChunks++
	}

	if batch.Len() == 0 {
		return Result{}, domain.ErrChunkingEmpty
	}

	if err := p.index.InsertBatch(ctx, bot.ID, batch); err != nil {
		return Result{}, fmt.Errorf("store chunks: %w", err)
	}
	p.logger.Info("stored chunks",
		zap.String("bot_id", bot.ID),
		zap.Int("pages", pagesWithChunks),
		zap.Int("chunks", batch.Len()))

	return Result{Pages: pagesWithChunks, Chunks: batch.Len()}, nil
}
