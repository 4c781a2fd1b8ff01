package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/liliang-cn/sitebot/internal/chunker"
	"github.com/liliang-cn/sitebot/internal/cleaner"
	"github.com/liliang-cn/sitebot/internal/domain"
	"github.com/liliang-cn/sitebot/internal/embedding"
	"github.com/liliang-cn/sitebot/internal/lock"
	"github.com/liliang-cn/sitebot/internal/repository"
	"github.com/liliang-cn/sitebot/internal/vectorindex"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource serves a scripted crawl result
type fakeSource struct {
	calls   atomic.Int32
	crawlFn func(ctx context.Context, url string) ([]domain.Page, error)
}

func (f *fakeSource) Crawl(ctx context.Context, url string) ([]domain.Page, error) {
	f.calls.Add(1)
	return f.crawlFn(ctx, url)
}

func pagesOf(pages ...domain.Page) func(context.Context, string) ([]domain.Page, error) {
	return func(context.Context, string) ([]domain.Page, error) { return pages, nil }
}

// countingEmbedder wraps the hash embedder and can fail on chosen texts
type countingEmbedder struct {
	calls  atomic.Int32
	inner  *embedding.HashEmbedder
	failOn func(texts []string) error
}

func (e *countingEmbedder) Name() string { return "counting" }

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.failOn != nil {
		if err := e.failOn(texts); err != nil {
			return nil, err
		}
	}
	return e.inner.Embed(ctx, texts)
}

// fakeGenerator records prompts and returns a scripted answer
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.answer, g.err
}

type harness struct {
	db        *repository.DB
	source    *fakeSource
	embedder  *countingEmbedder
	generator *fakeGenerator
	index     *vectorindex.MemoryIndex
	botRepo   *repository.BotRepository
	logRepo   *repository.ChatLogRepository
	chunker   *chunker.Chunker
	bots      *BotService
	chat      *ChatService
	admin     *AdminService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "sitebot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t)
	h := &harness{
		db:        db,
		source:    &fakeSource{crawlFn: pagesOf()},
		embedder:  &countingEmbedder{inner: embedding.NewHashEmbedder(64)},
		generator: &fakeGenerator{answer: "Acme sells anvils."},
		index:     vectorindex.NewMemoryIndex(vectorindex.Cosine),
		botRepo:   repository.NewBotRepository(db),
		logRepo:   repository.NewChatLogRepository(db),
		chunker:   chunker.New(20, 5),
	}
	cl, err := cleaner.New()
	require.NoError(t, err)

	pipeline := NewPipeline(h.source, cl, h.chunker, h.embedder, h.index, logger)
	h.bots = NewBotService(h.botRepo, pipeline, h.index, lock.NewLocalLocker(), time.Minute, logger)
	h.chat = NewChatService(h.botRepo, h.logRepo, h.embedder, h.index, h.generator, ChatOptions{TopK: 3}, logger)
	h.admin = NewAdminService(h.botRepo, h.logRepo, h.bots)
	return h
}

// article returns n distinct sentences long enough to survive cleaning
func article(topic string, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "The %s handbook explains detail number %d for careful readers. ", topic, i)
	}
	return sb.String()
}

func (h *harness) expectedChunks(pages ...domain.Page) int {
	n := 0
	for _, p := range pages {
		n += len(h.chunker.Split(cleaner.Clean(p.Text)))
	}
	return n
}

func (h *harness) readyBot(t *testing.T, owner string) *domain.Bot {
	t.Helper()
	h.source.crawlFn = pagesOf(
		domain.Page{URL: "https://acme.test", Text: article("anvil", 6)},
		domain.Page{URL: "https://acme.test/about", Text: article("rocket", 4)},
	)
	bot, _, err := h.bots.Create(context.Background(), owner, "https://acme.test")
	require.NoError(t, err)
	require.Equal(t, domain.BotStatusReady, bot.Status)
	return bot
}

func TestCreateBuildsReadyBot(t *testing.T) {
	h := newHarness(t)
	pages := []domain.Page{
		{URL: "https://acme.test", Text: article("anvil", 6)},
		{URL: "https://acme.test/about", Text: article("rocket", 4) + " Contact us at help@acme.test."},
	}
	h.source.crawlFn = pagesOf(pages...)

	bot, created, err := h.bots.Create(context.Background(), "alice", "HTTPS://ACME.test/")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "https://acme.test", bot.WebsiteURL)
	assert.Equal(t, domain.BotStatusReady, bot.Status)

	want := h.expectedChunks(pages...)
	require.Greater(t, want, 2)
	assert.Equal(t, want, bot.ChunkCount)
	assert.Equal(t, 2, bot.PageCount)
	assert.Equal(t, want, h.index.Len(bot.ID))

	stored, err := h.botRepo.Get(bot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BotStatusReady, stored.Status)
	assert.Equal(t, want, stored.ChunkCount)

	// Record ids and chunk indices are contiguous from zero across pages.
	vec, _ := h.embedder.inner.Embed(context.Background(), []string{"anvil"})
	matches, err := h.index.Query(context.Background(), bot.ID, vec[0], want)
	require.NoError(t, err)
	seen := make(map[int]bool)
	for _, m := range matches {
		assert.Equal(t, fmt.Sprintf("%s_%d", bot.ID, m.Metadata.ChunkIndex), m.ID)
		assert.Equal(t, bot.ID, m.Metadata.BotID)
		seen[m.Metadata.ChunkIndex] = true
	}
	for i := 0; i < want; i++ {
		assert.True(t, seen[i], "chunk index %d missing", i)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	h := newHarness(t)
	first := h.readyBot(t, "alice")

	again, created, err := h.bots.Create(context.Background(), "alice", "https://acme.test/")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, int32(1), h.source.calls.Load())

	other, created, err := h.bots.Create(context.Background(), "bob", "https://acme.test")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestConcurrentCreatesCoalesce(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.source.crawlFn = func(context.Context, string) ([]domain.Page, error) {
		<-release
		return []domain.Page{{URL: "https://acme.test", Text: article("anvil", 4)}}, nil
	}

	const callers = 5
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bot, _, err := h.bots.Create(context.Background(), "alice", "https://acme.test")
			if assert.NoError(t, err) {
				ids[i] = bot.ID
			}
		}()
	}

	require.Eventually(t, func() bool { return h.source.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), h.source.calls.Load())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	bots, err := h.botRepo.ListByOwner("alice")
	require.NoError(t, err)
	assert.Len(t, bots, 1)
}

func TestCreateRejectsInvalidURL(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.bots.Create(context.Background(), "alice", "ftp://acme.test")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Zero(t, h.source.calls.Load())
}

func TestCreateEmptyCrawlFails(t *testing.T) {
	h := newHarness(t)

	bot, created, err := h.bots.Create(context.Background(), "alice", "https://empty.test")
	assert.ErrorIs(t, err, domain.ErrCrawlEmpty)
	assert.True(t, created)
	require.NotNil(t, bot)
	assert.Equal(t, domain.BotStatusFailed, bot.Status)
	assert.Equal(t, "no pages found or all pages empty", bot.LastError)
	assert.Zero(t, h.index.Len(bot.ID))

	stored, _ := h.botRepo.Get(bot.ID)
	assert.Equal(t, domain.BotStatusFailed, stored.Status)

	// A failed bot is returned as is; refresh is the way to retry.
	again, created, err := h.bots.Create(context.Background(), "alice", "https://empty.test")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, bot.ID, again.ID)
	assert.Equal(t, int32(1), h.source.calls.Load())
}

func TestCreateWithoutChunksFails(t *testing.T) {
	h := newHarness(t)
	h.source.crawlFn = pagesOf(domain.Page{URL: "https://acme.test", Text: "Home. Menu. Login. © 2024 Acme. All rights reserved."})

	bot, _, err := h.bots.Create(context.Background(), "alice", "https://acme.test")
	assert.ErrorIs(t, err, domain.ErrChunkingEmpty)
	assert.Equal(t, domain.BotStatusFailed, bot.Status)
	assert.Equal(t, "no chunks generated", bot.LastError)
	assert.Zero(t, h.index.Len(bot.ID))
}

func TestEmbeddingOutageAbortsIngestion(t *testing.T) {
	h := newHarness(t)
	h.source.crawlFn = pagesOf(
		domain.Page{URL: "https://acme.test", Text: article("anvil", 4)},
		domain.Page{URL: "https://acme.test/b", Text: article("rocket", 4)},
	)
	h.embedder.failOn = func(texts []string) error {
		if strings.Contains(texts[0], "rocket") {
			return fmt.Errorf("%w: backend down", domain.ErrEmbeddingUnavailable)
		}
		return nil
	}

	bot, _, err := h.bots.Create(context.Background(), "alice", "https://acme.test")
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, domain.BotStatusFailed, bot.Status)
	assert.Zero(t, h.index.Len(bot.ID), "nothing is written when ingestion aborts")
}

func TestIncompleteEmbeddingDropsPage(t *testing.T) {
	h := newHarness(t)
	good := domain.Page{URL: "https://acme.test/b", Text: article("rocket", 4)}
	h.source.crawlFn = pagesOf(
		domain.Page{URL: "https://acme.test", Text: article("anvil", 4)},
		good,
	)
	h.embedder.failOn = func(texts []string) error {
		if strings.Contains(texts[0], "anvil") {
			return fmt.Errorf("%w: short response", embedding.ErrIncomplete)
		}
		return nil
	}

	bot, _, err := h.bots.Create(context.Background(), "alice", "https://acme.test")
	require.NoError(t, err)
	assert.Equal(t, 1, bot.PageCount)
	assert.Equal(t, h.expectedChunks(good), bot.ChunkCount)

	vec, _ := h.embedder.inner.Embed(context.Background(), []string{"rocket"})
	matches, err := h.index.Query(context.Background(), bot.ID, vec[0], 100)
	require.NoError(t, err)
	for _, m := range matches {
		assert.Equal(t, good.URL, m.Metadata.PageURL)
		assert.Less(t, m.Metadata.ChunkIndex, bot.ChunkCount)
	}
}

func TestPipelineDeadline(t *testing.T) {
	h := newHarness(t)
	h.bots.timeout = 20 * time.Millisecond
	h.source.crawlFn = func(ctx context.Context, _ string) ([]domain.Page, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	bot, _, err := h.bots.Create(context.Background(), "alice", "https://slow.test")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.BotStatusFailed, bot.Status)
}

func TestMarkReadyFailureMarksBotFailed(t *testing.T) {
	h := newHarness(t)
	_, err := h.db.Exec(`
		CREATE TRIGGER block_ready BEFORE UPDATE ON bots
		WHEN NEW.status = 'ready'
		BEGIN SELECT RAISE(ABORT, 'ready blocked'); END
	`)
	require.NoError(t, err)
	h.source.crawlFn = pagesOf(domain.Page{URL: "https://acme.test", Text: article("anvil", 4)})

	bot, _, err := h.bots.Create(context.Background(), "alice", "https://acme.test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ready blocked")
	assert.Equal(t, domain.BotStatusFailed, bot.Status)

	stored, err := h.botRepo.Get(bot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BotStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "mark ready")
}

func TestCreateOutlivesCallerCancellation(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	release := make(chan struct{})
	h.source.crawlFn = func(ctx context.Context, _ string) ([]domain.Page, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []domain.Page{{URL: "https://acme.test", Text: article("anvil", 4)}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, _, err := h.bots.Create(ctx, "alice", "https://acme.test")
		first <- err
	}()
	<-started
	cancel()
	close(release)
	require.NoError(t, <-first)

	bot, created, err := h.bots.Create(context.Background(), "alice", "https://acme.test")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, domain.BotStatusReady, bot.Status)
}

func TestRefreshRebuildsIndex(t *testing.T) {
	h := newHarness(t)
	bot := h.readyBot(t, "alice")
	before := h.index.Len(bot.ID)

	smaller := domain.Page{URL: "https://acme.test", Text: article("anvil", 2)}
	h.source.crawlFn = pagesOf(smaller)

	refreshed, err := h.bots.Refresh(context.Background(), "alice", bot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BotStatusReady, refreshed.Status)
	assert.Equal(t, h.expectedChunks(smaller), refreshed.ChunkCount)
	assert.Equal(t, refreshed.ChunkCount, h.index.Len(bot.ID))
	assert.Less(t, refreshed.ChunkCount, before)
}

func TestRefreshRecoversFailedBot(t *testing.T) {
	h := newHarness(t)
	bot, _, err := h.bots.Create(context.Background(), "alice", "https://acme.test")
	require.ErrorIs(t, err, domain.ErrCrawlEmpty)

	h.source.crawlFn = pagesOf(domain.Page{URL: "https://acme.test", Text: article("anvil", 3)})
	refreshed, err := h.bots.Refresh(context.Background(), "alice", bot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BotStatusReady, refreshed.Status)
	assert.Empty(t, refreshed.LastError)

	stored, _ := h.botRepo.Get(bot.ID)
	assert.Empty(t, stored.LastError)
}

func TestRefreshFailureLeavesEmptyPartition(t *testing.T) {
	h := newHarness(t)
	bot := h.readyBot(t, "alice")

	h.source.crawlFn = pagesOf()
	_, err := h.bots.Refresh(context.Background(), "alice", bot.ID)
	assert.ErrorIs(t, err, domain.ErrCrawlEmpty)
	assert.Zero(t, h.index.Len(bot.ID))

	_, err = h.chat.Ask(context.Background(), bot.ID, &domain.ChatRequest{Message: "anvils?"})
	assert.ErrorIs(t, err, domain.ErrBotNotReady)
}

func TestOwnership(t *testing.T) {
	h := newHarness(t)
	bot := h.readyBot(t, "alice")
	ctx := context.Background()

	_, err := h.bots.Refresh(ctx, "mallory", bot.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.bots.Metrics(ctx, "mallory", bot.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, h.bots.Delete(ctx, "mallory", bot.ID), domain.ErrForbidden)

	_, err = h.bots.Refresh(ctx, "alice", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.bots.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	m, err := h.bots.Metrics(ctx, "alice", bot.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.ID, m.BotID)
	assert.Equal(t, bot.ChunkCount, m.ChunkCount)
}

func TestDeleteRemovesEverything(t *testing.T) {
	h := newHarness(t)
	bot := h.readyBot(t, "alice")
	ctx := context.Background()

	_, err := h.chat.Ask(ctx, bot.ID, &domain.ChatRequest{Message: "What about anvils?"})
	require.NoError(t, err)

	require.NoError(t, h.bots.Delete(ctx, "alice", bot.ID))
	assert.Zero(t, h.index.Len(bot.ID))
	_, err = h.bots.Get(ctx, bot.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	chats, err := h.logRepo.Count()
	require.NoError(t, err)
	assert.Zero(t, chats)
}

func TestAskAnswersWithSources(t *testing.T) {
	h := newHarness(t)
	bot := h.readyBot(t, "alice")

	resp, err := h.chat.Ask(context.Background(), bot.ID, &domain.ChatRequest{Message: "  What does the rocket handbook explain?  "})
	require.NoError(t, err)

	assert.Equal(t, "Acme sells anvils.", resp.Answer)
	assert.NotEmpty(t, resp.SessionID)
	require.Len(t, resp.SourceChunks, 3)
	for i := 1; i < len(resp.SourceChunks); i++ {
		assert.GreaterOrEqual(t, resp.SourceChunks[i-1].Score, resp.SourceChunks[i].Score)
	}
	assert.Equal(t, "https://acme.test/about", resp.SourceChunks[0].PageURL)

	require.Len(t, h.generator.prompts, 1)
	prompt := h.generator.prompts[0]
	assert.Contains(t, prompt, "--- CONTEXT ---")
	assert.Contains(t, prompt, "User question: What does the rocket handbook explain?")
	assert.Contains(t, prompt, resp.SourceChunks[0].Text)

	stored, _ := h.botRepo.Get(bot.ID)
	assert.Equal(t, 1, stored.MessageCount)
	assert.NotNil(t, stored.LastUsedAt)

	logs, err := h.logRepo.ListByBot(bot.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, resp.SessionID, logs[0].SessionID)
	assert.Equal(t, "Acme sells anvils.", logs[0].BotResponse)
	assert.Len(t, logs[0].RetrievedSources, 3)
}

func TestAskKeepsSessionID(t *testing.T) {
	h := newHarness(t)
	bot := h.readyBot(t, "alice")

	resp, err := h.chat.Ask(context.Background(), bot.ID, &domain.ChatRequest{SessionID: "s-42", Message: "anvils?"})
	require.NoError(t, err)
	assert.Equal(t, "s-42", resp.SessionID)
}

func TestAskRejectsBotsThatAreNotReady(t *testing.T) {
	h := newHarness(t)
	bot := &domain.Bot{OwnerID: "alice", WebsiteURL: "https://acme.test"}
	require.NoError(t, h.botRepo.Create(bot))

	_, err := h.chat.Ask(context.Background(), bot.ID, &domain.ChatRequest{Message: "hello?"})
	assert.ErrorIs(t, err, domain.ErrBotNotReady)
	assert.Zero(t, h.embedder.calls.Load())

	_, err = h.chat.Ask(context.Background(), "missing", &domain.ChatRequest{Message: "hello?"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAskRejectsEmptyMessage(t *testing.T) {
	h := newHarness(t)
	bot := h.readyBot(t, "alice")
	calls := h.embedder.calls.Load()

	_, err := h.chat.Ask(context.Background(), bot.ID, &domain.ChatRequest{Message: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Equal(t, calls, h.embedder.calls.Load())
}

func TestAskWithoutContext(t *testing.T) {
	h := newHarness(t)
	bot := h.readyBot(t, "alice")
	require.NoError(t, h.index.Reset(context.Background(), bot.ID))

	_, err := h.chat.Ask(context.Background(), bot.ID, &domain.ChatRequest{Message: "anvils?"})
	assert.ErrorIs(t, err, domain.ErrNoContextRetrieved)
	assert.Empty(t, h.generator.prompts)
}

func TestAskGenerationFailuresDoNotTouchBot(t *testing.T) {
	for _, sentinel := range []error{domain.ErrGenerationQuotaExceeded, domain.ErrGenerationUnavailable} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			h := newHarness(t)
			bot := h.readyBot(t, "alice")
			h.generator.err = fmt.Errorf("%w: upstream", sentinel)

			_, err := h.chat.Ask(context.Background(), bot.ID, &domain.ChatRequest{Message: "anvils?"})
			assert.ErrorIs(t, err, sentinel)

			stored, _ := h.botRepo.Get(bot.ID)
			assert.Equal(t, domain.BotStatusReady, stored.Status)
			assert.Zero(t, stored.MessageCount)
		})
	}
}

func TestAdminListAndStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ready := h.readyBot(t, "alice")
	h.source.crawlFn = pagesOf()
	_, _, err := h.bots.Create(ctx, "bob", "https://empty.test")
	require.ErrorIs(t, err, domain.ErrCrawlEmpty)

	_, err = h.chat.Ask(ctx, ready.ID, &domain.ChatRequest{Message: "anvils?"})
	require.NoError(t, err)

	list, err := h.admin.ListBots(ctx, "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Bots, 1)

	list, err = h.admin.ListBots(ctx, "bob", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 20, list.PageSize)

	stats, err := h.admin.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalBots)
	assert.Equal(t, 1, stats.BotsByStatus[domain.BotStatusReady])
	assert.Equal(t, 1, stats.BotsByStatus[domain.BotStatusFailed])
	assert.Equal(t, 1, stats.TotalMessages)
	assert.Equal(t, 1, stats.TotalChats)

	require.NoError(t, h.admin.DeleteBot(ctx, ready.ID))
	assert.ErrorIs(t, h.admin.DeleteBot(ctx, ready.ID), domain.ErrNotFound)
}

func TestBuildPrompt(t *testing.T) {
	matches := []vectorindex.Match{
		{Text: "Anvils are heavy.", Metadata: vectorindex.Metadata{PageURL: "https://acme.test/anvils"}},
		{Text: "Rockets are fast.", Metadata: vectorindex.Metadata{PageURL: "https://acme.test/rockets"}},
	}

	prompt := BuildPrompt("What is heavy?", matches, 0)

	assert.True(t, strings.HasPrefix(prompt, promptInstruction))
	assert.Contains(t, prompt, "--- CONTEXT ---\n[1] (source: https://acme.test/anvils)\nAnvils are heavy.\n\n[2] (source: https://acme.test/rockets)\nRockets are fast.\n--- END CONTEXT ---")
	assert.Contains(t, prompt, "User question: What is heavy?")
	assert.Less(t, strings.Index(prompt, "[1]"), strings.Index(prompt, "[2]"))
}

func TestBuildPromptRespectsBudget(t *testing.T) {
	matches := []vectorindex.Match{
		{Text: strings.Repeat("é", 100), Metadata: vectorindex.Metadata{PageURL: "u1"}},
		{Text: "never included", Metadata: vectorindex.Metadata{PageURL: "u2"}},
	}

	prompt := BuildPrompt("q", matches, 51)

	start := strings.Index(prompt, "--- CONTEXT ---\n") + len("--- CONTEXT ---\n")
	end := strings.Index(prompt, "\n--- END CONTEXT ---")
	block := prompt[start:end]
	assert.LessOrEqual(t, len(block), 51)
	assert.True(t, strings.HasPrefix(block, "[1] (source: u1)\n"))
	assert.NotContains(t, prompt, "never included")
	assert.True(t, strings.ToValidUTF8(block, "?") == block)
}

func TestGeneratorErrorsPassThroughUnchanged(t *testing.T) {
	h := newHarness(t)
	bot := h.readyBot(t, "alice")
	h.generator.err = errors.New("boom")

	_, err := h.chat.Ask(context.Background(), bot.ID, &domain.ChatRequest{Message: "anvils?"})
	assert.EqualError(t, err, "boom")
}
