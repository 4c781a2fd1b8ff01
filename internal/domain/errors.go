package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller does not own the resource
	ErrForbidden = errors.New("forbidden")
	// ErrRateLimited indicates rate limit exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Ingestion and retrieval errors.
var (
	// ErrCrawlEmpty indicates the crawl produced no usable pages
	ErrCrawlEmpty = errors.New("no pages found or all pages empty")
	// ErrChunkingEmpty indicates no page produced a chunk
	ErrChunkingEmpty = errors.New("no chunks generated")
	// ErrEmbeddingUnavailable indicates the embedding backend is unreachable or misconfigured
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrDimensionMismatch indicates inconsistent batch lengths or vector dimensions
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrBotNotReady indicates the bot is not in the ready state
	ErrBotNotReady = errors.New("bot is not ready")
	// ErrNoContextRetrieved indicates the index returned nothing for a question
	ErrNoContextRetrieved = errors.New("no context retrieved")
	// ErrGenerationQuotaExceeded indicates the generation backend throttled the request
	ErrGenerationQuotaExceeded = errors.New("generation quota exceeded")
	// ErrGenerationUnavailable indicates the generation backend failed or is not configured
	ErrGenerationUnavailable = errors.New("generation unavailable")
)
