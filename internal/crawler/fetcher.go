package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/liliang-cn/sitebot/internal/config"
)

var (
	ErrBadStatus          = errors.New("bad response status")
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// Response is a fetched document
type Response struct {
	URL         string // final URL after redirects
	StatusCode  int
	ContentType string // media type without parameters
	Body        []byte
}

// Fetcher retrieves a single page. Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// New returns the fetcher selected by cfg.Fetcher
func New(cfg config.CrawlerConfig) Fetcher {
	if cfg.Fetcher == "browser" {
		return NewBrowserFetcher(cfg)
	}
	return NewHTTPFetcher(cfg)
}

// HTTPFetcher fetches pages with a plain HTTP client
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

func NewHTTPFetcher(cfg config.CrawlerConfig) *HTTPFetcher {
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.PageTimeout},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s returned %d", ErrBadStatus, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = mimetype.Detect(body).String()
	}
	mediaType := mediaTypeOf(ct)
	if !isTextual(mediaType) {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedContent, rawURL, mediaType)
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: mediaType,
		Body:        body,
	}, nil
}

// Close releases idle keep-alive connections
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

func mediaTypeOf(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func isTextual(mediaType string) bool {
	switch mediaType {
	case "text/html", "application/xhtml+xml", "text/plain":
		return true
	}
	return false
}
