package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/liliang-cn/sitebot/internal/config"
)

// BrowserFetcher renders pages in a headless Chromium so script-built content
// is visible. The browser starts on the first fetch and lives until Close.
type BrowserFetcher struct {
	bin       string
	userAgent string
	timeout   time.Duration
	maxBytes  int64

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func NewBrowserFetcher(cfg config.CrawlerConfig) *BrowserFetcher {
	timeout := cfg.PageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	return &BrowserFetcher{
		bin:       cfg.BrowserBin,
		userAgent: cfg.UserAgent,
		timeout:   timeout,
		maxBytes:  maxBytes,
	}
}

func (f *BrowserFetcher) start() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	l := launcher.New().Headless(true)
	if f.bin != "" {
		l = l.Bin(f.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	f.browser, f.launcher = browser, l
	return browser, nil
}

func (f *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	browser, err := f.start()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if f.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.userAgent}); err != nil {
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	// The first document response carries the status of the navigation.
	status := 0
	waitResponse := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return false
		}
		status = e.Response.Status
		return true
	})

	if err := page.Navigate(rawURL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	waitResponse()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if status >= 400 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrBadStatus, rawURL, status)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for %s: %w", rawURL, err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(html)) > f.maxBytes {
		html = html[:f.maxBytes]
	}

	finalURL := rawURL
	if info, err := page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	return &Response{
		URL:         finalURL,
		StatusCode:  status,
		ContentType: "text/html",
		Body:        []byte(html),
	}, nil
}

// Close shuts the browser down. It is safe to call when no fetch happened.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.launcher.Cleanup()
	f.browser, f.launcher = nil, nil
	return err
}
