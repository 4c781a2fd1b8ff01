// Package crawler discovers and fetches the pages of one website.
package crawler

import (
	"context"
	"net/url"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/sitebot/internal/domain"
)

const (
	DefaultMaxPages      = 10
	DefaultMinTextLength = 50
)

// Options configures a Frontier
type Options struct {
	MaxPages      int
	MinTextLength int
	Workers       int
	Logger        *zap.Logger
}

// Frontier walks a site breadth first, starting from one URL and following
// only links on the same registered domain.
type Frontier struct {
	fetcher       Fetcher
	maxPages      int
	minTextLength int
	workers       int
	logger        *zap.Logger
}

func NewFrontier(fetcher Fetcher, opts Options) *Frontier {
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = DefaultMinTextLength
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Frontier{
		fetcher:       fetcher,
		maxPages:      opts.MaxPages,
		minTextLength: opts.MinTextLength,
		workers:       opts.Workers,
		logger:        opts.Logger.Named("crawler"),
	}
}

type fetchResult struct {
	resp *Response
	err  error
}

// Crawl visits at most MaxPages distinct normalized URLs and returns the pages
// with enough text, in discovery order. Per-page failures are logged and
// skipped; an unreachable start URL yields no pages and no error.
func (f *Frontier) Crawl(ctx context.Context, startURL string) ([]domain.Page, error) {
	start, err := Normalize(startURL)
	if err != nil {
		return nil, err
	}
	site, err := url.Parse(start)
	if err != nil {
		return nil, err
	}

	queue := []string{start}
	// seen holds every URL that was visited or is queued
	seen := map[string]struct{}{start: {}}
	visited := 0
	var pages []domain.Page

	f.logger.Info("crawl started", zap.String("url", start), zap.Int("max_pages", f.maxPages))

	for len(queue) > 0 && visited < f.maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := min(f.workers, f.maxPages-visited, len(queue))
		batch := queue[:n]
		queue = queue[n:]
		visited += n

		results := make([]fetchResult, n)
		var g errgroup.Group
		g.SetLimit(f.workers)
		for i, u := range batch {
			g.Go(func() error {
				resp, err := f.fetcher.Fetch(ctx, u)
				results[i] = fetchResult{resp: resp, err: err}
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i, u := range batch {
			page, links, ok := f.process(site, u, results[i], seen)
			if !ok {
				continue
			}
			pages = append(pages, page)

			for _, link := range links {
				if _, dup := seen[link]; dup {
					continue
				}
				seen[link] = struct{}{}
				queue = append(queue, link)
			}
		}
	}

	f.logger.Info("crawl finished",
		zap.String("url", start),
		zap.Int("visited", visited),
		zap.Int("pages", len(pages)))

	return pages, nil
}

// process turns one fetch result into a page plus the normalized same-site
// links worth following.
func (f *Frontier) process(site *url.URL, u string, res fetchResult, seen map[string]struct{}) (domain.Page, []string, bool) {
	if res.err != nil {
		f.logger.Warn("skipping page", zap.String("url", u), zap.Error(res.err))
		return domain.Page{}, nil, false
	}

	final, err := url.Parse(res.resp.URL)
	if err != nil {
		final, _ = url.Parse(u)
	}
	if !SameSite(site, final) {
		f.logger.Warn("skipping off-site redirect", zap.String("url", u), zap.String("location", res.resp.URL))
		return domain.Page{}, nil, false
	}
	if n, err := normalizeURL(final); err == nil && n != u {
		if _, dup := seen[n]; dup {
			f.logger.Warn("skipping redirect to known page", zap.String("url", u), zap.String("location", n))
			return domain.Page{}, nil, false
		}
		seen[n] = struct{}{}
	}

	text, links, err := Extract(res.resp.Body, res.resp.ContentType, final)
	if err != nil {
		f.logger.Warn("skipping unparsable page", zap.String("url", u), zap.Error(err))
		return domain.Page{}, nil, false
	}
	if utf8.RuneCountInString(text) < f.minTextLength {
		f.logger.Warn("insufficient text", zap.String("url", u), zap.Int("chars", utf8.RuneCountInString(text)))
		return domain.Page{}, nil, false
	}

	follow := make([]string, 0, len(links))
	for _, link := range links {
		n, err := Normalize(link)
		if err != nil {
			continue
		}
		lu, err := url.Parse(n)
		if err != nil || !SameSite(site, lu) {
			continue
		}
		follow = append(follow, n)
	}

	return domain.Page{URL: u, Text: text}, follow, true
}
