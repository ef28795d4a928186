package scrape

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ContactPaths are fetched alongside the homepage.
var ContactPaths = []string{"/contact", "/contact-us", "/about"}

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	scrapers []Scraper
}

// NewChain creates a Chain. Scrapers are tried in the given order.
func NewChain(scrapers ...Scraper) *Chain {
	return &Chain{scrapers: scrapers}
}

// Name identifies the chain in logs.
func (c *Chain) Name() string { return "chain" }

// Scrape tries each scraper for targetURL and returns the first page.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	var lastErr error
	for _, s := range c.scrapers {
		page, err := s.Scrape(ctx, targetURL)
		if err == nil && page != nil {
			return page, nil
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "scrape: cancelled")
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no scraper for url: %s", targetURL)
}

// ScrapeSite fetches the homepage of website plus ContactPaths with up to
// maxConcurrent requests in flight. Pages that fail are skipped; an error is
// returned only when nothing could be fetched. The homepage comes first.
func (c *Chain) ScrapeSite(ctx context.Context, website string, maxConcurrent int) ([]Page, error) {
	urls, err := SiteURLs(website)
	if err != nil {
		return nil, err
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}

	var (
		mu      sync.Mutex
		pages   = make([]*Page, len(urls))
		lastErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, u := range urls {
		g.Go(func() error {
			page, err := c.Scrape(gctx, u)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return nil
			}
			pages[i] = page
			return nil
		})
	}
	_ = g.Wait()

	var out []Page
	for _, p := range pages {
		if p != nil {
			out = append(out, *p)
		}
	}
	if len(out) == 0 {
		if lastErr == nil {
			lastErr = eris.New("scrape: no pages")
		}
		return nil, eris.Wrapf(lastErr, "scrape: site %s", website)
	}
	return out, nil
}

// SiteURLs returns the homepage URL for website followed by its contact
// page URLs. A missing scheme defaults to https.
func SiteURLs(website string) ([]string, error) {
	website = strings.TrimSpace(website)
	if website == "" {
		return nil, eris.New("scrape: empty website")
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("scrape: invalid website %q", website)
	}

	home := u.Scheme + "://" + u.Host
	out := []string{website}
	for _, p := range ContactPaths {
		if strings.TrimRight(u.Path, "/") == p {
			continue
		}
		out = append(out, home+p)
	}
	return out, nil
}
