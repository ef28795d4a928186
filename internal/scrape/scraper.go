// Package scrape fetches business websites for contact extraction. Pages are
// fetched directly first and through the Jina reader when the site blocks
// plain HTTP clients.
package scrape

import "context"

// Page is one fetched document. HTML keeps the markup so anchors such as
// mailto: and tel: links survive for extraction.
type Page struct {
	URL        string
	Title      string
	HTML       string
	StatusCode int
	Source     string // "local_http" or "jina"
}

// Scraper fetches a single URL.
type Scraper interface {
	Name() string
	Scrape(ctx context.Context, url string) (*Page, error)
}
