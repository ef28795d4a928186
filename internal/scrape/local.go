package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

const maxBodyBytes = 1 << 20

// LocalScraper fetches pages with net/http. It costs nothing per call, so the
// chain tries it first.
type LocalScraper struct {
	client  *http.Client
	limiter *resilience.Limiter
}

// NewLocalScraper creates a LocalScraper. limiter may be nil.
func NewLocalScraper(timeout time.Duration, limiter *resilience.Limiter) *LocalScraper {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LocalScraper{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		limiter: limiter,
	}
}

func (l *LocalScraper) Name() string { return "local_http" }

// Scrape fetches targetURL and returns its markup.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ProspectBot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if bt := DetectBlock(resp, body); bt != BlockNone {
		return nil, eris.Errorf("local_http: blocked (%s)", bt)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, eris.New("local_http: empty page")
	}

	return &Page{
		URL:        targetURL,
		Title:      extractTitle(body),
		HTML:       string(body),
		StatusCode: resp.StatusCode,
		Source:     "local_http",
	}, nil
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

func extractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}
