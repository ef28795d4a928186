package scrape

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/pkg/jina"
)

// JinaScraper fetches pages through the Jina reader, which renders
// JavaScript and gets past most bot walls.
type JinaScraper struct {
	client jina.Client
	guard  *resilience.Guard
}

// NewJinaScraper wraps a Jina client. The guard's breaker makes the chain
// fall straight through while Jina is failing.
func NewJinaScraper(client jina.Client, guard *resilience.Guard) *JinaScraper {
	return &JinaScraper{client: client, guard: guard}
}

func (j *JinaScraper) Name() string { return "jina" }

// Scrape fetches targetURL via the reader in HTML mode.
func (j *JinaScraper) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	resp, err := resilience.Call(ctx, j.guard, func(ctx context.Context) (*jina.ReadResponse, error) {
		return j.client.Read(ctx, targetURL, jina.FormatHTML)
	})
	if err != nil {
		return nil, err
	}
	if needsFallback(resp) {
		return nil, eris.Errorf("jina: unusable response for %s", targetURL)
	}

	u := resp.Data.URL
	if u == "" {
		u = targetURL
	}
	return &Page{
		URL:        u,
		Title:      resp.Data.Title,
		HTML:       resp.Data.Body(),
		StatusCode: 200,
		Source:     "jina",
	}, nil
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
}

// needsFallback reports whether a reader response is empty or is itself a
// challenge page.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}
	content := strings.TrimSpace(resp.Data.Body())
	if len(content) < 50 {
		return true
	}
	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}
