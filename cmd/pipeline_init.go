package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/enrich"
	"github.com/sells-group/prospect-cli/internal/generate"
	"github.com/sells-group/prospect-cli/internal/lifecycle"
	"github.com/sells-group/prospect-cli/internal/mail"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/publish"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/scrape"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/brave"
	"github.com/sells-group/prospect-cli/pkg/google"
	"github.com/sells-group/prospect-cli/pkg/hunter"
	"github.com/sells-group/prospect-cli/pkg/jina"
	"github.com/sells-group/prospect-cli/pkg/osm"
)

const (
	osmResultLimit   = 50
	braveResultCount = 20
)

// pipelineEnv holds the store, the shared lead locks and the pipeline
// needed by the run/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Locks    *lifecycle.Locks
	// SitesDir is set when prototypes are published to the local filesystem.
	SitesDir string
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store and every collaborator the configuration
// enables, then builds the Pipeline. Stages whose collaborator is missing
// report a validation error when run. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	deps, sitesDir, err := buildDeps(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	deps.Store = st
	deps.Locks = lifecycle.NewLocks()

	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(cfg, deps),
		Locks:    deps.Locks,
		SitesDir: sitesDir,
	}, nil
}

// buildDeps constructs the external collaborators. Only hard
// misconfiguration (an unknown backend, a publisher that cannot start) is an
// error; absent credentials just leave the collaborator out.
func buildDeps(c *config.Config) (pipeline.Deps, string, error) {
	var d pipeline.Deps

	providers, err := initProviders(c)
	if err != nil {
		return d, "", err
	}
	d.Providers = providers
	d.Enricher = initEnricher(c)

	gen, err := generate.NewGenerator(c)
	if err != nil {
		return d, "", err
	}
	if gen != nil {
		zap.L().Info("text generation enabled", zap.String("backend", gen.Name()))
	}
	d.Composer = generate.NewComposer(gen, c.Sender, c.Generate.MaxTokens)

	if c.SMTP.Host != "" {
		sender, err := mail.NewSMTPSender(c.SMTP, c.Sender)
		if err != nil {
			return d, "", err
		}
		d.Sender = sender
	} else {
		zap.L().Warn("smtp.host not set, outreach is disabled")
	}

	if c.IMAP.Host != "" {
		fetcher, err := mail.NewIMAPFetcher(c.IMAP)
		if err != nil {
			return d, "", err
		}
		d.Fetcher = fetcher
	} else {
		zap.L().Warn("imap.host not set, reply monitoring is disabled")
	}

	pub, err := publish.New(c)
	if err != nil {
		return d, "", eris.Wrap(err, "init publisher")
	}
	d.Publisher = pub

	var sitesDir string
	if fs, ok := pub.(*publish.FS); ok {
		sitesDir = fs.Dir()
	}
	return d, sitesDir, nil
}

// initProviders builds the configured discovery providers in order. A
// provider that needs a key it does not have is skipped with a warning.
func initProviders(c *config.Config) ([]discovery.Provider, error) {
	var out []discovery.Provider
	blocklist := c.Discovery.DirectoryBlocklist
	for _, name := range c.Discovery.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case discovery.ProviderGoogle:
			if c.Google.Key == "" {
				zap.L().Warn("google.key not set, google discovery disabled")
				continue
			}
			client := google.NewClient(c.Google.Key, google.WithBaseURL(c.Google.BaseURL))
			guard := resilience.NewGuard(discovery.ProviderGoogle, c.Google.RateLimit, c.Retry)
			out = append(out, discovery.NewGoogleProvider(client, guard, c.Discovery.MaxPages, blocklist))
		case discovery.ProviderOSM:
			client := osm.NewClient(c.OSM.UserAgent, osm.WithBaseURL(c.OSM.BaseURL))
			guard := resilience.NewGuard(discovery.ProviderOSM, c.OSM.RateLimit, c.Retry)
			out = append(out, discovery.NewOSMProvider(client, guard, osmResultLimit, blocklist))
		case discovery.ProviderBrave:
			if c.Brave.Key == "" {
				zap.L().Warn("brave.key not set, brave discovery disabled")
				continue
			}
			client := brave.NewClient(c.Brave.Key, brave.WithBaseURL(c.Brave.BaseURL))
			guard := resilience.NewGuard(discovery.ProviderBrave, c.Brave.RateLimit, c.Retry)
			out = append(out, discovery.NewBraveProvider(client, guard, braveResultCount, blocklist))
		default:
			return nil, eris.Errorf("unknown discovery provider %q", name)
		}
	}
	return out, nil
}

// initEnricher builds the scrape chain (local HTTP first, Jina reader as
// fallback) and the optional Hunter directory.
func initEnricher(c *config.Config) *enrich.Enricher {
	timeout := time.Duration(c.Enrich.TimeoutSecs) * time.Second
	scrapers := []scrape.Scraper{
		scrape.NewLocalScraper(timeout, resilience.NewLimiter("local_http", c.Enrich.ScrapeRateLimit)),
	}
	if c.Jina.Key != "" {
		client := jina.NewClient(c.Jina.Key, jina.WithBaseURL(c.Jina.BaseURL))
		scrapers = append(scrapers, scrape.NewJinaScraper(client, resilience.NewGuard("jina", c.Jina.RateLimit, c.Retry)))
	}

	var directory enrich.Directory
	if c.Hunter.Key != "" {
		client := hunter.NewClient(c.Hunter.Key, hunter.WithBaseURL(c.Hunter.BaseURL))
		directory = enrich.NewHunterDirectory(client, resilience.NewGuard("hunter", c.Hunter.RateLimit, c.Retry))
	} else {
		zap.L().Debug("hunter.key not set, directory lookup disabled")
	}

	return enrich.New(scrape.NewChain(scrapers...), directory, c.Enrich, c.Discovery.DirectoryBlocklist)
}
