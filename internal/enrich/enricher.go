// Package enrich fills missing contact details for leads from their website,
// a contact directory, and configured address patterns.
package enrich

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/internal/scrape"
	"github.com/sells-group/prospect-cli/pkg/hunter"
)

// Sources recorded on EnrichmentResult.
const (
	SourceWebsite   = "website"
	SourceDirectory = "directory"
	SourcePattern   = "pattern"
)

// SiteScraper fetches the pages of a business website.
type SiteScraper interface {
	ScrapeSite(ctx context.Context, website string, maxConcurrent int) ([]scrape.Page, error)
}

// Directory looks up a published email address for a domain.
type Directory interface {
	Name() string
	Lookup(ctx context.Context, domain string) (string, error)
}

// HunterDirectory adapts the Hunter.io domain search to Directory.
type HunterDirectory struct {
	client hunter.Client
	guard  *resilience.Guard
}

// NewHunterDirectory wraps a Hunter client behind guard.
func NewHunterDirectory(client hunter.Client, guard *resilience.Guard) *HunterDirectory {
	return &HunterDirectory{client: client, guard: guard}
}

func (h *HunterDirectory) Name() string { return "hunter" }

// Lookup returns the best address Hunter knows for domain, or "".
func (h *HunterDirectory) Lookup(ctx context.Context, domain string) (string, error) {
	res, err := resilience.Call(ctx, h.guard, func(ctx context.Context) (*hunter.DomainSearchResult, error) {
		return h.client.DomainSearch(ctx, domain)
	})
	if err != nil {
		return "", err
	}
	return strings.ToLower(res.Best()), nil
}

// Enricher derives contact details for a lead. It never writes; the caller
// persists the result with fill-only semantics.
type Enricher struct {
	scraper   SiteScraper
	directory Directory
	cfg       config.EnrichConfig
	blocklist []string
}

// New creates an Enricher. scraper and directory may be nil to skip the
// corresponding step.
func New(scraper SiteScraper, directory Directory, cfg config.EnrichConfig, blocklist []string) *Enricher {
	return &Enricher{scraper: scraper, directory: directory, cfg: cfg, blocklist: blocklist}
}

// Enrich looks for the contact fields lead is missing. Per field the first
// step that yields a value wins: website scrape, then directory lookup
// (email only), then pattern guessing (email only). Provider failures are
// logged and the next step is tried.
func (e *Enricher) Enrich(ctx context.Context, lead *model.Lead) model.EnrichmentResult {
	log := zap.L().With(zap.String("stage", "enrichment"), zap.Int64("lead_id", lead.ID))

	var res model.EnrichmentResult
	needEmail := lead.Email == nil
	needPhone := lead.Phone == nil
	if !needEmail && !needPhone {
		return res
	}

	website := model.Deref(lead.Website)
	if website != "" && discovery.IsDirectoryURL(website, e.blocklist) {
		website = ""
	}

	if website != "" && e.scraper != nil {
		pages, err := e.scraper.ScrapeSite(ctx, website, 2)
		if err != nil {
			log.Debug("website scrape failed", zap.String("website", website), zap.Error(err))
		} else {
			docs := make([]string, 0, len(pages))
			for _, p := range pages {
				docs = append(docs, p.HTML)
			}
			found := Extract(docs, e.cfg.PhoneRegion)
			if needEmail {
				if email := BestEmail(found.Emails); email != "" {
					res.Email, res.EmailSource = email, SourceWebsite
				}
			}
			if needPhone && len(found.Phones) > 0 {
				res.Phone, res.PhoneSource = found.Phones[0], SourceWebsite
			}
		}
	}

	if !needEmail || res.Email != "" {
		return res
	}

	domain := e.domainFor(lead, website)
	if domain == "" {
		return res
	}

	if website != "" && e.directory != nil {
		email, err := e.directory.Lookup(ctx, domain)
		switch {
		case err != nil:
			log.Debug("directory lookup failed", zap.String("directory", e.directory.Name()),
				zap.String("domain", domain), zap.Error(err))
		case ValidEmail(email):
			res.Email, res.EmailSource = strings.ToLower(strings.TrimSpace(email)), SourceDirectory
			return res
		}
	}

	name := model.Deref(lead.Name)
	if name == "" {
		name = model.Deref(lead.BusinessName)
	}
	if guesses := GuessEmails(name, domain, e.cfg.Patterns); len(guesses) > 0 {
		res.Email, res.EmailSource = guesses[0], SourcePattern
	}
	return res
}

// domainFor returns the registrable domain of website, or a domain derived
// from the business name and the fallback TLD when there is no website.
func (e *Enricher) domainFor(lead *model.Lead, website string) string {
	if website != "" {
		d, err := RegistrableDomain(website)
		if err == nil {
			return d
		}
	}
	if e.cfg.FallbackTLD == "" {
		return ""
	}
	name := model.Deref(lead.BusinessName)
	if name == "" {
		name = model.Deref(lead.Name)
	}
	slug := strings.ReplaceAll(asciiOnly(discovery.Fold(name)), " ", "")
	if slug == "" {
		return ""
	}
	return slug + "." + strings.TrimPrefix(e.cfg.FallbackTLD, ".")
}
