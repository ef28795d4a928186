package discovery

import (
	"context"
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/pkg/brave"
	"github.com/sells-group/prospect-cli/pkg/google"
	"github.com/sells-group/prospect-cli/pkg/osm"
)

const (
	ProviderGoogle = "google"
	ProviderOSM    = "osm"
	ProviderBrave  = "brave"
)

// GoogleProvider searches Google Places, following nextPageToken up to
// MaxPages pages.
type GoogleProvider struct {
	client    google.Client
	guard     *resilience.Guard
	maxPages  int
	blocklist []string
}

// NewGoogleProvider creates a Places-backed provider.
func NewGoogleProvider(client google.Client, guard *resilience.Guard, maxPages int, blocklist []string) *GoogleProvider {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &GoogleProvider{client: client, guard: guard, maxPages: maxPages, blocklist: blocklist}
}

func (p *GoogleProvider) Name() string { return ProviderGoogle }

func (p *GoogleProvider) Search(ctx context.Context, req Request) ([]model.DiscoveredCandidate, error) {
	var (
		out       []model.DiscoveredCandidate
		pageToken string
	)
	query := req.Kind() + " in " + req.Location

	for page := 0; page < p.maxPages; page++ {
		resp, err := resilience.Call(ctx, p.guard, func(ctx context.Context) (*google.TextSearchResponse, error) {
			return p.client.TextSearch(ctx, google.TextSearchRequest{
				TextQuery: query,
				PageSize:  20,
				PageToken: pageToken,
			})
		})
		if err != nil {
			if len(out) > 0 {
				return out, nil
			}
			return nil, err
		}

		for _, place := range resp.Places {
			if place.BusinessStatus == "CLOSED_PERMANENTLY" {
				continue
			}
			website := place.WebsiteURI
			if IsDirectoryURL(website, p.blocklist) {
				website = ""
			}
			out = append(out, model.DiscoveredCandidate{
				Provider:   ProviderGoogle,
				ExternalID: place.ID,
				Name:       place.DisplayName.Text,
				Address:    place.FormattedAddress,
				Website:    website,
				Phone:      place.NationalPhoneNumber,
			})
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return out, nil
}

// OSMProvider searches OpenStreetMap through Nominatim.
type OSMProvider struct {
	client    osm.Client
	guard     *resilience.Guard
	limit     int
	blocklist []string
}

// NewOSMProvider creates a Nominatim-backed provider.
func NewOSMProvider(client osm.Client, guard *resilience.Guard, limit int, blocklist []string) *OSMProvider {
	return &OSMProvider{client: client, guard: guard, limit: limit, blocklist: blocklist}
}

func (p *OSMProvider) Name() string { return ProviderOSM }

func (p *OSMProvider) Search(ctx context.Context, req Request) ([]model.DiscoveredCandidate, error) {
	places, err := resilience.Call(ctx, p.guard, func(ctx context.Context) ([]osm.Place, error) {
		return p.client.Search(ctx, req.Niche+" in "+req.Location, p.limit)
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.DiscoveredCandidate, 0, len(places))
	for _, place := range places {
		name := place.Name
		if name == "" {
			name, _, _ = strings.Cut(place.DisplayName, ",")
			name = strings.TrimSpace(name)
		}
		if name == "" {
			continue
		}
		website := place.Website()
		if IsDirectoryURL(website, p.blocklist) {
			website = ""
		}
		out = append(out, model.DiscoveredCandidate{
			Provider:   ProviderOSM,
			ExternalID: place.StableID(),
			Name:       name,
			Address:    place.DisplayName,
			Website:    website,
			Phone:      place.Phone(),
		})
	}
	return out, nil
}

// BraveProvider turns organic web results into candidates. Results pointing
// at directories are dropped since they name a listing, not a business.
type BraveProvider struct {
	client    brave.Client
	guard     *resilience.Guard
	count     int
	blocklist []string
}

// NewBraveProvider creates a Brave-backed provider.
func NewBraveProvider(client brave.Client, guard *resilience.Guard, count int, blocklist []string) *BraveProvider {
	return &BraveProvider{client: client, guard: guard, count: count, blocklist: blocklist}
}

func (p *BraveProvider) Name() string { return ProviderBrave }

func (p *BraveProvider) Search(ctx context.Context, req Request) ([]model.DiscoveredCandidate, error) {
	query := req.Niche + " businesses " + req.Location + " contact email phone"
	results, err := resilience.Call(ctx, p.guard, func(ctx context.Context) ([]brave.Result, error) {
		return p.client.WebSearch(ctx, query, p.count)
	})
	if err != nil {
		return nil, err
	}

	var out []model.DiscoveredCandidate
	for _, r := range results {
		if r.URL == "" || IsDirectoryURL(r.URL, p.blocklist) {
			continue
		}
		name := titleName(r.Title)
		if name == "" {
			continue
		}
		out = append(out, model.DiscoveredCandidate{
			Provider: ProviderBrave,
			Name:     name,
			Website:  r.URL,
		})
	}
	return out, nil
}

// titleName keeps the part of a page title before the first separator,
// e.g. "Acme Bakery | Fresh Bread" -> "Acme Bakery".
func titleName(title string) string {
	title = strings.TrimSpace(title)
	for _, sep := range []string{" | ", " - ", " – ", " :: "} {
		if before, _, ok := strings.Cut(title, sep); ok {
			title = before
		}
	}
	return strings.TrimSpace(title)
}
