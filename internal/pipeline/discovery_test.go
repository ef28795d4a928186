package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

var springfieldBakery = discovery.Request{Niche: "bakery", Location: "Springfield"}

func TestDiscover_SameWebsiteCreatesOneLead(t *testing.T) {
	st := newTestStore(t)
	p := New(testConfig(), Deps{Store: st, Providers: []discovery.Provider{
		&fakeProvider{name: "google", candidates: []model.DiscoveredCandidate{
			{Provider: "google", ExternalID: "g1", Name: "ABC Bakery", Website: "https://abc.example"},
			{Provider: "google", ExternalID: "g2", Name: "ABC Bakery Downtown", Website: "https://abc.example"},
		}},
	}})

	rep, err := p.Discover(context.Background(), springfieldBakery)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Selected)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, rep.Skipped)

	leads, err := st.ListLeads(context.Background(), store.LeadFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	lead := leads[0]
	assert.Equal(t, "url:abc.example", lead.DedupKey)
	assert.Equal(t, "bakery", lead.Niche)
	assert.Equal(t, "Springfield", lead.Location)
	assert.Equal(t, "bakery", lead.BusinessType)
	assert.Equal(t, model.StatusNew, lead.Status)
	assert.Nil(t, lead.Email)
	assert.Nil(t, lead.Phone)
}

func TestDiscover_Idempotent(t *testing.T) {
	st := newTestStore(t)
	provider := &fakeProvider{name: "osm", candidates: []model.DiscoveredCandidate{
		{Provider: "osm", ExternalID: "node/1", Name: "Rolling Pin", Address: "1 Main St"},
		{Provider: "osm", Name: "Crumbs", Address: "2 Elm St"},
		{Provider: "osm", Name: "Sweet Spot", Website: "https://sweetspot.example/"},
	}}
	p := New(testConfig(), Deps{Store: st, Providers: []discovery.Provider{provider}})

	first, err := p.Discover(context.Background(), springfieldBakery)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Processed)

	second, err := p.Discover(context.Background(), springfieldBakery)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 3, second.Skipped)

	leads, err := st.ListLeads(context.Background(), store.LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, leads, 3)
}

func TestDiscover_SameBusinessAcrossProviders(t *testing.T) {
	st := newTestStore(t)
	p := New(testConfig(), Deps{Store: st, Providers: []discovery.Provider{
		&fakeProvider{name: "google", candidates: []model.DiscoveredCandidate{
			{Provider: "google", ExternalID: "G1", Name: "ABC Bakery", Address: "1 Main St", Website: "https://abc.example"},
		}},
	}})
	rep, err := p.Discover(context.Background(), springfieldBakery)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)

	osm := New(testConfig(), Deps{Store: st, Providers: []discovery.Provider{
		&fakeProvider{name: "osm", candidates: []model.DiscoveredCandidate{
			{Provider: "osm", ExternalID: "node/9", Name: "ABC  Bakery", Address: "1 Main St."},
		}},
	}})
	rep, err = osm.Discover(context.Background(), springfieldBakery)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Processed)
	assert.Equal(t, 1, rep.Skipped)

	leads, err := st.ListLeads(context.Background(), store.LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, leads, 1)
}

func TestDiscover_SamePlaceWithAndWithoutWebsite(t *testing.T) {
	st := newTestStore(t)
	provider := &fakeProvider{name: "google", candidates: []model.DiscoveredCandidate{
		{Provider: "google", ExternalID: "G1", Name: "ABC Bakery", Website: "https://abc.example"},
	}}
	p := New(testConfig(), Deps{Store: st, Providers: []discovery.Provider{provider}})

	_, err := p.Discover(context.Background(), springfieldBakery)
	require.NoError(t, err)

	provider.candidates = []model.DiscoveredCandidate{{Provider: "google", ExternalID: "G1", Name: "ABC Bakery"}}
	rep, err := p.Discover(context.Background(), springfieldBakery)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Processed)

	leads, err := st.ListLeads(context.Background(), store.LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, leads, 1)
}

func TestDiscover_SameBusinessWithinOneBatch(t *testing.T) {
	st := newTestStore(t)
	p := New(testConfig(), Deps{Store: st, Providers: []discovery.Provider{
		&fakeProvider{name: "google", candidates: []model.DiscoveredCandidate{
			{Provider: "google", ExternalID: "G1", Name: "ABC Bakery", Address: "1 Main St", Website: "https://abc.example"},
		}},
		&fakeProvider{name: "osm", candidates: []model.DiscoveredCandidate{
			{Provider: "osm", ExternalID: "node/9", Name: "ABC Bakery", Address: "1 Main St"},
		}},
	}})

	rep, err := p.Discover(context.Background(), springfieldBakery)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, rep.Skipped)
}

func TestDiscover_FailingProviderDoesNotStopOthers(t *testing.T) {
	st := newTestStore(t)
	p := New(testConfig(), Deps{Store: st, Providers: []discovery.Provider{
		&fakeProvider{name: "google", err: errors.New("quota exceeded")},
		&fakeProvider{name: "brave", candidates: []model.DiscoveredCandidate{
			{Provider: "brave", Name: "Good Bread", Website: "https://goodbread.example"},
		}},
	}})

	rep, err := p.Discover(context.Background(), springfieldBakery)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "google")
}

func TestDiscover_SkipsCandidatesWithoutKey(t *testing.T) {
	st := newTestStore(t)
	p := New(testConfig(), Deps{Store: st, Providers: []discovery.Provider{
		&fakeProvider{name: "brave", candidates: []model.DiscoveredCandidate{{Provider: "brave"}}},
	}})

	rep, err := p.Discover(context.Background(), springfieldBakery)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Processed)
	assert.Equal(t, 1, rep.Skipped)
}

func TestDiscover_BusinessTypeOverride(t *testing.T) {
	st := newTestStore(t)
	p := New(testConfig(), Deps{Store: st, Providers: []discovery.Provider{
		&fakeProvider{name: "google", candidates: []model.DiscoveredCandidate{
			{Provider: "google", ExternalID: "g9", Name: "Cake Co"},
		}},
	}})

	_, err := p.Discover(context.Background(), discovery.Request{Niche: "bakery", Location: "Springfield", BusinessType: "cake shop"})
	require.NoError(t, err)

	leads, err := st.ListLeads(context.Background(), store.LeadFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "cake shop", leads[0].BusinessType)
	assert.Equal(t, "google", leads[0].Source)
	assert.Equal(t, "g9", model.Deref(leads[0].SourceID))
}

func TestDiscover_Validation(t *testing.T) {
	p := New(testConfig(), Deps{Store: newTestStore(t), Providers: []discovery.Provider{&fakeProvider{name: "x"}}})
	_, err := p.Discover(context.Background(), discovery.Request{Niche: "bakery"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	noProviders := New(testConfig(), Deps{Store: newTestStore(t)})
	_, err = noProviders.Discover(context.Background(), springfieldBakery)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestDiscoverTargets(t *testing.T) {
	st := newTestStore(t)
	cfg := testConfig()
	cfg.Discovery.Targets = []config.Target{
		{Niche: "bakery", Location: "Springfield"},
		{Niche: "", Location: "Nowhere"},
		{Niche: "dentist", Location: "Shelbyville"},
	}
	provider := &fakeProvider{name: "osm", candidates: []model.DiscoveredCandidate{
		{Provider: "osm", ExternalID: "node/5", Name: "Shared Result"},
	}}
	p := New(cfg, Deps{Store: st, Providers: []discovery.Provider{provider}})

	rep, err := p.DiscoverTargets(context.Background())
	require.NoError(t, err)
	// The same place id is found for both valid targets but stored once.
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, rep.Skipped)
	assert.NotEmpty(t, rep.Errors)
}
