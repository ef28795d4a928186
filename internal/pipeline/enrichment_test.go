package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/model"
)

func TestEnrich_FillsOnlyMissingFields(t *testing.T) {
	st := newTestStore(t)
	existing := seedLead(t, st, "url:a.example", withEmail("owner@a.example"))
	blank := seedLead(t, st, "url:b.example")

	enricher := &fakeEnricher{result: model.EnrichmentResult{
		Email: "info@found.example", EmailSource: "website",
		Phone: "+919876543210", PhoneSource: "website",
	}}
	p := New(testConfig(), Deps{Store: st, Enricher: enricher})

	rep, err := p.Enrich(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Selected)
	assert.Equal(t, 2, rep.Processed)

	got := getLead(t, st, existing.ID)
	assert.Equal(t, "owner@a.example", model.Deref(got.Email))
	assert.Equal(t, "+919876543210", model.Deref(got.Phone))

	got = getLead(t, st, blank.ID)
	assert.Equal(t, "info@found.example", model.Deref(got.Email))
	assert.Equal(t, "+919876543210", model.Deref(got.Phone))
}

func TestEnrich_Monotonic(t *testing.T) {
	st := newTestStore(t)
	lead := seedLead(t, st, "url:m.example", func(l *model.Lead) {
		l.Phone = model.Ptr("+911111111111")
	})
	p := New(testConfig(), Deps{Store: st, Enricher: &fakeEnricher{result: model.EnrichmentResult{
		Email: "hello@m.example", Phone: "+912222222222",
	}}})

	for i := 0; i < 3; i++ {
		_, err := p.Enrich(context.Background())
		require.NoError(t, err)
	}

	got := getLead(t, st, lead.ID)
	assert.Equal(t, "+911111111111", model.Deref(got.Phone))
	assert.Equal(t, "hello@m.example", model.Deref(got.Email))

	// Complete leads drop out of the selection.
	rep, err := p.Enrich(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Selected)
}

func TestEnrich_SkipsWrittenOffLeads(t *testing.T) {
	st := newTestStore(t)
	seedLead(t, st, "url:no.example", withStatus(model.StatusRepliedNo))
	enricher := &fakeEnricher{result: model.EnrichmentResult{Email: "x@no.example"}}
	p := New(testConfig(), Deps{Store: st, Enricher: enricher})

	rep, err := p.Enrich(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Selected)
	assert.Equal(t, 0, enricher.calls)
}

func TestEnrich_NothingFound(t *testing.T) {
	st := newTestStore(t)
	lead := seedLead(t, st, "url:empty.example")
	p := New(testConfig(), Deps{Store: st, Enricher: &fakeEnricher{}})

	rep, err := p.Enrich(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Nil(t, getLead(t, st, lead.ID).Email)
}

func TestEnrich_UnfillableLeadsDoNotStarveBatch(t *testing.T) {
	st := newTestStore(t)
	for i := 0; i < 60; i++ {
		seedLead(t, st, fmt.Sprintf("url:nophone%d.example", i), withEmail(fmt.Sprintf("o@nophone%d.example", i)))
	}
	target := seedLead(t, st, "url:target.example")

	// Only an email can be found; phones never can.
	enricher := &fakeEnricher{result: model.EnrichmentResult{Email: "hi@target.example", EmailSource: "website"}}
	p := New(testConfig(), Deps{Store: st, Enricher: enricher})
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }

	first, err := p.Enrich(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, first.Selected)
	assert.Nil(t, getLead(t, st, target.ID).Email)

	clock = clock.Add(time.Hour)
	second, err := p.Enrich(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, second.Selected)
	assert.Equal(t, "hi@target.example", model.Deref(getLead(t, st, target.ID).Email))

	// Everything left was attempted within the retry period.
	clock = clock.Add(time.Hour)
	third, err := p.Enrich(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, third.Selected)

	// After the retry period the oldest attempts come back first.
	clock = clock.Add(25 * time.Hour)
	fourth, err := p.Enrich(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, fourth.Selected)
}

func TestEnrich_RequiresEnricher(t *testing.T) {
	p := New(testConfig(), Deps{Store: newTestStore(t)})
	_, err := p.Enrich(context.Background())
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
