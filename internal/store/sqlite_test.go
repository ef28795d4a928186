package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedLead(t *testing.T, st Store, key string, mutate ...func(*model.Lead)) *model.Lead {
	t.Helper()
	l := &model.Lead{
		BusinessName: model.Ptr("Acme " + key),
		Niche:        "bakery",
		Location:     "Springfield",
		DedupKey:     key,
	}
	for _, m := range mutate {
		m(l)
	}
	out, err := st.CreateLead(context.Background(), l)
	require.NoError(t, err)
	return out
}

func statusPtr(s model.Status) *model.Status { return &s }
func boolPtr(b bool) *bool                   { return &b }
func timePtr(t time.Time) *time.Time         { return &t }

// --- Leads ---

func TestSQLite_CreateAndGetLead(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created := seedLead(t, st, "url:abc.example", func(l *model.Lead) {
		l.Website = model.Ptr("https://abc.example")
		l.Source = "google"
	})
	assert.NotZero(t, created.ID)
	assert.Equal(t, model.StatusNew, created.Status)

	got, err := st.GetLead(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme url:abc.example", model.Deref(got.BusinessName))
	assert.Equal(t, "https://abc.example", model.Deref(got.Website))
	assert.Nil(t, got.Email)
	assert.Nil(t, got.Phone)
	assert.Nil(t, got.EmailSentAt)
	assert.Equal(t, model.StatusNew, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLite_CreateLead_DuplicateKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedLead(t, st, "url:abc.example")

	_, err := st.CreateLead(context.Background(), &model.Lead{
		Niche: "bakery", Location: "Springfield", DedupKey: "url:abc.example",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	exists, err := st.DedupKeysExist(context.Background(), []string{"url:abc.example"})
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = st.DedupKeysExist(context.Background(), []string{"url:other.example"})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLite_CreateLead_IdentityKeys(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := seedLead(t, st, "url:abc.example", func(l *model.Lead) {
		l.IdentityKeys = []string{"url:abc.example", "place:google:G1", "name:abc bakery|1 main st"}
	})
	assert.Len(t, first.IdentityKeys, 3)

	exists, err := st.DedupKeysExist(ctx, []string{"place:osm:node/9", "name:abc bakery|1 main st"})
	require.NoError(t, err)
	assert.True(t, exists)

	// A lead sharing any secondary key is rejected as a whole.
	_, err = st.CreateLead(ctx, &model.Lead{
		Niche: "bakery", Location: "Springfield", DedupKey: "place:osm:node/9",
		IdentityKeys: []string{"name:abc bakery|1 main st"},
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	exists, err = st.DedupKeysExist(ctx, []string{"place:osm:node/9"})
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, st.DeleteLead(ctx, first.ID))
	exists, err = st.DedupKeysExist(ctx, []string{"place:google:G1"})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	seedLead(t, st, "url:abc.example")
	require.NoError(t, st.Migrate(context.Background()))

	exists, err := st.DedupKeysExist(context.Background(), []string{"url:abc.example"})
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLite_GetLead_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetLead(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSQLite_GetLeadByEmail_CaseInsensitive(t *testing.T) {
	st := newTestSQLiteStore(t)
	lead := seedLead(t, st, "k1", func(l *model.Lead) { l.Email = model.Ptr("Info@Acme.example") })

	got, err := st.GetLeadByEmail(context.Background(), " info@acme.EXAMPLE ")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, got.ID)

	_, err = st.GetLeadByEmail(context.Background(), "nobody@acme.example")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSQLite_ListLeads_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	withEmail := seedLead(t, st, "a", func(l *model.Lead) { l.Email = model.Ptr("a@x.example") })
	noEmail := seedLead(t, st, "b")
	other := seedLead(t, st, "c", func(l *model.Lead) {
		l.Niche = "dentist"
		l.Email = model.Ptr("c@x.example")
		l.Phone = model.Ptr("+15550001111")
	})

	leads, err := st.ListLeads(ctx, LeadFilter{Statuses: []model.Status{model.StatusNew}, HasEmail: boolPtr(true)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{withEmail.ID, other.ID}, ids(leads))

	leads, err = st.ListLeads(ctx, LeadFilter{HasEmail: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, []int64{noEmail.ID}, ids(leads))

	leads, err = st.ListLeads(ctx, LeadFilter{Niche: "DENTIST"})
	require.NoError(t, err)
	assert.Equal(t, []int64{other.ID}, ids(leads))

	leads, err = st.ListLeads(ctx, LeadFilter{MissingContact: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{withEmail.ID, noEmail.ID}, ids(leads))

	leads, err = st.ListLeads(ctx, LeadFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{noEmail.ID}, ids(leads))
}

func TestSQLite_ListLeads_EnrichDue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	old := seedLead(t, st, "old")
	recent := seedLead(t, st, "recent")
	fresh := seedLead(t, st, "fresh")

	now := time.Now().UTC()
	_, err := st.UpdateLead(ctx, old.ID, LeadPatch{EnrichAttemptedAt: timePtr(now.Add(-48 * time.Hour))})
	require.NoError(t, err)
	_, err = st.UpdateLead(ctx, recent.ID, LeadPatch{EnrichAttemptedAt: timePtr(now.Add(-time.Minute))})
	require.NoError(t, err)

	before := now.Add(-time.Hour)
	leads, err := st.ListLeads(ctx, LeadFilter{
		MissingContact:   true,
		EnrichDueBefore:  &before,
		OrderByEnrichDue: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{fresh.ID, old.ID}, ids(leads))

	got, err := st.GetLead(ctx, old.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EnrichAttemptedAt)
}

func TestSQLite_ListLeads_AwaitingReply(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	waiting := seedLead(t, st, "w")
	answered := seedLead(t, st, "a")
	seedLead(t, st, "none")

	_, err := st.AppendTurn(ctx, waiting.ID, model.RoleUser, "hi")
	require.NoError(t, err)
	_, err = st.AppendTurn(ctx, answered.ID, model.RoleUser, "hi")
	require.NoError(t, err)
	_, err = st.AppendTurn(ctx, answered.ID, model.RoleAssistant, "hello")
	require.NoError(t, err)

	leads, err := st.ListLeads(ctx, LeadFilter{AwaitingReply: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{waiting.ID}, ids(leads))
}

func TestSQLite_UpdateLead_CompareAndSet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	lead := seedLead(t, st, "k")
	now := time.Now().UTC()

	updated, err := st.UpdateLead(ctx, lead.ID, LeadPatch{
		EmailSent:     boolPtr(true),
		EmailSentAt:   &now,
		LastContacted: &now,
		Status:        statusPtr(model.StatusContacted),
		ExpectStatus:  statusPtr(model.StatusNew),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusContacted, updated.Status)
	assert.True(t, updated.EmailSent)
	require.NotNil(t, updated.EmailSentAt)
	assert.WithinDuration(t, now, *updated.EmailSentAt, time.Second)
	assert.True(t, !updated.UpdatedAt.Before(lead.UpdatedAt))

	// Same CAS again loses: status is no longer new.
	_, err = st.UpdateLead(ctx, lead.ID, LeadPatch{
		Status:       statusPtr(model.StatusContacted),
		ExpectStatus: statusPtr(model.StatusNew),
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStale))

	_, err = st.UpdateLead(ctx, 12345, LeadPatch{Status: statusPtr(model.StatusContacted)})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSQLite_UpdateLead_RequireNoPrototype(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	lead := seedLead(t, st, "k", func(l *model.Lead) { l.Status = model.StatusRepliedYes })

	patch := LeadPatch{
		PrototypeURL:       model.Ptr("https://sites.example/1.html"),
		PrototypeCreated:   boolPtr(true),
		RequireNoPrototype: true,
	}
	_, err := st.UpdateLead(ctx, lead.ID, patch)
	require.NoError(t, err)

	_, err = st.UpdateLead(ctx, lead.ID, patch)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStale))
	assert.Contains(t, err.Error(), "already has a prototype")

	cleared, err := st.UpdateLead(ctx, lead.ID, LeadPatch{ClearPrototype: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.PrototypeURL)
	assert.False(t, cleared.PrototypeCreated)
}

func TestSQLite_UpdateLead_ReplyCountDelta(t *testing.T) {
	st := newTestSQLiteStore(t)
	lead := seedLead(t, st, "k")

	for i := 0; i < 3; i++ {
		_, err := st.UpdateLead(context.Background(), lead.ID, LeadPatch{ReplyCountDelta: 1})
		require.NoError(t, err)
	}
	got, err := st.GetLead(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ReplyCount)
}

func TestSQLite_FillContact_NeverOverwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	lead := seedLead(t, st, "k", func(l *model.Lead) { l.Email = model.Ptr("owner@acme.example") })

	got, err := st.FillContact(ctx, lead.ID, model.EnrichmentResult{
		Email: "info@acme.example",
		Phone: "+919876543210",
	})
	require.NoError(t, err)
	assert.Equal(t, "owner@acme.example", model.Deref(got.Email))
	assert.Equal(t, "+919876543210", model.Deref(got.Phone))

	got, err = st.FillContact(ctx, lead.ID, model.EnrichmentResult{Phone: "+910000000000"})
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", model.Deref(got.Phone))

	_, err = st.FillContact(ctx, 999, model.EnrichmentResult{Email: "x@y.example"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSQLite_UpdateLead_EmptyClearsAndEmailSent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	lead := seedLead(t, st, "k", func(l *model.Lead) { l.Email = model.Ptr("a@x.example") })

	empty := ""
	sentAt := time.Now().UTC()
	got, err := st.UpdateLead(ctx, lead.ID, LeadPatch{EmailSent: boolPtr(true), EmailSentAt: &sentAt})
	require.NoError(t, err)
	assert.True(t, got.EmailSent)

	got, err = st.UpdateLead(ctx, lead.ID, LeadPatch{Email: &empty, ClearEmailSent: true})
	require.NoError(t, err)
	assert.Nil(t, got.Email)
	assert.False(t, got.EmailSent)
	assert.Nil(t, got.EmailSentAt)
}

func TestSQLite_DeleteLead(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	lead := seedLead(t, st, "k")
	_, err := st.AppendTurn(ctx, lead.ID, model.RoleUser, "hi")
	require.NoError(t, err)

	require.NoError(t, st.DeleteLead(ctx, lead.ID))

	_, err = st.GetLead(ctx, lead.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	turns, err := st.ListTurns(ctx, lead.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)

	err = st.DeleteLead(ctx, lead.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

// --- Conversation ---

func TestSQLite_AppendTurn_Ordered(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	lead := seedLead(t, st, "k")

	t1, err := st.AppendTurn(ctx, lead.ID, model.RoleUser, "first")
	require.NoError(t, err)
	t2, err := st.AppendTurn(ctx, lead.ID, model.RoleAssistant, "second")
	require.NoError(t, err)
	assert.Equal(t, 1, t1.Seq)
	assert.Equal(t, 2, t2.Seq)

	got, err := st.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 2)
	assert.Equal(t, "first", got.Turns[0].Content)
	assert.Equal(t, model.RoleAssistant, got.Turns[1].Role)

	_, err = st.AppendTurn(ctx, 999, model.RoleUser, "orphan")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

// --- Audit ---

func TestSQLite_Campaigns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	lead := seedLead(t, st, "k")

	c := &model.EmailCampaign{LeadID: lead.ID, Subject: "Hi", Body: "Body", Status: model.CampaignFailed, Error: "smtp down"}
	require.NoError(t, st.RecordCampaign(ctx, c))
	assert.NotZero(t, c.ID)
	require.NoError(t, st.RecordCampaign(ctx, &model.EmailCampaign{LeadID: lead.ID, Subject: "Hi", Body: "Body", Status: model.CampaignSent}))

	got, err := st.ListCampaigns(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.CampaignFailed, got[0].Status)
	assert.Equal(t, "smtp down", got[0].Error)
	assert.Equal(t, model.CampaignSent, got[1].Status)
}

func TestSQLite_Prototypes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	lead := seedLead(t, st, "k")

	content := json.RawMessage(`{"title":"Acme"}`)
	require.NoError(t, st.RecordPrototype(ctx, lead.ID, "https://sites.example/1.html", content))

	got, err := st.ListPrototypes(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://sites.example/1.html", got[0].URL)
	assert.JSONEq(t, `{"title":"Acme"}`, string(got[0].Content))
}

func TestSQLite_MarkMessageProcessed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	lead := seedLead(t, st, "k")

	first, err := st.MarkMessageProcessed(ctx, "<m1@mail>", lead.ID)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := st.MarkMessageProcessed(ctx, "<m1@mail>", lead.ID)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestSQLite_Stats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedLead(t, st, "a")
	c := seedLead(t, st, "b")
	y := seedLead(t, st, "c")
	_, err := st.UpdateLead(ctx, c.ID, LeadPatch{EmailSent: boolPtr(true), Status: statusPtr(model.StatusContacted)})
	require.NoError(t, err)
	_, err = st.UpdateLead(ctx, y.ID, LeadPatch{
		EmailSent: boolPtr(true), PrototypeCreated: boolPtr(true), Status: statusPtr(model.StatusPrototypeSent),
	})
	require.NoError(t, err)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.EmailsSent)
	assert.Equal(t, 1, stats.WebsitesCreated)
	assert.Equal(t, 1, stats.StatusBreakdown[model.StatusNew])
	assert.Equal(t, 0, stats.StatusBreakdown[model.StatusRepliedNo])
	assert.InDelta(t, 0.5, stats.ConversionRate, 0.001)
}

func ids(leads []model.Lead) []int64 {
	out := make([]int64, len(leads))
	for i, l := range leads {
		out[i] = l.ID
	}
	return out
}
