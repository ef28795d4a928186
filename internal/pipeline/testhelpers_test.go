package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testConfig() *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{BatchSize: 50, LeadTimeoutSecs: 5},
		Sender:   config.SenderConfig{Name: "Asha", Email: "asha@studio.test", Company: "Pixel Studio"},
		Reply:    config.ReplyConfig{Affirmative: DefaultAffirmative},
	}
}

func seedLead(t *testing.T, st store.Store, key string, mutate ...func(*model.Lead)) *model.Lead {
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

func getLead(t *testing.T, st store.Store, id int64) *model.Lead {
	t.Helper()
	l, err := st.GetLead(context.Background(), id)
	require.NoError(t, err)
	return l
}

func withEmail(email string) func(*model.Lead) {
	return func(l *model.Lead) { l.Email = model.Ptr(email) }
}

func withStatus(s model.Status) func(*model.Lead) {
	return func(l *model.Lead) { l.Status = s }
}

// --- fakes ---

type fakeProvider struct {
	name       string
	candidates []model.DiscoveredCandidate
	err        error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(_ context.Context, _ discovery.Request) ([]model.DiscoveredCandidate, error) {
	return f.candidates, f.err
}

type fakeEnricher struct {
	mu     sync.Mutex
	result model.EnrichmentResult
	calls  int
}

func (f *fakeEnricher) Enrich(_ context.Context, lead *model.Lead) model.EnrichmentResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out model.EnrichmentResult
	if lead.Email == nil {
		out.Email, out.EmailSource = f.result.Email, f.result.EmailSource
	}
	if lead.Phone == nil {
		out.Phone, out.PhoneSource = f.result.Phone, f.result.PhoneSource
	}
	return out
}

type sentMail struct {
	To, Subject, Body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeFetcher struct {
	msgs []model.InboundMessage
	err  error
}

func (f *fakeFetcher) FetchUnread(_ context.Context) ([]model.InboundMessage, error) {
	return f.msgs, f.err
}

type fakePublisher struct {
	mu      sync.Mutex
	builds  int
	removed []string
	err     error
	failFor map[int64]bool
}

func (f *fakePublisher) Build(_ context.Context, lead *model.Lead, _ model.SiteContent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.failFor[lead.ID] {
		return "", fmt.Errorf("build failed for lead %d", lead.ID)
	}
	f.builds++
	return fmt.Sprintf("https://sites.test/%d-%d.html", lead.ID, f.builds), nil
}

func (f *fakePublisher) Remove(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, url)
	return nil
}

// failingUpdates wraps a store and rejects lead updates.
type failingUpdates struct {
	store.Store
	err error
}

func (f *failingUpdates) UpdateLead(_ context.Context, _ int64, _ store.LeadPatch) (*model.Lead, error) {
	return nil, f.err
}
