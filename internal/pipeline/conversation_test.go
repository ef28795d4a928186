package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/generate"
	"github.com/sells-group/prospect-cli/internal/model"
)

type fakeGenerator struct {
	answer  string
	err     error
	history []model.Turn
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(_ context.Context, _ string, _ int64) (string, error) {
	return f.answer, f.err
}

func (f *fakeGenerator) Chat(_ context.Context, _ string, history []model.Turn, _ int64) (string, error) {
	f.history = history
	return f.answer, f.err
}

func conversationLead(t *testing.T, p *Pipeline, key string, status model.Status, turns ...model.Turn) *model.Lead {
	t.Helper()
	lead := seedLead(t, p.store, key, withEmail("owner@"+key), withStatus(status))
	for _, turn := range turns {
		_, err := p.store.AppendTurn(context.Background(), lead.ID, turn.Role, turn.Content)
		require.NoError(t, err)
	}
	return lead
}

func TestConverse_AnswersAndPromotes(t *testing.T) {
	gen := &fakeGenerator{answer: "Sure, I can make it blue."}
	sender := &fakeSender{}
	cfg := testConfig()
	p := New(cfg, Deps{
		Store:    newTestStore(t),
		Sender:   sender,
		Composer: generate.NewComposer(gen, cfg.Sender, 200),
	})
	lead := conversationLead(t, p, "conv.example", model.StatusPrototypeSent,
		model.Turn{Role: model.RoleAssistant, Content: "Here is your prototype"},
		model.Turn{Role: model.RoleUser, Content: "Can it be blue?"},
	)

	rep, err := p.Converse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)

	got := getLead(t, p.store, lead.ID)
	assert.Equal(t, model.StatusInConversation, got.Status)
	require.Len(t, got.Turns, 3)
	assert.Equal(t, model.RoleAssistant, got.Turns[2].Role)
	assert.Equal(t, "Sure, I can make it blue.", got.Turns[2].Content)
	assert.Equal(t, 3, got.Turns[2].Seq)
	assert.Len(t, gen.history, 2)

	require.Equal(t, 1, sender.count())
	assert.Equal(t, "Sure, I can make it blue.", sender.sent[0].Body)

	// Nothing left to answer.
	rep, err = p.Converse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Selected)
}

func TestConverse_SelfLoopInConversation(t *testing.T) {
	p := New(testConfig(), Deps{Store: newTestStore(t)})
	lead := conversationLead(t, p, "loop.example", model.StatusInConversation,
		model.Turn{Role: model.RoleUser, Content: "one more question"},
	)

	rep, err := p.Converse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)

	got := getLead(t, p.store, lead.ID)
	assert.Equal(t, model.StatusInConversation, got.Status)
	require.Len(t, got.Turns, 2)
	assert.Contains(t, got.Turns[1].Content, "Thanks for getting back to me")
}

func TestConverse_SkipsLeadsWithNothingToAnswer(t *testing.T) {
	p := New(testConfig(), Deps{Store: newTestStore(t)})
	conversationLead(t, p, "none.example", model.StatusPrototypeSent)
	conversationLead(t, p, "answered.example", model.StatusInConversation,
		model.Turn{Role: model.RoleUser, Content: "hi"},
		model.Turn{Role: model.RoleAssistant, Content: "hello"},
	)
	conversationLead(t, p, "wrongstatus.example", model.StatusRepliedYes,
		model.Turn{Role: model.RoleUser, Content: "hi"},
	)

	rep, err := p.Converse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Selected)
}

func TestConverse_BackendFailureKeepsTurns(t *testing.T) {
	cfg := testConfig()
	p := New(cfg, Deps{
		Store:    newTestStore(t),
		Composer: generate.NewComposer(&fakeGenerator{err: errors.New("overloaded")}, cfg.Sender, 200),
	})
	lead := conversationLead(t, p, "down.example", model.StatusPrototypeSent,
		model.Turn{Role: model.RoleUser, Content: "hello?"},
	)

	rep, err := p.Converse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)

	got := getLead(t, p.store, lead.ID)
	assert.Equal(t, model.StatusPrototypeSent, got.Status)
	require.Len(t, got.Turns, 1)
	assert.Equal(t, "hello?", got.Turns[0].Content)
}
