package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/pkg/anthropic"
	"github.com/sells-group/prospect-cli/pkg/openrouter"
)

func testGuard() *resilience.Guard {
	return &resilience.Guard{Name: "test", Retry: resilience.RetryConfig{MaxAttempts: 1}}
}

type fakeAnthropic struct {
	req  anthropic.MessageRequest
	resp *anthropic.MessageResponse
	err  error
}

func (f *fakeAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestAnthropicChat(t *testing.T) {
	client := &fakeAnthropic{resp: &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "  Happy to help.  "}},
	}}
	g := NewAnthropic(client, testGuard(), "claude-test")

	out, err := g.Chat(context.Background(), "be nice", []model.Turn{
		{Role: model.RoleAssistant, Content: "Here is your site"},
		{Role: model.RoleUser, Content: "Thanks!"},
	}, 100)
	require.NoError(t, err)
	assert.Equal(t, "Happy to help.", out)
	assert.Equal(t, "be nice\n\nYour first message to them was:\nHere is your site", client.req.System)
	assert.Equal(t, "claude-test", client.req.Model)
	require.Len(t, client.req.Messages, 1)
	assert.Equal(t, "user", client.req.Messages[0].Role)
}

func TestAlternate(t *testing.T) {
	msgs, opening := alternate([]model.Turn{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleUser, Content: "are you there?"},
		{Role: model.RoleAssistant, Content: "yes"},
		{Role: model.RoleUser, Content: "great"},
	})
	assert.Empty(t, opening)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hi\n\nare you there?", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "great", msgs[2].Content)
}

func TestAnthropicGenerate_Errors(t *testing.T) {
	empty := NewAnthropic(&fakeAnthropic{resp: &anthropic.MessageResponse{}}, testGuard(), "m")
	_, err := empty.Generate(context.Background(), "p", 10)
	assert.ErrorContains(t, err, "empty completion")

	failing := NewAnthropic(&fakeAnthropic{err: errors.New("boom")}, testGuard(), "m")
	_, err = failing.Generate(context.Background(), "p", 10)
	assert.True(t, apperr.Is(err, apperr.KindProviderUnavailable))
}

type fakeOpenRouter struct {
	req  openrouter.ChatCompletionRequest
	resp *openrouter.ChatCompletionResponse
	err  error
}

func (f *fakeOpenRouter) ChatCompletion(_ context.Context, req openrouter.ChatCompletionRequest) (*openrouter.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestOpenRouterChat(t *testing.T) {
	client := &fakeOpenRouter{resp: &openrouter.ChatCompletionResponse{
		Choices: []openrouter.Choice{{Message: openrouter.Message{Role: "assistant", Content: "Sure."}}},
	}}
	g := NewOpenRouter(client, testGuard())

	out, err := g.Chat(context.Background(), "sys", []model.Turn{{Role: model.RoleUser, Content: "hi"}}, 64)
	require.NoError(t, err)
	assert.Equal(t, "Sure.", out)
	require.Len(t, client.req.Messages, 2)
	assert.Equal(t, "system", client.req.Messages[0].Role)
	require.NotNil(t, client.req.MaxTokens)
	assert.Equal(t, 64, *client.req.MaxTokens)
}

func TestNewGenerator(t *testing.T) {
	cfg := &config.Config{}

	g, err := NewGenerator(cfg)
	require.NoError(t, err)
	assert.Nil(t, g)

	cfg.Generate.Backend = BackendAnthropic
	_, err = NewGenerator(cfg)
	assert.Error(t, err, "missing key")

	cfg.Anthropic.Key = "k"
	g, err = NewGenerator(cfg)
	require.NoError(t, err)
	assert.Equal(t, BackendAnthropic, g.Name())

	cfg.Generate.Backend = BackendOpenRouter
	cfg.OpenRouter.Key = "k"
	g, err = NewGenerator(cfg)
	require.NoError(t, err)
	assert.Equal(t, BackendOpenRouter, g.Name())

	cfg.Generate.Backend = "gpt-local"
	_, err = NewGenerator(cfg)
	assert.Error(t, err)
}
