package generate

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/pkg/openrouter"
)

// OpenRouter generates text through any model routed by OpenRouter.
type OpenRouter struct {
	client openrouter.Client
	guard  *resilience.Guard
}

// NewOpenRouter creates an OpenRouter-backed Generator.
func NewOpenRouter(client openrouter.Client, guard *resilience.Guard) *OpenRouter {
	return &OpenRouter{client: client, guard: guard}
}

func (o *OpenRouter) Name() string { return BackendOpenRouter }

func (o *OpenRouter) Generate(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	return o.send(ctx, []openrouter.Message{{Role: "user", Content: prompt}}, maxTokens)
}

func (o *OpenRouter) Chat(ctx context.Context, system string, history []model.Turn, maxTokens int64) (string, error) {
	msgs := make([]openrouter.Message, 0, len(history)+1)
	if system != "" {
		msgs = append(msgs, openrouter.Message{Role: "system", Content: system})
	}
	for _, t := range history {
		msgs = append(msgs, openrouter.Message{Role: string(t.Role), Content: t.Content})
	}
	return o.send(ctx, msgs, maxTokens)
}

func (o *OpenRouter) send(ctx context.Context, msgs []openrouter.Message, maxTokens int64) (string, error) {
	mt := int(maxTokens)
	resp, err := resilience.Call(ctx, o.guard, func(ctx context.Context) (*openrouter.ChatCompletionResponse, error) {
		return o.client.ChatCompletion(ctx, openrouter.ChatCompletionRequest{
			Messages:  msgs,
			MaxTokens: &mt,
		})
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("openrouter: empty completion")
	}
	return text, nil
}
