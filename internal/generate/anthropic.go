package generate

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/pkg/anthropic"
)

// Anthropic generates text with Claude models.
type Anthropic struct {
	client anthropic.Client
	guard  *resilience.Guard
	model  string
}

// NewAnthropic creates an Anthropic-backed Generator.
func NewAnthropic(client anthropic.Client, guard *resilience.Guard, model string) *Anthropic {
	return &Anthropic{client: client, guard: guard, model: model}
}

func (a *Anthropic) Name() string { return BackendAnthropic }

func (a *Anthropic) Generate(ctx context.Context, prompt string, maxTokens int64) (string, error) {
	return a.send(ctx, "", []anthropic.Message{{Role: "user", Content: prompt}}, maxTokens, "generate")
}

func (a *Anthropic) Chat(ctx context.Context, system string, history []model.Turn, maxTokens int64) (string, error) {
	msgs, opening := alternate(history)
	if opening != "" {
		system += "\n\nYour first message to them was:\n" + opening
	}
	return a.send(ctx, system, msgs, maxTokens, "chat")
}

// alternate shapes history for the Messages API, which wants strictly
// alternating roles starting with the user. Consecutive turns of one role are
// joined; assistant turns before the first user turn are returned separately.
func alternate(history []model.Turn) ([]anthropic.Message, string) {
	var (
		msgs    []anthropic.Message
		opening []string
	)
	for _, t := range history {
		role := string(t.Role)
		if len(msgs) == 0 && t.Role == model.RoleAssistant {
			opening = append(opening, t.Content)
			continue
		}
		if n := len(msgs); n > 0 && msgs[n-1].Role == role {
			msgs[n-1].Content += "\n\n" + t.Content
			continue
		}
		msgs = append(msgs, anthropic.Message{Role: role, Content: t.Content})
	}
	return msgs, strings.Join(opening, "\n\n")
}

func (a *Anthropic) send(ctx context.Context, system string, msgs []anthropic.Message, maxTokens int64, purpose string) (string, error) {
	if len(msgs) == 0 {
		return "", eris.New("anthropic: no messages")
	}
	resp, err := resilience.Call(ctx, a.guard, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     a.model,
			MaxTokens: maxTokens,
			System:    system,
			Messages:  msgs,
		})
	})
	if err != nil {
		return "", err
	}
	resp.Usage.Log(a.model, purpose)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("anthropic: empty completion")
	}
	return text, nil
}
