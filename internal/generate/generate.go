// Package generate produces outreach copy, prototype site content and
// conversation replies. An AI backend is used when configured; every
// operation has a deterministic template fallback.
package generate

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
	"github.com/sells-group/prospect-cli/pkg/anthropic"
	"github.com/sells-group/prospect-cli/pkg/openrouter"
)

// Backend names accepted in generate.backend.
const (
	BackendTemplate   = "template"
	BackendAnthropic  = "anthropic"
	BackendOpenRouter = "openrouter"
)

// Generator is a text generation backend.
type Generator interface {
	Name() string
	// Generate completes a single prompt.
	Generate(ctx context.Context, prompt string, maxTokens int64) (string, error)
	// Chat continues a conversation given a system prompt and prior turns.
	Chat(ctx context.Context, system string, history []model.Turn, maxTokens int64) (string, error)
}

// NewGenerator builds the configured backend. The template backend returns
// a nil Generator, which makes Composer use templates only.
func NewGenerator(cfg *config.Config) (Generator, error) {
	switch strings.ToLower(cfg.Generate.Backend) {
	case "", BackendTemplate:
		return nil, nil
	case BackendAnthropic:
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("generate: anthropic.key is required for the anthropic backend")
		}
		guard := resilience.NewGuard(BackendAnthropic, 0, cfg.Retry)
		return NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), guard, cfg.Anthropic.Model), nil
	case BackendOpenRouter:
		if cfg.OpenRouter.Key == "" {
			return nil, eris.New("generate: openrouter.key is required for the openrouter backend")
		}
		client := openrouter.NewClient(cfg.OpenRouter.Key,
			openrouter.WithBaseURL(cfg.OpenRouter.BaseURL),
			openrouter.WithModel(cfg.OpenRouter.Model))
		guard := resilience.NewGuard(BackendOpenRouter, 0, cfg.Retry)
		return NewOpenRouter(client, guard), nil
	default:
		return nil, eris.Errorf("generate: unknown backend %q", cfg.Generate.Backend)
	}
}
