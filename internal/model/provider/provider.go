package provider

import (
	"context"
	"fmt"

	"github.com/dgallion1/docsum/internal/config"
	"github.com/dgallion1/docsum/internal/model"
	"github.com/dgallion1/docsum/internal/model/anthropic"
	"github.com/dgallion1/docsum/internal/model/gemini"
	"github.com/dgallion1/docsum/internal/model/openai"
)

// New builds the provider named in cfg. The returned func releases its resources.
func New(ctx context.Context, cfg config.Config) (model.Provider, func(), error) {
	switch cfg.Provider {
	case "openai":
		return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), func() {}, nil
	case "anthropic":
		c := anthropic.New(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.MaxTokens)
		return c, c.Close, nil
	case "gemini":
		c, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
}
