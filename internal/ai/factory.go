package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgard/awaybot/internal/config"
)

// NewCompleter creates the backend selected by cfg.Provider. It returns a nil
// Completer and no error when no API key is configured; the Responder then
// runs in degraded mode.
func NewCompleter(ctx context.Context, cfg config.AIConfig, log *slog.Logger) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}

	switch cfg.Provider {
	case "openai":
		return newOpenAIClient(cfg, log), nil
	case "gemini":
		client, err := newGeminiClient(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.Provider)
	}
}
