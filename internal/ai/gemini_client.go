package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/edgard/awaybot/internal/config"
)

// geminiClient sends the persona as a system instruction and the turn as a
// single user content.
type geminiClient struct {
	genaiClient *genai.Client
	log         *slog.Logger
}

func newGeminiClient(ctx context.Context, cfg config.AIConfig, log *slog.Logger) (*geminiClient, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	gi, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized", "model", cfg.Model)
	return &geminiClient{genaiClient: gi, log: logger}, nil
}

func (c *geminiClient) Name() string { return "gemini" }

func (c *geminiClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	var system []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
	}
	if len(system) > 0 {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
		}
	}

	resp, err := c.genaiClient.Models.GenerateContent(ctx, req.Model, contents, genCfg)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	if resp.UsageMetadata != nil {
		c.log.DebugContext(ctx, "Completion received",
			"model", req.Model,
			"total_tokens", resp.UsageMetadata.TotalTokenCount)
	}
	return strings.TrimSpace(resp.Text()), nil
}
