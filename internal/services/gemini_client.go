package services

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"agent-architect/backend/internal/logging"
)

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// GeminiClient is a Gemini implementation of LanguageModel.
type GeminiClient struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
	logger *logging.Logger
}

// NewGeminiClient creates a new GeminiClient.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *logging.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(cfg.Temperature),
		TopP:        genai.Ptr(cfg.TopP),
		TopK:        genai.Ptr(cfg.TopK),
	}
	if cfg.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = cfg.MaxOutputTokens
	}
	return &GeminiClient{client: client, model: cfg.Model, config: genCfg, logger: logger}, nil
}

// Generate sends prompt as a single user turn and returns the response text.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if u := resp.UsageMetadata; u != nil {
		c.logger.Debug("gemini usage",
			"model", c.model,
			"prompt_tokens", u.PromptTokenCount,
			"output_tokens", u.CandidatesTokenCount)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned an empty response")
	}
	return text, nil
}
