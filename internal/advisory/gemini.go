package advisory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiConfig holds the model settings
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	TopP        float32
}

// DefaultGeminiConfig returns the model settings used by the dashboard
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Model:       "gemini-3-flash-preview",
		Temperature: 0.7,
		TopP:        0.9,
	}
}

// GeminiAnalyzer implements Analyzer with the Gemini API
type GeminiAnalyzer struct {
	client *genai.Client
	cfg    GeminiConfig
	logger zerolog.Logger
}

// NewGeminiAnalyzer creates a Gemini API client
func NewGeminiAnalyzer(ctx context.Context, cfg GeminiConfig, logger zerolog.Logger) (*GeminiAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	defaults := DefaultGeminiConfig()
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger.Info().Str("model", cfg.Model).Msg("Gemini analyzer ready")
	return &GeminiAnalyzer{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Analyze implements Analyzer
func (g *GeminiAnalyzer) Analyze(ctx context.Context, q Query) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(BuildPrompt(q)), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.cfg.Temperature),
		TopP:        genai.Ptr(g.cfg.TopP),
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}
