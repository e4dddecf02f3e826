package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// TextGenerator is the language-model collaborator used for conversation
// classification, context planning and memorability analysis. Every call
// is bounded by the caller's context; failures degrade to heuristics.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, maxTokens int32) (string, error)
}

// GeminiService wraps the Gemini API behind TextGenerator
type GeminiService struct {
	client *genai.Client
	model  string
}

// NewGeminiService creates a Gemini-backed text generator
func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: %w", ErrValidation)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiService{client: client, model: model}, nil
}

// GenerateText sends a single-turn prompt and returns the text response
func (s *GeminiService) GenerateText(ctx context.Context, prompt string, maxTokens int32) (string, error) {
	model := s.client.GenerativeModel(s.model)
	if maxTokens > 0 {
		model.SetMaxOutputTokens(maxTokens)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: gemini generation failed: %v", ErrCollaboratorUnavailable, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates returned", ErrCollaboratorUnavailable)
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}

	return out.String(), nil
}

// Close releases the underlying client
func (s *GeminiService) Close() error {
	return s.client.Close()
}
