package drafter

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"reviewflow/internal/domain"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini drafts replies through the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) GenerateReply(ctx context.Context, pc domain.PromptContext) (string, error) {
	prompt := systemMessage(pc.BusinessName) + "\n\n" + buildPrompt(pc)

	resp, err := g.client.Models.GenerateContent(ctx,
		g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.7)},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty gemini response")
	}
	return text, nil
}
