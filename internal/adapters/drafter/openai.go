package drafter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"reviewflow/internal/domain"
)

// OpenAI drafts replies through any OpenAI-compatible chat endpoint
// (hosted OpenAI or a local server).
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(baseURL, apiKey, model string) (*OpenAI, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (o *OpenAI) GenerateReply(ctx context.Context, pc domain.PromptContext) (string, error) {
	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage(pc.BusinessName)},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(pc)},
		},
		Temperature: 0.7,
	})
	if err != nil {
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("draft generation failed")
		return "", fmt.Errorf("draft generation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
