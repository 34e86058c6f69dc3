package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

type GoogleAI struct {
	client *googleai.GoogleAI
	temp   float64
}

func NewGoogleAI(ctx context.Context, apiKey, model string, temp float64) (*GoogleAI, error) {
	client, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(model))
	if err != nil {
		return nil, fmt.Errorf("could not create GoogleAI client: %w", err)
	}
	return &GoogleAI{client: client, temp: temp}, nil
}

func (g *GoogleAI) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := g.client.GenerateContent(ctx, messages, llms.WithTemperature(g.temp))
	if err != nil {
		return "", fmt.Errorf("googleai generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("googleai returned no choices")
	}

	return resp.Choices[0].Content, nil
}
