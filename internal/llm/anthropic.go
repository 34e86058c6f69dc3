package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
)

type Anthropic struct {
	client *anthropic.LLM
	temp   float64
}

func NewAnthropic(apiKey, model string, temp float64) (*Anthropic, error) {
	client, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("could not create Anthropic client: %w", err)
	}
	return &Anthropic{client: client, temp: temp}, nil
}

func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := a.client.GenerateContent(ctx, messages, llms.WithTemperature(a.temp))
	if err != nil {
		return "", fmt.Errorf("anthropic generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anthropic returned no choices")
	}

	return resp.Choices[0].Content, nil
}
