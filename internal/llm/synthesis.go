package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// SynthesisOpenAI is the streaming adapter used by the synthesis stage. It
// wraps the openai-go client directly because langchaingo does not expose the
// raw chunk stream.
type SynthesisOpenAI struct {
	client openai.Client
	model  string
	temp   float64
}

func NewSynthesisOpenAI(apiKey, model string, temp float64) *SynthesisOpenAI {
	return &SynthesisOpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		temp:   temp,
	}
}

func (s *SynthesisOpenAI) Stream(ctx context.Context, prompt string) Stream {
	return func(yield func(string, error) bool) {
		stream := s.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model:       s.model,
			Temperature: openai.Float(s.temp),
		})
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				if !yield(content, nil) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			yield("", err)
		}
	}
}
