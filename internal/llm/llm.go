package llm

import "context"

// Chat is the single-shot interface implemented by every backend adapter.
type Chat interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Stream is a finite, one-shot sequence of text chunks. It is consumed with
// range-over-func, exactly once; it is not restartable.
type Stream func(yield func(string, error) bool)

// Streamer is implemented by backends that can produce output incrementally.
// The synthesis stage is the only consumer.
type Streamer interface {
	Stream(ctx context.Context, prompt string) Stream
}
