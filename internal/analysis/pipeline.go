package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mediai-backend/internal/llm"
)

// Backend names double as the role tag on persisted messages. The claude slot
// currently points at a Gemini model; the name is kept for continuity with
// existing conversations.
const (
	BackendGPT4   = "gpt4"
	BackendClaude = "claude"
	BackendGemini = "gemini"
)

// DefaultCallTimeout is the per-backend deadline enforced by the coordinator,
// not by the adapters.
const DefaultCallTimeout = 120 * time.Second

type Backend struct {
	Name  string
	Model llm.Chat
}

// BackendResult is the typed outcome of one fan-out call. A failed call is
// carried as content, never as a task-level error.
type BackendResult struct {
	Backend string
	Text    string
	Err     error
}

// Content returns the persistable text: the answer on success, a placeholder
// tagged with the backend name on failure.
func (r BackendResult) Content() string {
	if r.Err != nil {
		return fmt.Sprintf("Erreur %s : %v", r.Backend, r.Err)
	}
	return r.Text
}

// Pipeline runs the fan-out over the three independent backends and the
// streaming synthesis call. It owns no persistence; the Runner does.
type Pipeline struct {
	backends    []Backend
	synthesis   llm.Streamer
	callTimeout time.Duration
}

func NewPipeline(backends []Backend, synthesis llm.Streamer) *Pipeline {
	return &Pipeline{
		backends:    backends,
		synthesis:   synthesis,
		callTimeout: DefaultCallTimeout,
	}
}

// WithCallTimeout overrides the per-backend deadline. Used by tests.
func (p *Pipeline) WithCallTimeout(timeout time.Duration) *Pipeline {
	p.callTimeout = timeout
	return p
}

// FanOut dispatches the prompt to every backend concurrently and blocks until
// all calls resolve. Results are returned in completion order and always
// contain one entry per backend: a failure (timeout, transport error) is
// converted to an error placeholder and never aborts the sibling calls.
func (p *Pipeline) FanOut(ctx context.Context, prompt string) []BackendResult {
	completed := runInPool(func(backend Backend) (BackendResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		defer cancel()

		text, err := backend.Model.Generate(callCtx, prompt)
		if err != nil {
			slog.Warn("backend call failed", "backend", backend.Name, "error", err)
			return BackendResult{Backend: backend.Name, Err: err}, nil
		}
		return BackendResult{Backend: backend.Name, Text: text}, nil
	}, p.backends, len(p.backends))

	results := make([]BackendResult, 0, len(p.backends))
	for task := range completed {
		results = append(results, task.Result)
	}
	return results
}

// Synthesize builds the composite prompt from the collected results and
// drains the synthesis stream into a single string. There is no partial
// recovery: a mid-stream error or an empty stream fails the whole attempt.
func (p *Pipeline) Synthesize(ctx context.Context, results []BackendResult) (string, error) {
	prompt := BuildSynthesisPrompt(results)

	var accumulator strings.Builder
	for chunk, err := range p.synthesis.Stream(ctx, prompt) {
		if err != nil {
			return "", fmt.Errorf("synthesis stream failed: %w", err)
		}
		accumulator.WriteString(chunk)
	}

	if accumulator.Len() == 0 {
		return "", errors.New("synthesis stream produced no output")
	}

	return accumulator.String(), nil
}
