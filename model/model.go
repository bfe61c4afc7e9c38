package model

import (
	"context"
	"fmt"
)

// Request captures one normalized text turn sent to a provider.
type Request struct {
	// System is the optional system prompt framing the turn.
	System string `json:"system,omitempty"`
	// Prompt is the user-role input for the turn.
	Prompt string `json:"prompt"`
	// Stream requests incremental chunk delivery; when false a single final
	// Response is emitted.
	Stream bool `json:"stream,omitempty"`
}

// TokenUsage captures token accounting for a completed turn.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
// Partial responses carry incremental text; the final response carries the
// finish reason and, when the provider reports it, token usage.
type Response struct {
	ID           string      `json:"id,omitempty"`
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "anthropic", "openai", "mock"
}

// Model is the minimal interface required to drive one generation turn.
// Generate returns a response channel and a terminal error channel; both are
// closed when the turn completes or the context is cancelled.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model for tests. Canned responses are
// keyed by prompt; unknown prompts yield a deterministic echo.
type MockModel struct {
	info         Info
	responses    map[string]string
	defaultReply string
	usage        *TokenUsage
	err          error
}

// NewMockModel constructs a MockModel with the given identity.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// SetDefault registers the completion returned for prompts without a canned
// response.
func (m *MockModel) SetDefault(response string) { m.defaultReply = response }

// SetUsage attaches token usage to the final response of every turn.
func (m *MockModel) SetUsage(u TokenUsage) { m.usage = &u }

// FailWith makes every Generate call emit err instead of a response.
func (m *MockModel) FailWith(err error) { m.err = err }

// Generate implements Model; emits optional streaming chunks then the final
// response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if m.err != nil {
			errCh <- m.err
			return
		}
		full := m.responses[req.Prompt]
		if full == "" {
			full = m.defaultReply
		}
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", req.Prompt)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		respCh <- Response{Partial: false, Text: full, FinishReason: "stop", Usage: m.usage}
	}()

	return respCh, errCh
}

// Info returns the mock's identity.
func (m *MockModel) Info() Info { return m.info }
