package agent

import (
	"context"
	"fmt"

	"github.com/harun/metagen/internal/config"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes one non-streaming LLM call. Errors are classified as
	// *BackendUnreachableError or *BackendResponseError.
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model         string
	Messages      []AgentMessage
	Tools         []ToolSpec
	Temperature   float64
	MaxTokens     int
	ContextWindow int
	Think         bool
	SystemPrompt  string
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// NewProvider creates the provider selected by cfg.Provider
func NewProvider(cfg config.LLMConfig) (LLMProvider, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaProvider(cfg)
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
