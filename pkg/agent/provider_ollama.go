package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/harun/metagen/internal/config"
	ollama "github.com/ollama/ollama/api"
)

// OllamaProvider implements LLMProvider for a local or remote Ollama server
type OllamaProvider struct {
	client  *ollama.Client
	baseURL string
}

// NewOllamaProvider creates a new Ollama provider. cfg.Timeout bounds every
// HTTP request to the backend.
func NewOllamaProvider(cfg config.LLMConfig) (*OllamaProvider, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url %q: %w", cfg.BaseURL, err)
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout(),
	}

	return &OllamaProvider{
		client:  ollama.NewClient(u, httpClient),
		baseURL: cfg.BaseURL,
	}, nil
}

// Provider returns the provider name
func (p *OllamaProvider) Provider() string {
	return "ollama"
}

// Call makes a non-streaming /api/chat request
func (p *OllamaProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	chatReq := buildOllamaChatRequest(request)

	var last ollama.ChatResponse
	var content strings.Builder
	err := p.client.Chat(ctx, chatReq, func(resp ollama.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if len(resp.Message.ToolCalls) > 0 {
			last.Message.ToolCalls = append(last.Message.ToolCalls, resp.Message.ToolCalls...)
		}
		last.Done = resp.Done
		last.PromptEvalCount = resp.PromptEvalCount
		last.EvalCount = resp.EvalCount
		return nil
	})
	if err != nil {
		var statusErr ollama.StatusError
		if errors.As(err, &statusErr) {
			return nil, &BackendResponseError{StatusCode: statusErr.StatusCode, Err: err}
		}
		return nil, classifyBackendError(p.baseURL, err)
	}

	return &LLMResponse{
		Content:   content.String(),
		ToolCalls: parseOllamaToolCalls(last.Message.ToolCalls),
		Usage: &TokenUsage{
			InputTokens:  last.PromptEvalCount,
			OutputTokens: last.EvalCount,
		},
	}, nil
}

func buildOllamaChatRequest(request LLMRequest) *ollama.ChatRequest {
	messages := make([]ollama.Message, 0, len(request.Messages)+1)
	if request.SystemPrompt != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: request.SystemPrompt})
	}

	for _, msg := range request.Messages {
		m := ollama.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if msg.Role == RoleTool {
			m.ToolName = msg.ToolName
		}
		for _, tc := range msg.ToolCalls {
			args := ollama.ToolCallFunctionArguments(tc.Parameters)
			if args == nil {
				args = ollama.ToolCallFunctionArguments{}
			}
			m.ToolCalls = append(m.ToolCalls, ollama.ToolCall{
				Function: ollama.ToolCallFunction{Name: tc.Name, Arguments: args},
			})
		}
		messages = append(messages, m)
	}

	stream := false
	req := &ollama.ChatRequest{
		Model:    request.Model,
		Messages: messages,
		Stream:   &stream,
		Think:    &ollama.ThinkValue{Value: request.Think},
		Options: map[string]any{
			"temperature": request.Temperature,
			"num_ctx":     request.ContextWindow,
		},
	}

	for _, t := range request.Tools {
		req.Tools = append(req.Tools, ollama.Tool{
			Type: "function",
			Function: ollama.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  ollamaParameters(t.InputSchema),
			},
		})
	}
	return req
}

// ollamaParameters maps a JSON schema object onto the typed tool parameters
// Ollama accepts. Keys outside that shape are not sent.
func ollamaParameters(schema map[string]any) ollama.ToolFunctionParameters {
	params := ollama.ToolFunctionParameters{
		Type:       "object",
		Required:   stringList(schema["required"]),
		Properties: map[string]ollama.ToolProperty{},
	}
	if typ, ok := schema["type"].(string); ok {
		params.Type = typ
	}
	if defs, ok := schema["$defs"]; ok {
		params.Defs = defs
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for name, prop := range props {
			if p, ok := prop.(map[string]any); ok {
				params.Properties[name] = ollamaProperty(p)
			}
		}
	}
	return params
}

func ollamaProperty(schema map[string]any) ollama.ToolProperty {
	prop := ollama.ToolProperty{
		Type:  ollama.PropertyType(stringList(schema["type"])),
		Items: schema["items"],
	}
	if desc, ok := schema["description"].(string); ok {
		prop.Description = desc
	}
	if enum, ok := schema["enum"].([]any); ok {
		prop.Enum = enum
	}
	if anyOf, ok := schema["anyOf"].([]any); ok {
		for _, alt := range anyOf {
			if a, ok := alt.(map[string]any); ok {
				prop.AnyOf = append(prop.AnyOf, ollamaProperty(a))
			}
		}
	}
	return prop
}

// stringList reads a schema value that is a string or a list of strings.
func stringList(v any) []string {
	switch v := v.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func parseOllamaToolCalls(calls []ollama.ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}

	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, ToolCall{
			Name:       c.Function.Name,
			Parameters: map[string]any(c.Function.Arguments),
		})
	}
	return out
}
