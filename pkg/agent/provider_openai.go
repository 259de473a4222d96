package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harun/metagen/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements LLMProvider for OpenAI and OpenAI-compatible servers
type OpenAIProvider struct {
	client  openai.Client
	baseURL string
}

// NewOpenAIProvider creates a new OpenAI provider. The SDK's own retries are
// disabled; a failed call fails the run.
func NewOpenAIProvider(cfg config.LLMConfig) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout()),
	}
	baseURL := cfg.EndpointURL()
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	} else {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAIProvider{
		client:  openai.NewClient(opts...),
		baseURL: baseURL,
	}
}

// Provider returns the provider name
func (p *OpenAIProvider) Provider() string {
	return "openai"
}

// Call makes an API call to OpenAI
func (p *OpenAIProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if request.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(request.SystemPrompt))
	}

	for _, msg := range request.Messages {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				toolCalls := []openai.ChatCompletionMessageToolCall{}
				for _, tc := range msg.ToolCalls {
					paramsJSON, err := json.Marshal(tc.Parameters)
					if err != nil {
						return nil, &BackendResponseError{Err: fmt.Errorf("failed to marshal tool parameters: %w", err)}
					}

					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      tc.Name,
							Arguments: string(paramsJSON),
						},
					})
				}

				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   msg.Content,
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistantMsg.ToParam())
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}
		case RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: messages,
	}

	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}

	params.Temperature = openai.Float(request.Temperature)

	if len(request.Tools) > 0 {
		tools := []openai.ChatCompletionToolParam{}
		for _, tool := range request.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &BackendResponseError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, classifyBackendError(p.baseURL, err)
	}

	if len(response.Choices) == 0 {
		return nil, &BackendResponseError{Err: fmt.Errorf("no response choices returned")}
	}

	choice := response.Choices[0]

	toolCalls := []ToolCall{}
	for _, tc := range choice.Message.ToolCalls {
		var params map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
				return nil, &BackendResponseError{Err: fmt.Errorf("failed to parse tool arguments: %w", err)}
			}
		}

		toolCalls = append(toolCalls, ToolCall{
			ID:         tc.ID,
			Name:       tc.Function.Name,
			Parameters: params,
		})
	}

	return &LLMResponse{
		Content:   choice.Message.Content,
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}
