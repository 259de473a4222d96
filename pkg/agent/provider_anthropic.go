package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/harun/metagen/internal/config"
)

// AnthropicProvider implements LLMProvider for Anthropic Claude
type AnthropicProvider struct {
	client  anthropic.Client
	baseURL string
}

// NewAnthropicProvider creates a new Anthropic provider with SDK retries
// disabled.
func NewAnthropicProvider(cfg config.LLMConfig) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout()),
	}
	baseURL := cfg.EndpointURL()
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	} else {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicProvider{
		client:  anthropic.NewClient(opts...),
		baseURL: baseURL,
	}
}

// Provider returns the provider name
func (p *AnthropicProvider) Provider() string {
	return "anthropic"
}

// Call makes an API call to Anthropic Claude
func (p *AnthropicProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	anthropicMessages := []anthropic.MessageParam{}

	for _, msg := range request.Messages {
		switch {
		case msg.Role == RoleTool:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		case msg.Role == RoleAssistant && len(msg.ToolCalls) > 0:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Parameters
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})

		case msg.Role == RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))

		case msg.Role == RoleAssistant:
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})
		}
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	reqParams := anthropic.MessageNewParams{
		Model:       anthropic.Model(request.Model),
		Messages:    anthropicMessages,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(request.Temperature),
	}

	if request.SystemPrompt != "" {
		reqParams.System = []anthropic.TextBlockParam{
			{Text: request.SystemPrompt},
		}
	}

	if len(request.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, tool := range request.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.InputSchema["properties"],
				},
			}

			if required, ok := tool.InputSchema["required"].([]any); ok {
				names := make([]string, 0, len(required))
				for _, v := range required {
					if s, ok := v.(string); ok {
						names = append(names, s)
					}
				}
				toolParam.InputSchema.Required = names
			}

			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		reqParams.Tools = tools
	}

	response, err := p.client.Messages.New(ctx, reqParams)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &BackendResponseError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, classifyBackendError(p.baseURL, err)
	}

	content := ""
	toolCalls := []ToolCall{}

	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			var params map[string]any
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &params); err != nil {
				return nil, &BackendResponseError{Err: fmt.Errorf("failed to parse tool input: %w", err)}
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:         b.ID,
				Name:       b.Name,
				Parameters: params,
			})
		}
	}

	return &LLMResponse{
		Content:   content,
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}
