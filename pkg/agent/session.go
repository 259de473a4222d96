package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/harun/metagen/internal/observability"
	"github.com/harun/metagen/internal/tracing"
	"github.com/harun/metagen/pkg/toolclient"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ToolInvoker executes a discovered tool. *toolclient.Client implements it.
type ToolInvoker interface {
	CallTool(ctx context.Context, name string, args map[string]any) (toolclient.ToolOutput, error)
}

// SessionConfig holds session configuration
type SessionConfig struct {
	Provider      LLMProvider
	Tools         *toolclient.Registry
	Invoker       ToolInvoker
	Model         string
	Temperature   float64
	MaxTokens     int
	ContextWindow int
	Think         bool
	SystemPrompt  string
	Logger        zerolog.Logger
}

// Session pairs an LLM backend with the tools discovered for one run.
type Session struct {
	provider LLMProvider
	tools    *toolclient.Registry
	specs    []ToolSpec
	invoker  ToolInvoker
	request  LLMRequest
	logger   zerolog.Logger
}

// NewSession creates a session. A registry with zero tools is valid; the
// model is then offered no tools.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("tool invoker is required")
	}
	if cfg.Tools == nil {
		cfg.Tools = toolclient.NewRegistry(nil)
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = SystemPrompt
	}

	specs, err := toolSpecs(cfg.Tools)
	if err != nil {
		return nil, err
	}

	return &Session{
		provider: cfg.Provider,
		tools:    cfg.Tools,
		specs:    specs,
		invoker:  cfg.Invoker,
		request: LLMRequest{
			Model:         cfg.Model,
			Tools:         specs,
			Temperature:   cfg.Temperature,
			MaxTokens:     cfg.MaxTokens,
			ContextWindow: cfg.ContextWindow,
			Think:         cfg.Think,
			SystemPrompt:  cfg.SystemPrompt,
		},
		logger: cfg.Logger,
	}, nil
}

// ToolNames returns the names of the tools offered to the model.
func (s *Session) ToolNames() []string {
	return s.tools.Names()
}

// Provider returns the backend provider name.
func (s *Session) Provider() string {
	return s.provider.Provider()
}

func toolSpecs(reg *toolclient.Registry) ([]ToolSpec, error) {
	specs := make([]ToolSpec, 0, reg.Len())
	for _, d := range reg.Descriptors() {
		schema := map[string]any{}
		if len(d.InputSchema) > 0 {
			if err := json.Unmarshal(d.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("invalid input schema for tool %s: %w", d.Name, err)
			}
		}
		if _, ok := schema["type"]; !ok {
			schema["type"] = "object"
		}
		if _, ok := schema["properties"]; !ok {
			schema["properties"] = map[string]any{}
		}
		specs = append(specs, ToolSpec{Name: d.Name, Description: d.Description, InputSchema: schema})
	}
	return specs, nil
}

// Stream is a running session. Events are delivered in emission order and
// the channel is closed before the final value becomes available.
type Stream struct {
	events chan Event
	done   chan struct{}
	result string
	err    error
	rounds int
}

// Events returns the event channel. It must be drained for the run to finish.
func (st *Stream) Events() <-chan Event {
	return st.events
}

// Wait blocks until the run ends and returns the final answer.
func (st *Stream) Wait() (string, error) {
	<-st.done
	return st.result, st.err
}

// Rounds returns the number of tool-calling rounds executed. Valid after Wait.
func (st *Stream) Rounds() int {
	<-st.done
	return st.rounds
}

// Run starts the session in its own goroutine. A round is one model reply
// containing at least one tool call; before round r runs, r > ceiling ends
// the run with *IterationCeilingError, so at most ceiling rounds execute.
func (s *Session) Run(ctx context.Context, instruction string, ceiling int) *Stream {
	st := &Stream{
		events: make(chan Event),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(st.done)
		st.result, st.err = s.run(ctx, st, instruction, ceiling)
		close(st.events)
		observability.RecordAgentRounds(st.rounds)
	}()

	return st
}

func (s *Session) run(ctx context.Context, st *Stream, instruction string, ceiling int) (string, error) {
	logger := tracing.LoggerFromContext(ctx, s.logger)
	messages := []AgentMessage{{Role: RoleUser, Content: instruction}}
	var nextCallID uint64

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		response, err := s.callLLM(ctx, messages, round)
		if err != nil {
			return "", err
		}

		if len(response.ToolCalls) == 0 {
			logger.Debug().Int("rounds", st.rounds).Msg("Model produced final answer")
			return response.Content, nil
		}

		if round > ceiling {
			return "", &IterationCeilingError{Ceiling: ceiling}
		}

		for _, tc := range response.ToolCalls {
			if _, ok := s.tools.Lookup(tc.Name); !ok {
				return "", &UnknownToolError{Name: tc.Name}
			}
		}

		st.rounds = round
		calls := make([]ToolCall, len(response.ToolCalls))
		toolMessages := make([]AgentMessage, 0, len(response.ToolCalls))

		for i, tc := range response.ToolCalls {
			nextCallID++
			callID := nextCallID
			if tc.ID == "" {
				tc.ID = "call_" + strconv.FormatUint(callID, 10)
			}
			if tc.Parameters == nil {
				tc.Parameters = map[string]any{}
			}
			calls[i] = tc

			content, err := s.invoke(ctx, st, callID, tc)
			if err != nil {
				return "", err
			}

			toolMessages = append(toolMessages, AgentMessage{
				Role:       RoleTool,
				Content:    content,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}

		messages = append(messages, AgentMessage{
			Role:      RoleAssistant,
			Content:   response.Content,
			ToolCalls: calls,
		})
		messages = append(messages, toolMessages...)
	}
}

func (s *Session) callLLM(ctx context.Context, messages []AgentMessage, round int) (*LLMResponse, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerAgent, "agent.llm_call",
		attribute.String("llm.provider", s.provider.Provider()),
		attribute.String("llm.model", s.request.Model),
		attribute.Int("agent.round", round),
	)
	defer span.End()

	request := s.request
	request.Messages = messages

	response, err := s.provider.Call(ctx, request)
	if err != nil {
		tracing.FailSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("llm.tool_calls", len(response.ToolCalls)))
	return response, nil
}

func (s *Session) invoke(ctx context.Context, st *Stream, callID uint64, tc ToolCall) (string, error) {
	if err := s.emit(ctx, st, ToolCallEvent{
		CallID:    callID,
		ToolName:  tc.Name,
		Arguments: tc.Parameters,
		IssuedAt:  time.Now(),
	}); err != nil {
		return "", err
	}

	out, callErr := s.invoker.CallTool(ctx, tc.Name, tc.Parameters)

	if err := s.emit(ctx, st, ToolResultEvent{
		CallID:      callID,
		ToolName:    tc.Name,
		Output:      out.Content,
		IsError:     out.IsError,
		Err:         callErr,
		CompletedAt: time.Now(),
	}); err != nil {
		return "", err
	}

	if callErr != nil {
		return "", fmt.Errorf("call %d failed: %w", callID, callErr)
	}
	return string(out.Content), nil
}

func (s *Session) emit(ctx context.Context, st *Stream, ev Event) error {
	select {
	case st.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
