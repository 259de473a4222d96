package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/harun/metagen/internal/config"
	"github.com/harun/metagen/pkg/toolclient"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, reporter Reporter) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(OrchestratorConfig{
		MaxIterations: 5,
		Reporter:      reporter,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	return o
}

func TestNewOrchestrator(t *testing.T) {
	_, err := NewOrchestrator(OrchestratorConfig{MaxIterations: 0})
	assert.Error(t, err)
}

func TestOrchestrator_Consume(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	at := func(ms int) time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }

	t.Run("should measure latency by call id", func(t *testing.T) {
		stream := &fakeStream{
			events: []Event{
				ToolCallEvent{CallID: 1, ToolName: "get_metadata_schema", IssuedAt: at(0)},
				ToolResultEvent{CallID: 1, ToolName: "get_metadata_schema", CompletedAt: at(40)},
				ToolCallEvent{CallID: 2, ToolName: "get_resource_data", IssuedAt: at(50)},
				ToolCallEvent{CallID: 3, ToolName: "get_resource_data", IssuedAt: at(60)},
				// results arrive out of order
				ToolResultEvent{CallID: 3, ToolName: "get_resource_data", CompletedAt: at(80)},
				ToolResultEvent{CallID: 2, ToolName: "get_resource_data", CompletedAt: at(150)},
			},
			text: `{"title":"x"}`,
		}

		resp := newTestOrchestrator(t, nil).Consume(context.Background(), stream)

		require.True(t, resp.OK())
		assert.Equal(t, `{"title":"x"}`, resp.Text)
		assert.Equal(t, []CallLatency{
			{CallID: 1, ToolName: "get_metadata_schema", Latency: 40 * time.Millisecond},
			{CallID: 3, ToolName: "get_resource_data", Latency: 20 * time.Millisecond},
			{CallID: 2, ToolName: "get_resource_data", Latency: 100 * time.Millisecond},
		}, resp.Latencies)

		stats := resp.ToolStats["get_resource_data"]
		assert.Equal(t, 2, stats.Count)
		assert.Equal(t, 20*time.Millisecond, stats.Min)
		assert.Equal(t, 100*time.Millisecond, stats.Max)
		assert.Equal(t, 60*time.Millisecond, stats.Mean())
		assert.Equal(t, 1, resp.ToolStats["get_metadata_schema"].Count)
	})

	t.Run("should ignore orphan results", func(t *testing.T) {
		stream := &fakeStream{
			events: []Event{
				ToolResultEvent{CallID: 9, ToolName: "get_resource_data", CompletedAt: at(10)},
				ToolCallEvent{CallID: 1, ToolName: "get_resource_data", IssuedAt: at(0)},
				ToolResultEvent{CallID: 1, ToolName: "get_resource_data", CompletedAt: at(5)},
				ToolResultEvent{CallID: 1, ToolName: "get_resource_data", CompletedAt: at(30)},
			},
			text: "{}",
		}

		resp := newTestOrchestrator(t, nil).Consume(context.Background(), stream)

		require.True(t, resp.OK())
		require.Len(t, resp.Latencies, 1)
		assert.Equal(t, uint64(1), resp.Latencies[0].CallID)
		assert.Equal(t, 5*time.Millisecond, resp.Latencies[0].Latency)
	})

	t.Run("should notify the reporter in event order", func(t *testing.T) {
		reporter := &recordingReporter{}
		stream := &fakeStream{
			events: []Event{
				ToolCallEvent{CallID: 1, ToolName: "a", IssuedAt: at(0)},
				ToolResultEvent{CallID: 1, ToolName: "a", CompletedAt: at(1)},
				ToolCallEvent{CallID: 2, ToolName: "b", IssuedAt: at(2)},
				ToolResultEvent{CallID: 2, ToolName: "b", CompletedAt: at(3)},
			},
		}

		newTestOrchestrator(t, reporter).Consume(context.Background(), stream)

		assert.Equal(t, []string{"call:a", "done:a", "call:b", "done:b"}, reporter.lines)
		assert.True(t, reporter.ended)
	})

	t.Run("should report elapsed time on failure", func(t *testing.T) {
		reporter := &recordingReporter{}
		stream := &fakeStream{err: &IterationCeilingError{Ceiling: 5}}

		resp := newTestOrchestrator(t, reporter).Consume(context.Background(), stream)

		assert.False(t, resp.OK())
		assert.Empty(t, resp.Text)
		assert.Equal(t, KindIterationCeilingReached, resp.ErrorKind)
		assert.Equal(t, "iteration_ceiling_reached", resp.Outcome())
		assert.True(t, reporter.ended)
		assert.Equal(t, resp.Elapsed, reporter.elapsed)
	})
}

func TestOrchestrator_Run(t *testing.T) {
	t.Run("should run a session to a final answer", func(t *testing.T) {
		provider := &scriptedProvider{responses: []*LLMResponse{
			toolCallResponse("get_metadata_schema"),
			toolCallResponse("get_resource_data"),
			{Content: `{"title":"Sales"}`},
		}}
		session := newTestSession(t, provider, &fakeInvoker{}, testRegistry("get_metadata_schema", "get_resource_data"))

		resp := newTestOrchestrator(t, nil).Run(context.Background(), session, MetadataInstruction("sales.csv"))

		require.True(t, resp.OK(), resp.Message)
		assert.Equal(t, `{"title":"Sales"}`, resp.Text)
		assert.Len(t, resp.Latencies, 2)
		assert.Equal(t, uint64(1), resp.Latencies[0].CallID)
		assert.Equal(t, uint64(2), resp.Latencies[1].CallID)
		assert.Equal(t, MetadataInstruction("sales.csv"), provider.requests[0].Messages[0].Content)
	})

	t.Run("should stop a looping model at the ceiling", func(t *testing.T) {
		provider := &scriptedProvider{repeat: toolCallResponse("get_metadata_schema")}
		invoker := &fakeInvoker{}
		session := newTestSession(t, provider, invoker, testRegistry("get_metadata_schema"))
		o, err := NewOrchestrator(OrchestratorConfig{MaxIterations: 2, Logger: zerolog.Nop()})
		require.NoError(t, err)

		resp := o.Run(context.Background(), session, "go")

		assert.Equal(t, KindIterationCeilingReached, resp.ErrorKind)
		assert.Equal(t,
			"Agent stopped after reaching the maximum of 2 tool-calling rounds without a final answer.",
			resp.Message)
		assert.Equal(t, 2, invoker.count())
		assert.Len(t, resp.Latencies, 2)
	})

	t.Run("should explain an unreachable ollama backend", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		baseURL := "http://" + addr
		provider, err := NewOllamaProvider(config.LLMConfig{BaseURL: baseURL, TimeoutSeconds: 5})
		require.NoError(t, err)
		session := newTestSession(t, provider, &fakeInvoker{}, testRegistry())

		resp := newTestOrchestrator(t, nil).Run(context.Background(), session, "go")

		assert.Equal(t, KindBackendUnreachable, resp.ErrorKind)
		assert.Contains(t, resp.Message, "Agent failed to produce a response.")
		assert.Contains(t, resp.Message, "cannot reach LLM backend at "+baseURL)
		assert.Contains(t, resp.Message, "Check the backend URL (OLLAMA_BASE_URL)")
		assert.Greater(t, resp.Elapsed, time.Duration(0))
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    ErrorKind
		message string
	}{
		{
			name:    "backend response",
			err:     &BackendResponseError{StatusCode: 404, Err: errors.New(`model "llama9" not found`)},
			kind:    KindBackendResponseError,
			message: `Agent failed to produce a response. Error: model "llama9" not found`,
		},
		{
			name: "backend unreachable",
			err:  &BackendUnreachableError{URL: "http://localhost:11434", Err: errors.New("connection refused")},
			kind: KindBackendUnreachable,
			message: "Agent failed to produce a response. Error: cannot reach LLM backend at http://localhost:11434: " +
				"connection refused. Check the backend URL (OLLAMA_BASE_URL) and that the server is running.",
		},
		{
			name:    "ceiling",
			err:     fmt.Errorf("run: %w", &IterationCeilingError{Ceiling: 20}),
			kind:    KindIterationCeilingReached,
			message: "Agent stopped after reaching the maximum of 20 tool-calling rounds without a final answer.",
		},
		{
			name: "transport",
			err:  &toolclient.TransportUnavailableError{URL: "ws://127.0.0.1:5337/ws", Err: errors.New("connection refused")},
			kind: KindTransportUnavailable,
			message: "Tool server unavailable at ws://127.0.0.1:5337/ws: connection refused. " +
				"Start it with 'metagen serve' or check MCP_CLIENT_URL.",
		},
		{
			name:    "unknown tool",
			err:     &UnknownToolError{Name: "rm"},
			kind:    KindSessionError,
			message: `Agent failed to produce a response. Error: model requested unknown tool "rm"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, message := Classify(tt.err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.message, message)
		})
	}
}

func TestFailureResponse(t *testing.T) {
	err := &toolclient.TransportUnavailableError{URL: "ws://x/ws", Err: errors.New("refused")}

	resp := FailureResponse(err, 3*time.Millisecond)

	assert.False(t, resp.OK())
	assert.Equal(t, KindTransportUnavailable, resp.ErrorKind)
	assert.Equal(t, 3*time.Millisecond, resp.Elapsed)
	assert.Empty(t, resp.Latencies)
	assert.Same(t, err, resp.Err)
}

func TestClassifyBackendError(t *testing.T) {
	t.Run("should keep cancellation", func(t *testing.T) {
		assert.Equal(t, context.Canceled, classifyBackendError("http://x", context.Canceled))
	})

	t.Run("should treat timeouts as unreachable", func(t *testing.T) {
		err := classifyBackendError("http://x", fmt.Errorf("post: %w", context.DeadlineExceeded))
		var unreachable *BackendUnreachableError
		require.True(t, errors.As(err, &unreachable))
		assert.Equal(t, "http://x", unreachable.URL)
	})

	t.Run("should treat anything else as a response error", func(t *testing.T) {
		err := classifyBackendError("http://x", errors.New("unexpected end of JSON input"))
		var respErr *BackendResponseError
		assert.True(t, errors.As(err, &respErr))
	})
}
