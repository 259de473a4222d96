package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harun/metagen/pkg/toolclient"
	"github.com/harun/metagen/pkg/toolserver"
)

// scriptedProvider replays responses in order and records every request.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*LLMResponse
	err       error
	repeat    *LLMResponse
	requests  []LLMRequest
}

func (p *scriptedProvider) Provider() string { return "scripted" }

func (p *scriptedProvider) Call(_ context.Context, request LLMRequest) (*LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	copied := request
	copied.Messages = append([]AgentMessage(nil), request.Messages...)
	p.requests = append(p.requests, copied)

	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) > 0 {
		next := p.responses[0]
		p.responses = p.responses[1:]
		return next, nil
	}
	if p.repeat != nil {
		return p.repeat, nil
	}
	return nil, errors.New("script exhausted")
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func toolCallResponse(names ...string) *LLMResponse {
	calls := make([]ToolCall, 0, len(names))
	for _, n := range names {
		calls = append(calls, ToolCall{Name: n, Parameters: map[string]any{}})
	}
	return &LLMResponse{ToolCalls: calls}
}

type invocation struct {
	name string
	args map[string]any
}

// fakeInvoker answers tool calls from a fixed table.
type fakeInvoker struct {
	mu      sync.Mutex
	outputs map[string]toolclient.ToolOutput
	err     error
	delay   time.Duration
	calls   []invocation
}

func (f *fakeInvoker) CallTool(ctx context.Context, name string, args map[string]any) (toolclient.ToolOutput, error) {
	f.mu.Lock()
	f.calls = append(f.calls, invocation{name: name, args: args})
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return toolclient.ToolOutput{}, ctx.Err()
		}
	}
	if f.err != nil {
		return toolclient.ToolOutput{}, f.err
	}
	if out, ok := f.outputs[name]; ok {
		return out, nil
	}
	return toolclient.ToolOutput{Content: json.RawMessage(`{}`)}, nil
}

func (f *fakeInvoker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testRegistry(names ...string) *toolclient.Registry {
	descs := make([]toolclient.ToolDescriptor, 0, len(names))
	for _, n := range names {
		descs = append(descs, toolclient.ToolDescriptor{
			Name:        n,
			Description: n,
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		})
	}
	return toolclient.NewRegistry(descs)
}

// recordingReporter captures reporter notifications in order.
type recordingReporter struct {
	mu      sync.Mutex
	lines   []string
	ended   bool
	elapsed time.Duration
}

func (r *recordingReporter) ToolCalled(name string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, "call:"+name)
}

func (r *recordingReporter) ToolCompleted(name string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, "done:"+name)
}

func (r *recordingReporter) Completed(elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = true
	r.elapsed = elapsed
}

// fakeStream replays a fixed event list.
type fakeStream struct {
	events []Event
	text   string
	err    error
}

func (f *fakeStream) Events() <-chan Event {
	ch := make(chan Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func (f *fakeStream) Wait() (string, error) {
	return f.text, f.err
}

// httptestServer serves the tool server and returns its websocket URL.
func httptestServer(t *testing.T, server *toolserver.Server) string {
	t.Helper()
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}
