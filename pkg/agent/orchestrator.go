package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/metagen/internal/observability"
	"github.com/harun/metagen/internal/tracing"
	"github.com/harun/metagen/pkg/toolclient"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ErrorKind classifies a failed run.
type ErrorKind string

const (
	KindBackendUnreachable      ErrorKind = "backend_unreachable"
	KindBackendResponseError    ErrorKind = "backend_response_error"
	KindIterationCeilingReached ErrorKind = "iteration_ceiling_reached"
	KindTransportUnavailable    ErrorKind = "transport_unavailable"
	KindSessionError            ErrorKind = "session_error"
)

// CallLatency is the measured latency of one tool call.
type CallLatency struct {
	CallID   uint64
	ToolName string
	Latency  time.Duration
}

// ToolStats aggregates the latencies of every call to one tool.
type ToolStats struct {
	Count int
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Mean returns the average latency
func (s ToolStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

func (s *ToolStats) add(d time.Duration) {
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Count++
	s.Total += d
}

// Response is the outcome of one orchestration run. Exactly one of Text or
// ErrorKind is set.
type Response struct {
	Text      string
	ErrorKind ErrorKind
	Message   string
	Err       error
	Elapsed   time.Duration
	Latencies []CallLatency
	ToolStats map[string]ToolStats
}

// OK reports whether the run produced an answer
func (r Response) OK() bool {
	return r.ErrorKind == ""
}

// Outcome returns "success" or the error kind.
func (r Response) Outcome() string {
	if r.OK() {
		return "success"
	}
	return string(r.ErrorKind)
}

// EventStream is what the orchestrator consumes. *Stream implements it.
type EventStream interface {
	Events() <-chan Event
	Wait() (string, error)
}

// Runner starts a session run. *Session implements it.
type Runner interface {
	Run(ctx context.Context, instruction string, ceiling int) *Stream
	Provider() string
}

// Reporter receives progress notifications for console output.
type Reporter interface {
	ToolCalled(name string, args map[string]any)
	ToolCompleted(name string, latency time.Duration)
	Completed(elapsed time.Duration)
}

// NopReporter discards all notifications.
type NopReporter struct{}

func (NopReporter) ToolCalled(string, map[string]any)   {}
func (NopReporter) ToolCompleted(string, time.Duration) {}
func (NopReporter) Completed(time.Duration)             {}

// OrchestratorConfig holds orchestrator configuration
type OrchestratorConfig struct {
	MaxIterations int
	Reporter      Reporter
	Logger        zerolog.Logger
}

// Orchestrator drives one agent run: it consumes the session's events,
// measures tool latency by call ID and turns failures into user-facing
// messages. It never retries.
type Orchestrator struct {
	maxIterations int
	reporter      Reporter
	logger        zerolog.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.MaxIterations < 1 {
		return nil, fmt.Errorf("max iterations must be at least 1")
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter{}
	}
	observability.EnsureRegistered()

	return &Orchestrator{
		maxIterations: cfg.MaxIterations,
		reporter:      cfg.Reporter,
		logger:        cfg.Logger,
	}, nil
}

// Run executes instruction on session and returns the classified outcome.
func (o *Orchestrator) Run(ctx context.Context, session Runner, instruction string) Response {
	ctx = tracing.NewRunContext(ctx)
	ctx, span := tracing.StartSpan(ctx, tracing.TracerAgent, "agent.run",
		attribute.String("llm.provider", session.Provider()),
		attribute.Int("agent.max_iterations", o.maxIterations),
	)
	defer span.End()

	resp := o.Consume(ctx, session.Run(ctx, instruction, o.maxIterations))

	span.SetAttributes(attribute.String("agent.outcome", resp.Outcome()))
	tracing.FailSpan(span, resp.Err)
	observability.RecordAgentRun(session.Provider(), resp.Elapsed, resp.Outcome())
	return resp
}

// Consume processes a stream to completion.
func (o *Orchestrator) Consume(ctx context.Context, stream EventStream) Response {
	logger := tracing.LoggerFromContext(ctx, o.logger)
	start := time.Now()

	pending := make(map[uint64]time.Time)
	resp := Response{ToolStats: make(map[string]ToolStats)}

	for ev := range stream.Events() {
		switch e := ev.(type) {
		case ToolCallEvent:
			pending[e.CallID] = e.IssuedAt
			o.reporter.ToolCalled(e.ToolName, e.Arguments)

		case ToolResultEvent:
			issuedAt, ok := pending[e.CallID]
			if !ok {
				logger.Warn().
					Uint64("call_id", e.CallID).
					Str("tool", e.ToolName).
					Msg("Ignoring orphan tool result")
				observability.RecordOrphanResult()
				continue
			}
			delete(pending, e.CallID)

			latency := e.CompletedAt.Sub(issuedAt)
			resp.Latencies = append(resp.Latencies, CallLatency{
				CallID:   e.CallID,
				ToolName: e.ToolName,
				Latency:  latency,
			})
			stats := resp.ToolStats[e.ToolName]
			stats.add(latency)
			resp.ToolStats[e.ToolName] = stats

			o.reporter.ToolCompleted(e.ToolName, latency)
			observability.RecordToolCall(e.ToolName, latency, e.Err == nil && !e.IsError)

			logger.Debug().
				Uint64("call_id", e.CallID).
				Str("tool", e.ToolName).
				Dur("latency", latency).
				Bool("is_error", e.IsError).
				Msg("Tool call completed")
		}
	}

	text, err := stream.Wait()
	resp.Elapsed = time.Since(start)

	if err != nil {
		resp.Err = err
		resp.ErrorKind, resp.Message = Classify(err)
		logger.Error().Err(err).Str("kind", string(resp.ErrorKind)).Msg("Agent run failed")
	} else {
		resp.Text = text
	}

	o.reporter.Completed(resp.Elapsed)
	return resp
}

// Classify maps a run failure to its kind and the message shown to the user.
func Classify(err error) (ErrorKind, string) {
	var (
		unreachable *BackendUnreachableError
		backendResp *BackendResponseError
		ceiling     *IterationCeilingError
		transport   *toolclient.TransportUnavailableError
	)

	switch {
	case errors.As(err, &unreachable):
		return KindBackendUnreachable, fmt.Sprintf(
			"Agent failed to produce a response. Error: %s. Check the backend URL (OLLAMA_BASE_URL) and that the server is running.",
			unreachable.Error())
	case errors.As(err, &backendResp):
		return KindBackendResponseError, fmt.Sprintf("Agent failed to produce a response. Error: %s", backendResp.Error())
	case errors.As(err, &ceiling):
		return KindIterationCeilingReached, fmt.Sprintf(
			"Agent stopped after reaching the maximum of %d tool-calling rounds without a final answer.",
			ceiling.Ceiling)
	case errors.As(err, &transport):
		return KindTransportUnavailable, fmt.Sprintf(
			"Tool server unavailable at %s: %v. Start it with 'metagen serve' or check MCP_CLIENT_URL.",
			transport.URL, transport.Err)
	default:
		return KindSessionError, fmt.Sprintf("Agent failed to produce a response. Error: %v", err)
	}
}

// FailureResponse builds the response for a run that failed before a session
// could start, for example when the tool server is unreachable.
func FailureResponse(err error, elapsed time.Duration) Response {
	kind, msg := Classify(err)
	return Response{
		ErrorKind: kind,
		Message:   msg,
		Err:       err,
		Elapsed:   elapsed,
		ToolStats: map[string]ToolStats{},
	}
}
