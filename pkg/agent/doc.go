// Package agent runs the tool-augmented metadata agent.
//
// A Session pairs an LLMProvider with the tools discovered on the tool
// server. Session.Run executes the conversation in its own goroutine and
// reports every tool invocation as a ToolCallEvent followed by a
// ToolResultEvent carrying the same call ID. The Orchestrator consumes that
// stream, measures per-call latency and converts failures into a classified
// Response.
//
// Invariants:
//   - Call IDs are unique within a session and strictly increase from 1.
//   - At most the configured number of tool-calling rounds run; the next
//     request for tools fails with *IterationCeilingError.
//   - A tool name the server did not advertise fails the run with
//     *UnknownToolError before anything is sent.
//   - Nothing is retried.
//
// Usage:
//
//	session, _ := agent.NewSession(agent.SessionConfig{Provider: p, Tools: reg, Invoker: client})
//	orch, _ := agent.NewOrchestrator(agent.OrchestratorConfig{MaxIterations: 20})
//	resp := orch.Run(ctx, session, agent.MetadataInstruction("data/rain.csv"))
//	if !resp.OK() {
//		fmt.Println(resp.Message)
//	}
package agent
