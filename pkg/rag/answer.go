package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/metagen/pkg/agent"
)

const answerTemplate = `Context information is below.
---------------------
%s
---------------------
Given the context information and not prior knowledge, answer the query.
Query: %s
Answer: `

// AnswerPrompt renders the retrieved chunks and the question into the
// message sent to the model.
func AnswerPrompt(question string, matches []Match) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		var b strings.Builder
		fmt.Fprintf(&b, "file_path: %s", m.Path)
		if m.Header != "" {
			fmt.Fprintf(&b, "\nheader: %s", m.Header)
		}
		b.WriteString("\n\n")
		b.WriteString(m.Content)
		parts = append(parts, b.String())
	}
	return fmt.Sprintf(answerTemplate, strings.Join(parts, "\n\n"), question)
}

// Answer asks the model to answer question from matches. request carries the
// model settings; its messages and tools are replaced.
func Answer(ctx context.Context, provider agent.LLMProvider, request agent.LLMRequest, question string, matches []Match) (string, error) {
	request.Tools = nil
	request.SystemPrompt = ""
	request.Messages = []agent.AgentMessage{{
		Role:    agent.RoleUser,
		Content: AnswerPrompt(question, matches),
	}}

	resp, err := provider.Call(ctx, request)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
