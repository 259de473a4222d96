package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harun/metagen/pkg/toolclient"
	"github.com/harun/metagen/pkg/toolserver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metadataModel behaves like a well-prompted model: it reads the schema,
// then the file, then answers with metadata derived from the CSV columns.
type metadataModel struct {
	file string
}

func (m *metadataModel) Provider() string { return "scripted" }

func (m *metadataModel) Call(_ context.Context, request LLMRequest) (*LLMResponse, error) {
	var toolOutputs []string
	for _, msg := range request.Messages {
		if msg.Role == RoleTool {
			toolOutputs = append(toolOutputs, msg.Content)
		}
	}

	switch len(toolOutputs) {
	case 0:
		return &LLMResponse{ToolCalls: []ToolCall{{Name: toolserver.ToolGetMetadataSchema}}}, nil
	case 1:
		return &LLMResponse{ToolCalls: []ToolCall{{
			Name:       toolserver.ToolGetResourceData,
			Parameters: map[string]any{"filepath": m.file},
		}}}, nil
	default:
		var preview struct {
			Columns []string `json:"columns"`
		}
		if err := json.Unmarshal([]byte(toolOutputs[1]), &preview); err != nil {
			return nil, err
		}
		tags := make([]map[string]string, 0, len(preview.Columns))
		for _, c := range preview.Columns {
			tags = append(tags, map[string]string{"name": c})
		}
		answer, err := json.Marshal(map[string]any{
			"title": "Sales",
			"notes": "Columns: " + strings.Join(preview.Columns, ", "),
			"tags":  tags,
		})
		if err != nil {
			return nil, err
		}
		return &LLMResponse{Content: "<think>done</think>\n```json\n" + string(answer) + "\n```"}, nil
	}
}

func TestMetadataGeneration_EndToEnd(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "sales.csv"),
		[]byte("region,month,amount\nnorth,jan,10\nsouth,jan,12\neast,feb,7\n"), 0o644))

	reg := toolserver.NewRegistry()
	require.NoError(t, toolserver.RegisterBuiltinTools(reg, dataDir))
	server, err := toolserver.NewServer(toolserver.Config{
		Addr:     "127.0.0.1:0",
		Version:  "test",
		Registry: reg,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	ts := httptestServer(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := toolclient.Dial(ctx, ts, toolclient.Options{CallTimeout: 5 * time.Second, Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer client.Close()

	tools, err := client.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{toolserver.ToolGetMetadataSchema, toolserver.ToolGetResourceData}, tools.Names())

	session, err := NewSession(SessionConfig{
		Provider: &metadataModel{file: "sales.csv"},
		Tools:    tools,
		Invoker:  client,
		Model:    "test",
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	reporter := &recordingReporter{}
	orchestrator, err := NewOrchestrator(OrchestratorConfig{MaxIterations: 20, Reporter: reporter, Logger: zerolog.Nop()})
	require.NoError(t, err)

	resp := orchestrator.Run(ctx, session, MetadataInstruction("sales.csv"))
	require.True(t, resp.OK(), resp.Message)

	assert.Equal(t, []string{
		"call:get_metadata_schema", "done:get_metadata_schema",
		"call:get_resource_data", "done:get_resource_data",
	}, reporter.lines)
	require.Len(t, resp.Latencies, 2)
	assert.Equal(t, uint64(1), resp.Latencies[0].CallID)
	assert.Equal(t, uint64(2), resp.Latencies[1].CallID)

	metadata, ok := ExtractJSON(resp.Text)
	require.True(t, ok)

	assert.NoError(t, toolserver.ValidateMetadata(metadata))
	assert.Contains(t, metadata, "region")
}
