package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: "Echo the message",
		Parameters: []ToolParameter{
			{Name: "message", Type: "string", Description: "Message to echo", Required: true},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"echo": args["message"]}, nil
		},
	}
}

func decodePayload(t *testing.T, text string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	return payload
}

func TestRegistry_Register(t *testing.T) {
	t.Run("should keep registration order", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(echoTool("b")))
		require.NoError(t, reg.Register(echoTool("a")))

		tools := reg.List()
		require.Len(t, tools, 2)
		assert.Equal(t, "b", tools[0].Name)
		assert.Equal(t, "a", tools[1].Name)
		assert.Equal(t, 2, reg.Len())
	})

	t.Run("should advertise the generated input schema", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(echoTool("echo")))

		schema := decodePayload(t, string(reg.List()[0].InputSchema))
		assert.Equal(t, "object", schema["type"])
		assert.Equal(t, []any{"message"}, schema["required"])
		assert.Contains(t, schema["properties"], "message")
	})

	t.Run("should reject duplicates", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(echoTool("echo")))

		err := reg.Register(echoTool("echo"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("should reject invalid definitions", func(t *testing.T) {
		reg := NewRegistry()

		assert.Error(t, reg.Register(ToolDefinition{Description: "x", Handler: echoTool("e").Handler}))
		assert.Error(t, reg.Register(ToolDefinition{Name: "x", Handler: echoTool("e").Handler}))
		assert.Error(t, reg.Register(ToolDefinition{Name: "x", Description: "x"}))

		bad := echoTool("bad")
		bad.Parameters[0].Type = "text"
		assert.Error(t, reg.Register(bad))
	})
}

func TestRegistry_Call(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("echo")))
	require.NoError(t, reg.Register(ToolDefinition{
		Name:        "broken",
		Description: "Always fails",
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("boom")
		},
	}))

	t.Run("should run the handler", func(t *testing.T) {
		result, err := reg.Call(context.Background(), "echo", map[string]any{"message": "hi"})
		require.NoError(t, err)

		assert.False(t, result.IsError)
		assert.Equal(t, "hi", decodePayload(t, result.Text())["echo"])
	})

	t.Run("should report unknown tools as tool errors", func(t *testing.T) {
		result, err := reg.Call(context.Background(), "missing", nil)
		require.NoError(t, err)

		assert.True(t, result.IsError)
		payload := decodePayload(t, result.Text())
		assert.Equal(t, "unknown_tool", payload["kind"])
		assert.Contains(t, payload["error"], "missing")
	})

	t.Run("should report invalid arguments as tool errors", func(t *testing.T) {
		result, err := reg.Call(context.Background(), "echo", map[string]any{"message": 3})
		require.NoError(t, err)

		assert.True(t, result.IsError)
		assert.Equal(t, "invalid_arguments", decodePayload(t, result.Text())["kind"])
	})

	t.Run("should reject unexpected arguments", func(t *testing.T) {
		result, err := reg.Call(context.Background(), "echo", map[string]any{"message": "hi", "extra": true})
		require.NoError(t, err)

		assert.True(t, result.IsError)
	})

	t.Run("should report missing arguments", func(t *testing.T) {
		result, err := reg.Call(context.Background(), "echo", nil)
		require.NoError(t, err)

		assert.True(t, result.IsError)
		assert.Equal(t, "invalid_arguments", decodePayload(t, result.Text())["kind"])
	})

	t.Run("should wrap handler errors", func(t *testing.T) {
		result, err := reg.Call(context.Background(), "broken", nil)
		require.NoError(t, err)

		assert.True(t, result.IsError)
		payload := decodePayload(t, result.Text())
		assert.Equal(t, "tool_error", payload["kind"])
		assert.Equal(t, "boom", payload["error"])
	})
}
