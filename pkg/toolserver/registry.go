package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/harun/metagen/pkg/mcp"
	"github.com/xeipuuv/gojsonschema"
)

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolHandler executes a tool. The returned value is encoded as JSON. A
// json.RawMessage result is sent verbatim.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

type registeredTool struct {
	def         ToolDefinition
	schema      *gojsonschema.Schema
	inputSchema json.RawMessage
}

// Registry holds the tools served by the dispatcher, in registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]*registeredTool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*registeredTool),
	}
}

// Register adds a tool. Registering a name twice is an error.
func (r *Registry) Register(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return err
	}

	schemaMap := generateJSONSchema(def)
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}
	raw, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("failed to encode schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = &registeredTool{def: def, schema: schema, inputSchema: raw}
	r.order = append(r.order, def.Name)
	return nil
}

// List returns the tool descriptors in registration order.
func (r *Registry) List() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		tools = append(tools, mcp.Tool{
			Name:        t.def.Name,
			Description: t.def.Description,
			InputSchema: t.inputSchema,
		})
	}
	return tools
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Call validates args and runs the named tool. Every failure is reported as
// an isError result; the returned error is non-nil only when the result
// itself cannot be encoded.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (mcp.CallToolResult, error) {
	r.mu.RLock()
	tool, exists := r.tools[name]
	r.mu.RUnlock()

	if !exists {
		return errorResult(toolErrorf("unknown_tool", "Unknown tool: %s", name))
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := validateParameters(tool.schema, args); err != nil {
		return errorResult(&ToolError{Kind: "invalid_arguments", Err: err})
	}

	out, err := tool.def.Handler(ctx, args)
	if err != nil {
		var toolErr *ToolError
		if !errors.As(err, &toolErr) {
			toolErr = &ToolError{Kind: "tool_error", Err: err}
		}
		return errorResult(toolErr)
	}

	payload, ok := out.(json.RawMessage)
	if !ok {
		payload, err = json.Marshal(out)
		if err != nil {
			return mcp.CallToolResult{}, fmt.Errorf("failed to encode %s result: %w", name, err)
		}
	}
	return mcp.TextResult(payload, false), nil
}

func errorResult(toolErr *ToolError) (mcp.CallToolResult, error) {
	payload, err := json.Marshal(map[string]string{
		"error": toolErr.Error(),
		"kind":  toolErr.Kind,
	})
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return mcp.TextResult(payload, true), nil
}

func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// generateJSONSchema builds the input schema advertised for a tool
func generateJSONSchema(def ToolDefinition) map[string]any {
	properties := make(map[string]any, len(def.Parameters))
	required := []string{}

	for _, param := range def.Parameters {
		properties[param.Name] = map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func validateParameters(schema *gojsonschema.Schema, args map[string]any) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
	}

	return nil
}
