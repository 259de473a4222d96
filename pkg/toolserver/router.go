package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/harun/metagen/pkg/mcp"
)

// MethodHandler handles one JSON-RPC method. Returning an *mcp.Error sends
// that error verbatim; any other error becomes an internal error.
type MethodHandler func(ctx context.Context, params json.RawMessage) (any, error)

// Router handles RPC method registration and request routing
type Router struct {
	mu      sync.RWMutex
	methods map[string]MethodHandler
}

// NewRouter creates a new RPC router
func NewRouter() *Router {
	return &Router{
		methods: make(map[string]MethodHandler),
	}
}

// RegisterMethod registers an RPC method handler
func (r *Router) RegisterMethod(name string, handler MethodHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.methods[name] = handler
	return nil
}

// HasMethod checks if a method is registered
func (r *Router) HasMethod(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.methods[name]
	return exists
}

// ParseRequest parses and validates a JSON-RPC request
func (r *Router) ParseRequest(data []byte) (*mcp.Request, *mcp.Error) {
	var req mcp.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &mcp.Error{
			Code:    mcp.ParseError,
			Message: "Parse error",
			Data:    err.Error(),
		}
	}

	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return &req, &mcp.Error{
			Code:    mcp.InvalidRequest,
			Message: "Invalid request: jsonrpc must be 2.0",
		}
	}
	if req.Method == "" {
		return &req, &mcp.Error{
			Code:    mcp.InvalidRequest,
			Message: "Invalid request: missing method field",
		}
	}

	req.JSONRPC = "2.0"
	return &req, nil
}

// IsNotification reports whether req expects no response
func IsNotification(req *mcp.Request) bool {
	return len(req.ID) == 0 || bytes.Equal(req.ID, []byte("null"))
}

// RouteRequest routes a request to the appropriate handler
func (r *Router) RouteRequest(ctx context.Context, req *mcp.Request) *mcp.Response {
	r.mu.RLock()
	handler, exists := r.methods[req.Method]
	r.mu.RUnlock()

	if !exists {
		return errorResponse(req.ID, &mcp.Error{
			Code:    mcp.MethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		})
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		var rpcErr *mcp.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &mcp.Error{Code: mcp.InternalError, Message: err.Error()}
		}
		return errorResponse(req.ID, rpcErr)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, &mcp.Error{
			Code:    mcp.InternalError,
			Message: fmt.Sprintf("failed to encode result: %v", err),
		})
	}

	return &mcp.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  data,
	}
}

func errorResponse(id json.RawMessage, rpcErr *mcp.Error) *mcp.Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &mcp.Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   rpcErr,
	}
}
