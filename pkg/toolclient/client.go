// Package toolclient connects to a metagen tool server, discovers its tools
// and invokes them.
package toolclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/metagen/internal/tracing"
	"github.com/harun/metagen/pkg/mcp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const defaultCallTimeout = 30 * time.Second

// Options configure a Client
type Options struct {
	CallTimeout   time.Duration
	ClientName    string
	ClientVersion string
	Logger        zerolog.Logger
}

// ToolOutput is the result of one tool invocation. Content holds the JSON
// payload produced by the tool; IsError marks tool-level failures.
type ToolOutput struct {
	Content json.RawMessage
	IsError bool
}

// Client is a JSON-RPC client for the tool server. It is safe for concurrent
// use; responses are matched to requests by id.
type Client struct {
	url     string
	conn    *websocket.Conn
	timeout time.Duration
	logger  zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu      sync.Mutex
	id      uint64
	pending map[uint64]chan *mcp.Response
	closed  bool
	readErr error
	done    chan struct{}

	server mcp.Implementation
}

// Dial connects to the tool server at url and performs the initialize
// handshake. Any failure is reported as *TransportUnavailableError.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.ClientName == "" {
		opts.ClientName = "metagen"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "dev"
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, &TransportUnavailableError{URL: url, Err: err}
	}

	c := &Client{
		url:     url,
		conn:    conn,
		timeout: opts.CallTimeout,
		logger:  opts.Logger,
		pending: make(map[uint64]chan *mcp.Response),
		done:    make(chan struct{}),
	}
	go c.listen()

	if err := c.initialize(ctx, opts); err != nil {
		_ = c.Close()
		return nil, &TransportUnavailableError{URL: url, Err: err}
	}

	c.logger.Debug().
		Str("url", url).
		Str("server", c.server.Name).
		Str("server_version", c.server.Version).
		Msg("Connected to tool server")

	return c, nil
}

// URL returns the server address the client dialed.
func (c *Client) URL() string {
	return c.url
}

// Server returns the server identity reported during initialize.
func (c *Client) Server() mcp.Implementation {
	return c.server
}

func (c *Client) initialize(ctx context.Context, opts Options) error {
	var result mcp.InitializeResult
	err := c.call(ctx, mcp.MethodInitialize, mcp.InitializeParams{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo: mcp.Implementation{
			Name:    opts.ClientName,
			Version: opts.ClientVersion,
		},
	}, &result)
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	c.server = result.ServerInfo

	return c.notify(mcp.Request{JSONRPC: "2.0", Method: "notifications/initialized"})
}

// Discover lists the server's tools. Zero tools is not an error.
func (c *Client) Discover(ctx context.Context) (*Registry, error) {
	var result mcp.ListToolsResult
	if err := c.call(ctx, mcp.MethodToolsList, nil, &result); err != nil {
		return nil, &TransportUnavailableError{URL: c.url, Err: fmt.Errorf("tools/list failed: %w", err)}
	}

	descriptors := make([]ToolDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		descriptors = append(descriptors, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return NewRegistry(descriptors), nil
}

// CallTool invokes a tool. Transport and protocol failures are returned as
// errors; tool failures come back with IsError set.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (ToolOutput, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerToolClient, "toolclient.call_tool",
		attribute.String("tool.name", name),
	)
	defer span.End()

	var result mcp.CallToolResult
	if err := c.call(ctx, mcp.MethodToolsCall, mcp.CallToolParams{Name: name, Arguments: args}, &result); err != nil {
		tracing.FailSpan(span, err)
		return ToolOutput{}, fmt.Errorf("tool %s: %w", name, err)
	}

	span.SetAttributes(attribute.Bool("tool.is_error", result.IsError))
	return ToolOutput{
		Content: contentJSON(result.Text()),
		IsError: result.IsError,
	}, nil
}

// contentJSON keeps JSON text as-is and encodes anything else as a string.
func contentJSON(text string) json.RawMessage {
	if json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	data, _ := json.Marshal(text)
	return data
}

// Close closes the connection and fails pending calls. Close is idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		if c.readErr == nil {
			c.readErr = ErrClosed
		}
		c.mu.Unlock()

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
		<-c.done
	})
	return err
}

func (c *Client) listen() {
	defer close(c.done)

	for {
		var resp mcp.Response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.failPending(err)
			return
		}

		id, err := strconv.ParseUint(string(resp.ID), 10, 64)
		if err != nil {
			c.logger.Warn().Str("id", string(resp.ID)).Msg("Dropping response with unexpected id")
			continue
		}

		c.mu.Lock()
		ch, exists := c.pending[id]
		if exists {
			delete(c.pending, id)
		}
		c.mu.Unlock()

		if exists {
			ch <- &resp
		}
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.readErr == nil {
		c.readErr = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	c.closed = true
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
}

func (c *Client) notify(req mcp.Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(req)
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode params: %w", err)
		}
		rawParams = data
	}

	c.mu.Lock()
	if c.closed {
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return err
	}
	c.id++
	id := c.id
	ch := make(chan *mcp.Response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(strconv.FormatUint(id, 10)),
		Method:  method,
		Params:  rawParams,
	}
	if err := c.notify(req); err != nil {
		c.forget(id)
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.readErr
			c.mu.Unlock()
			return err
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out != nil {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-timer.C:
		c.forget(id)
		return fmt.Errorf("%s timed out after %s", method, c.timeout)
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
