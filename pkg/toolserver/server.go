package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/metagen/internal/observability"
	"github.com/harun/metagen/internal/tracing"
	"github.com/harun/metagen/pkg/mcp"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ServerName is reported in the initialize handshake.
const ServerName = "metagen-tools"

// Server is the tool server dispatcher. It speaks JSON-RPC 2.0 over
// WebSocket at /ws and exposes /healthz and /metrics.
type Server struct {
	addr     string
	version  string
	registry *Registry
	router   *Router
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	server   *http.Server
	listener net.Listener

	clientsMu sync.Mutex
	clients   map[string]*client

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlightReqs   sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Addr     string
	Version  string
	Registry *Registry
	Logger   zerolog.Logger
}

type client struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// writeJSON serializes writes; gorilla connections allow one concurrent writer.
func (c *client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// NewServer creates a new tool server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		addr:     cfg.Addr,
		version:  cfg.Version,
		registry: cfg.Registry,
		router:   NewRouter(),
		logger:   cfg.Logger,
		clients:  make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.registerMethods()
	observability.EnsureRegistered()

	return s, nil
}

func (s *Server) registerMethods() {
	_ = s.router.RegisterMethod(mcp.MethodInitialize, s.handleInitialize)
	_ = s.router.RegisterMethod(mcp.MethodToolsList, s.handleToolsList)
	_ = s.router.RegisterMethod(mcp.MethodToolsCall, s.handleToolsCall)
}

// Handler returns the HTTP handler serving /ws, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","tools":%d}`, s.registry.Len())
	})
	return mux
}

// Start binds the listen address and serves in the background. Bind errors
// (for example an address already in use) are returned synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Int("tools", s.registry.Len()).
		Msg("Starting tool server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Tool server error")
		}
	}()

	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections, waits for in-flight requests until
// ctx expires and closes every client connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down tool server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.clientsMu.Lock()
	for _, c := range s.clients {
		_ = c.conn.Close()
	}
	s.clientsMu.Unlock()

	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Tool server stopped")
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	c := &client{id: clientID, conn: conn}

	s.clientsMu.Lock()
	s.clients[clientID] = c
	observability.SetToolServerClients(len(s.clients))
	s.clientsMu.Unlock()

	s.logger.Info().
		Str("client_id", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	go s.handleClient(c)
}

func (s *Server) handleClient(c *client) {
	defer func() {
		_ = c.conn.Close()
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		observability.SetToolServerClients(len(s.clients))
		s.clientsMu.Unlock()
		s.logger.Info().Str("client_id", c.id).Msg("Client disconnected")
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("client_id", c.id).Msg("WebSocket error")
			}
			return
		}

		s.handleMessage(c, message)
	}
}

func (s *Server) handleMessage(c *client, message []byte) {
	req, rpcErr := s.router.ParseRequest(message)
	if rpcErr != nil {
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		observability.RecordToolServerRequest("invalid", false)
		s.send(c, errorResponse(id, rpcErr))
		return
	}

	if IsNotification(req) {
		s.logger.Debug().Str("client_id", c.id).Str("method", req.Method).Msg("Notification received")
		return
	}

	// Add must not race the Wait in Shutdown; the flag flips under the write lock.
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		observability.RecordToolServerRequest(req.Method, false)
		s.send(c, errorResponse(req.ID, &mcp.Error{
			Code:    mcp.ServerShuttingDown,
			Message: "server is shutting down",
		}))
		return
	}
	s.inFlightReqs.Add(1)
	s.shutdownMu.RUnlock()

	go func() {
		defer s.inFlightReqs.Done()

		ctx := tracing.WithTraceID(context.Background(), tracing.NewTraceID())
		ctx, span := tracing.StartSpan(ctx, tracing.TracerToolServer, "toolserver."+req.Method,
			attribute.String("rpc.method", req.Method),
			attribute.String("client_id", c.id),
		)
		defer span.End()

		resp := s.router.RouteRequest(ctx, req)
		if resp.Error != nil {
			tracing.FailSpan(span, resp.Error)
		}
		observability.RecordToolServerRequest(req.Method, resp.Error == nil)
		s.send(c, resp)
	}()
}

func (s *Server) send(c *client, resp *mcp.Response) {
	if err := c.writeJSON(resp); err != nil {
		s.logger.Error().
			Err(err).
			Str("client_id", c.id).
			Msg("Failed to send response")
	}
}

func (s *Server) handleInitialize(_ context.Context, _ json.RawMessage) (any, error) {
	return mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
		ServerInfo: mcp.Implementation{
			Name:    ServerName,
			Version: s.version,
		},
	}, nil
}

func (s *Server) handleToolsList(_ context.Context, _ json.RawMessage) (any, error) {
	return mcp.ListToolsResult{Tools: s.registry.List()}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var p mcp.CallToolParams
	if len(params) == 0 {
		return nil, &mcp.Error{Code: mcp.InvalidParams, Message: "Invalid params: missing tool name"}
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &mcp.Error{Code: mcp.InvalidParams, Message: "Invalid params", Data: err.Error()}
	}
	if p.Name == "" {
		return nil, &mcp.Error{Code: mcp.InvalidParams, Message: "Invalid params: missing tool name"}
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	start := time.Now()

	result, err := s.registry.Call(ctx, p.Name, p.Arguments)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("tool", p.Name).
		Bool("is_error", result.IsError).
		Dur("duration", time.Since(start)).
		Msg("Tool call handled")

	return result, nil
}
