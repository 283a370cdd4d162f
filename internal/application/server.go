package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"tracker-mcp-server/internal/domain"
)

const serverName = "tracker-mcp-server"

// Server is the main MCP server implementation.
// It registers every routed tool and resource on an mcp.Server and serves
// it over the configured transport. Protocol framing belongs to the SDK;
// the Server only adapts between SDK requests and the RequestRouter.
type Server struct {
	mcpServer *mcp.Server
	router    *RequestRouter
	config    *domain.Config
	logger    *slog.Logger
}

// NewServer creates a new MCP server instance.
func NewServer(router *RequestRouter, config *domain.Config, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil),
		router:    router,
		config:    config,
		logger:    logger,
	}

	for _, def := range router.ListAllTools() {
		s.mcpServer.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}, s.toolHandler(def.Name))
	}
	for _, def := range router.ListAllResources() {
		s.mcpServer.AddResource(&mcp.Resource{
			URI:         def.URI,
			Name:        def.Name,
			Description: def.Description,
			MIMEType:    def.MimeType,
		}, s.readResource)
	}

	return s
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// toolHandler adapts a raw SDK tool call to the router.
func (s *Server) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]interface{}{}
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				rpcErr := s.router.mapper.MapError(domain.NewValidationError("arguments must be a JSON object: %v", err))
				return toCallToolResult(s.router.mapper.MapErrorResponse(rpcErr)), nil
			}
			if args == nil {
				args = map[string]interface{}{}
			}
		}

		resp := s.router.Route(ctx, &domain.ToolRequest{Name: name, Arguments: args})
		return toCallToolResult(resp), nil
	}
}

func (s *Server) readResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	res, rpcErr := s.router.ReadResource(ctx, req.Params.URI)
	if rpcErr != nil {
		return nil, toWireError(rpcErr)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      res.URI,
				MIMEType: res.MimeType,
				Text:     res.Text,
			},
		},
	}, nil
}

// toWireError converts a protocol error to the SDK's wire form so that the
// code and data reach the client.
func toWireError(rpcErr *domain.Error) *jsonrpc.Error {
	wireErr := &jsonrpc.Error{Code: int64(rpcErr.Code), Message: rpcErr.Message}
	if rpcErr.Data != nil {
		if data, err := json.Marshal(rpcErr.Data); err == nil {
			wireErr.Data = data
		}
	}
	return wireErr
}

func toCallToolResult(resp *domain.ToolResponse) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(resp.Content))
	for _, block := range resp.Content {
		content = append(content, &mcp.TextContent{Text: block.Text})
	}
	return &mcp.CallToolResult{
		Content:           content,
		StructuredContent: resp.StructuredContent,
		IsError:           resp.IsError,
	}
}

// Run serves until ctx is canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	switch s.config.Transport.Type {
	case "", "stdio":
		s.logger.Info("server started", "transport", "stdio")
		return s.serve(ctx, &mcp.StdioTransport{})
	case "http":
		return s.serveHTTP(ctx)
	default:
		return fmt.Errorf("transport %q is not supported", s.config.Transport.Type)
	}
}

// serve runs the SDK server over transport. Cancellation is a clean exit.
func (s *Server) serve(ctx context.Context, transport mcp.Transport) error {
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// serveHTTP exposes the server as a streamable HTTP endpoint at /mcp.
func (s *Server) serveHTTP(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Transport.HTTP.Host, strconv.Itoa(s.config.Transport.HTTP.Port))

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "transport", "http", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("closing server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
