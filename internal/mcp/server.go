package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cathouse/taskmanager/internal/command"
)

// MCPServer wraps the mcp-go server with one tool per registered action.
// Every tool call goes through the command router with a configured
// service key, so MCP clients are authenticated exactly like HTTP callers.
type MCPServer struct {
	router     *command.Router
	serviceKey string
	logger     *slog.Logger
	server     *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with the router's actions
// and resources. The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(router *command.Router, serviceKey, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		router:     router,
		serviceKey: serviceKey,
		logger:     logger,
	}

	mcpServer := server.NewMCPServer(
		"Task Manager",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, for clients that launch
// the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode", "tools", s.router.Registry().Len())
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

func annotation(readOnly bool) mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(readOnly),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
