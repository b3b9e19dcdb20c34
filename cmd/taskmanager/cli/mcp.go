package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cathouse/taskmanager/internal/action"
	"github.com/cathouse/taskmanager/internal/command"
	tmcp "github.com/cathouse/taskmanager/internal/mcp"
	"github.com/cathouse/taskmanager/internal/service"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes every command
action as a tool. Tool calls authenticate with the service key configured in
mcp.service_key (TASKMANAGER_MCP_SERVICE_KEY), exactly like HTTP clients.

In stdio mode the server communicates over stdin/stdout using JSON-RPC.
In HTTP mode it listens on the given port using Streamable HTTP.`,
		Example: `  taskmanager mcp                            # stdio mode
  taskmanager mcp --transport http --port 3001  # HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP()
		},
	}

	cmd.Flags().String("transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().Int("port", 3001, "HTTP port (only used with --transport http)")
	cmd.Flags().String("service-key", "", "Service key tool calls authenticate with")

	viper.BindPFlag("mcp.transport", cmd.Flags().Lookup("transport"))
	viper.BindPFlag("mcp.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("mcp.service_key", cmd.Flags().Lookup("service-key"))

	return cmd
}

func runMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.MCP.ServiceKey == "" {
		return fmt.Errorf("mcp.service_key is required (issue one with 'taskmanager key issue')")
	}

	// stdout carries the protocol in stdio mode.
	logger := newLogger(cfg, os.Stderr, false)

	st, err := openStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	keys := service.NewKeyService(st, logger, cfg.Auth.RotationGracePeriod, nil)
	router := command.NewRouter(keys, action.NewRegistry(nil), st, logger)
	mcpSrv := tmcp.NewMCPServer(router, cfg.MCP.ServiceKey, versionString(), logger)

	switch cfg.MCP.Transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", cfg.MCP.Port))
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", cfg.MCP.Transport)
	}
}
