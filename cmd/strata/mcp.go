package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/strata/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes a workspace as an MCP server, so AI agents can edit the filter stack
and read the filtered graph.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Run: func(cmd *cobra.Command, args []string) {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		e, err := setup(cmd)
		exitOnError(err)
		defer e.close()
		if cmd.Flags().Changed("graph") {
			e.cfg.Graph, _ = cmd.Flags().GetString("graph")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ws, _, err := e.openWorkspace(ctx)
		exitOnError(err)
		defer ws.Close()

		// Logs go to stderr, keeping stdout for JSON-RPC.
		srv := mcp.NewServer(ws, mcp.WithLogger(e.logger))

		switch transport {
		case "stdio":
			e.logger.Info("Starting strata MCP server (stdio)", "session_id", e.session)
			exitOnError(srv.ServeStdio())
		case "sse":
			e.logger.Info("Starting strata MCP server (SSE)", "port", port, "session_id", e.session)
			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				exitOnError(err)
			}
			e.logger.Info("MCP server stopped gracefully")
		default:
			exitOnError(fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport))
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
	mcpCmd.Flags().StringP("graph", "g", "", "Graph file to load")
}
