package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aretw0/autoflow"
	"github.com/aretw0/autoflow/internal/cli"
	"github.com/aretw0/autoflow/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the AutoFlow engine as an MCP Server.
This allows AI agents to list, run, activate and inspect workflows as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		baseURL, _ := cmd.Flags().GetString("base-url")
		workflows, _ := cmd.Flags().GetString("workflows")

		rt, err := cli.NewEngine(cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		if workflows != "" {
			if err := seedWorkflows(ctx, rt.Engine, logger, workflows, false); err != nil {
				return err
			}
		}

		rt.Engine.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := rt.Engine.Shutdown(shutdownCtx); err != nil {
				logger.Error("runs still in flight at exit", "err", err)
			}
		}()

		srv := mcp.NewServer(rt.Engine, autoflow.Version, mcp.WithLogger(logger))

		switch transport {
		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			logger.Info("starting autoflow MCP server", "transport", "stdio")
			return srv.ServeStdio()
		case "sse":
			logger.Info("starting autoflow MCP server", "transport", "sse", "addr", addr)
			if err := srv.ServeSSE(ctx, addr, baseURL); err != nil {
				return err
			}
			logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport %q, supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":8080", "Address to listen on (only for SSE)")
	mcpCmd.Flags().String("base-url", "", "Public base URL announced to SSE clients")
	mcpCmd.Flags().String("workflows", "", "Workflow definition file or directory to load at startup")
}
