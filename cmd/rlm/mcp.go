package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/rlm/internal/mcpserver"
	"github.com/ShayCichocki/rlm/internal/version"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the rlm tools over MCP (stdio)",
	Long: `Run an MCP server on stdin/stdout exposing rlm_analyze,
rlm_check_freshness, rlm_status and rlm_search_rag.

Logs go to stderr. Example client configuration:

  {"mcpServers": {"rlm": {"command": "rlm", "args": ["mcp"]}}}`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, e, err := openService(ctx, false)
	if err != nil {
		return err
	}
	defer e.Close()
	defer svc.Close()

	return mcpserver.New(svc, version.Get(), e.logger).Run(ctx)
}
