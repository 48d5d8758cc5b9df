package commands

import (
	"github.com/spf13/cobra"

	"github.com/ferrule-dev/ferrule/config"
	"github.com/ferrule-dev/ferrule/logger"
	"github.com/ferrule-dev/ferrule/server"
)

// ServeCmd runs ferrule as an MCP server on stdio
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose language intelligence as an MCP server on stdio",
	Long: `Run ferrule as a Model Context Protocol server.

Exposes code_hover, code_definition, code_references, and code_lint as
MCP tools, backed by on-demand language servers. stdout carries the
protocol; all logging goes to stderr.

Typical use is an MCP client configuration pointing at this command:
  { "command": "ferrule", "args": ["serve"] }`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	mgr, err := languageManager(cfg)
	if err != nil {
		return err
	}
	defer stopAll(mgr)

	srv := server.New(cfg.Code.WorkspaceRoot, mgr, lintRunner(cfg), logger.Logger.Named("mcp"))
	return srv.Serve()
}
