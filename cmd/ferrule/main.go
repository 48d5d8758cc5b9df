package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/ferrule-dev/ferrule/cmd/ferrule/commands"
	"github.com/ferrule-dev/ferrule/config"
	"github.com/ferrule-dev/ferrule/logger"
)

var rootCmd = &cobra.Command{
	Use:   "ferrule",
	Short: "Language intelligence over stdio for tools and agents",
	Long: `ferrule - language server and tool server orchestration.

ferrule spawns language servers and MCP tool servers as child processes,
speaks JSON-RPC 2.0 with LSP-style framing over their stdio, and exposes
the results to humans (CLI commands) and agents (MCP serve mode).

Available commands:
  code    - Query language servers (hover, definition, references)
  lint    - Run the registered linter for a file
  tools   - List and call MCP tool servers
  serve   - Expose language intelligence as an MCP server on stdio
  status  - Show running ferrule processes and their children
  doctor  - Check configuration and server binaries
  config  - Show and manage configuration
  version - Show version information

Examples:
  ferrule code hover main.go 41 8        # Hover info at main.go:41:8
  ferrule lint app.py                    # Lint one file
  ferrule tools call github get_me '{}'  # Call a tool on an MCP server
  ferrule serve                          # Serve MCP over stdio`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")

		// A broken config file cannot block doctor or config init, the
		// commands that diagnose and fix it. Fall back to default logging
		// here and let each command surface the load error itself.
		level := zapcore.InfoLevel
		jsonFormat := false
		if cfg, err := config.Load(); err == nil {
			level = parseLevel(cfg.Log.Level)
			jsonFormat = cfg.Log.Format == "json"
		}

		// The config level is the floor; -v flags only raise verbosity
		if vl := logger.VerbosityToLevel(verbosity); verbosity > 0 && vl < level {
			level = vl
		}
		return logger.InitializeWithLevel(level, jsonFormat)
	},
}

// parseLevel maps a config level string to a zap level, defaulting to info
func parseLevel(s string) zapcore.Level {
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	rootCmd.AddCommand(commands.CodeCmd)
	rootCmd.AddCommand(commands.LintCmd)
	rootCmd.AddCommand(commands.ToolsCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.DoctorCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
