package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ferrule-dev/ferrule/config"
	"github.com/ferrule-dev/ferrule/errors"
	"github.com/ferrule-dev/ferrule/logger"
	"github.com/ferrule-dev/ferrule/toolserver"
)

// ToolsCmd groups the MCP tool server commands
var ToolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List and call MCP tool servers",
	Long: `List configured MCP tool servers, inspect their tools, and call them.

Servers come from [servers.*] in the config file merged with standalone
descriptor files in the servers directory. A server is spawned on demand
and stopped when the command finishes.

Examples:
  ferrule tools list                          # Configured servers
  ferrule tools list github                   # Tools advertised by one server
  ferrule tools call github get_me '{}'       # Call a tool
  ferrule tools call github search_issues '{"query": "is:open author:@me"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var toolsListCmd = &cobra.Command{
	Use:   "list [server]",
	Short: "List configured servers, or the tools one server advertises",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runToolsList,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <server> <tool> [json-args]",
	Short: "Call a tool on an MCP server",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runToolsCall,
}

func init() {
	ToolsCmd.AddCommand(toolsListCmd)
	ToolsCmd.AddCommand(toolsCallCmd)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfgs, err := cfg.ToolServers()
	if err != nil {
		return err
	}

	// Without a server argument, report configuration; nothing is spawned
	if len(args) == 0 {
		if len(cfgs) == 0 {
			pterm.Info.Println("No tool servers configured")
			return nil
		}

		names := make([]string, 0, len(cfgs))
		for name := range cfgs {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			sc := cfgs[name]
			state := pterm.Green("enabled")
			if !sc.Enabled {
				state = pterm.Gray("disabled")
			}
			command := strings.Join(append([]string{sc.Command}, sc.Args...), " ")
			fmt.Printf("%s  %s  %s\n", name, state, command)
		}
		return nil
	}

	mgr := toolserver.NewManager(cfgs, logger.Logger.Named("toolserver"))
	defer stopAll(mgr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := mgr.GetClient(ctx, args[0])
	if err != nil {
		return err
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		return err
	}

	if len(tools) == 0 {
		pterm.Info.Printf("%s advertises no tools\n", args[0])
		return nil
	}

	fmt.Printf("Found %d tool(s) on %s:\n", len(tools), args[0])
	for i, tool := range tools {
		fmt.Printf("%d. %s", i+1, tool.Name)
		if tool.Description != "" {
			fmt.Printf(" - %s", tool.Description)
		}
		fmt.Println()
	}
	return nil
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	toolArgs := map[string]interface{}{}
	if len(args) == 3 {
		if err := json.Unmarshal([]byte(args[2]), &toolArgs); err != nil {
			return errors.Wrap(err, "tool arguments must be a JSON object")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	mgr, err := toolManager(cfg)
	if err != nil {
		return err
	}
	defer stopAll(mgr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := mgr.CallTool(ctx, args[0], args[1], toolArgs)
	if err != nil {
		return err
	}

	text := toolserver.ResultText(res)
	if res.IsError {
		return errors.Newf("tool %s failed: %s", args[1], text)
	}
	if text == "" {
		pterm.Info.Println("Tool returned no text content")
		return nil
	}

	fmt.Println(text)
	return nil
}
