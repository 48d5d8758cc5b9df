package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ferrule-dev/ferrule/config"
	"github.com/ferrule-dev/ferrule/errors"
	"github.com/ferrule-dev/ferrule/langserver"
)

// CodeCmd groups the language intelligence commands
var CodeCmd = &cobra.Command{
	Use:   "code",
	Short: "Query language servers for code intelligence",
	Long: `Query language servers over LSP for code intelligence.

The server for the file's language is spawned on demand and stopped when
the command finishes. Positions are zero-based, matching the LSP wire
format: line 0 is the first line, character 0 the first column.

Examples:
  ferrule code hover main.go 41 8
  ferrule code definition main.go 41 8
  ferrule code references main.go 41 8 --include-declaration=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var codeHoverCmd = &cobra.Command{
	Use:   "hover <file> <line> <character>",
	Short: "Show hover information at a position",
	Args:  cobra.ExactArgs(3),
	RunE:  runCodeHover,
}

var codeDefinitionCmd = &cobra.Command{
	Use:   "definition <file> <line> <character>",
	Short: "Find where the symbol at a position is defined",
	Args:  cobra.ExactArgs(3),
	RunE:  runCodeDefinition,
}

var codeReferencesCmd = &cobra.Command{
	Use:   "references <file> <line> <character>",
	Short: "Find all references to the symbol at a position",
	Args:  cobra.ExactArgs(3),
	RunE:  runCodeReferences,
}

func init() {
	codeReferencesCmd.Flags().Bool("include-declaration", true, "Include the declaration in results")

	CodeCmd.AddCommand(codeHoverCmd)
	CodeCmd.AddCommand(codeDefinitionCmd)
	CodeCmd.AddCommand(codeReferencesCmd)
}

// parsePosition validates the shared <file> <line> <character> arguments
func parsePosition(args []string) (string, int, int, error) {
	line, err := strconv.Atoi(args[1])
	if err != nil {
		return "", 0, 0, errors.Newf("line must be an integer, got %q", args[1])
	}
	character, err := strconv.Atoi(args[2])
	if err != nil {
		return "", 0, 0, errors.Newf("character must be an integer, got %q", args[2])
	}
	return args[0], line, character, nil
}

func runCodeHover(cmd *cobra.Command, args []string) error {
	file, line, character, err := parsePosition(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	mgr, err := languageManager(cfg)
	if err != nil {
		return err
	}
	defer stopAll(mgr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hover, err := mgr.Hover(ctx, file, line, character)
	if err != nil {
		return err
	}

	text := hover.Text()
	if text == "" {
		pterm.Info.Println("No hover information available")
		return nil
	}

	fmt.Println(text)
	return nil
}

func runCodeDefinition(cmd *cobra.Command, args []string) error {
	file, line, character, err := parsePosition(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	mgr, err := languageManager(cfg)
	if err != nil {
		return err
	}
	defer stopAll(mgr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	locations, err := mgr.Definition(ctx, file, line, character)
	if err != nil {
		return err
	}

	printLocations(locations, "definition")
	return nil
}

func runCodeReferences(cmd *cobra.Command, args []string) error {
	file, line, character, err := parsePosition(args)
	if err != nil {
		return err
	}
	includeDecl, _ := cmd.Flags().GetBool("include-declaration")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	mgr, err := languageManager(cfg)
	if err != nil {
		return err
	}
	defer stopAll(mgr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	locations, err := mgr.References(ctx, file, line, character, includeDecl)
	if err != nil {
		return err
	}

	printLocations(locations, "reference")
	return nil
}

// printLocations prints a numbered file:line:character list
func printLocations(locations []langserver.Location, kind string) {
	if len(locations) == 0 {
		pterm.Info.Printf("No %ss found\n", kind)
		return
	}

	fmt.Printf("Found %d %s(s):\n", len(locations), kind)
	for i, loc := range locations {
		fmt.Printf("%d. %s:%d:%d\n", i+1, loc.Path(), loc.Range.Start.Line, loc.Range.Start.Character)
	}
}
