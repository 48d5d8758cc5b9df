package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ferrule-dev/ferrule/config"
	"github.com/ferrule-dev/ferrule/errors"
	"github.com/ferrule-dev/ferrule/lint"
)

// LintCmd runs the registered external linter for one file
var LintCmd = &cobra.Command{
	Use:   "lint <file>",
	Short: "Run the registered linter for a file",
	Long: `Run the external linter registered for the file's language and print
its diagnostics.

Linters run one-shot with JSON output (golangci-lint for Go, ruff for
Python, eslint for JavaScript and TypeScript). Set linter = "pyright"
under a [languages.<id>] section in ferrule.toml to swap a language's
default. A language without a registered linter, or a linter binary that
is not installed, is reported as unavailable rather than failing the
command.

Example:
  ferrule lint app.py`,
	Args: cobra.ExactArgs(1),
	RunE: runLint,
}

func runLint(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	runner := lintRunner(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	diagnostics, err := runner.Lint(ctx, args[0])
	if err != nil {
		if errors.IsNotFound(err) {
			pterm.Warning.Printf("Linting unavailable: %v\n", err)
			return nil
		}
		return err
	}

	if len(diagnostics) == 0 {
		pterm.Success.Println("No lint issues found")
		return nil
	}

	for _, d := range diagnostics {
		severity := string(d.Severity)
		switch d.Severity {
		case lint.SeverityError:
			severity = pterm.Red(severity)
		case lint.SeverityWarning:
			severity = pterm.Yellow(severity)
		default:
			severity = pterm.Gray(severity)
		}

		line := fmt.Sprintf("%s:%d:%d %s %s", d.File, d.Line, d.Column, severity, d.Message)
		if d.Rule != "" {
			line += fmt.Sprintf(" (%s)", d.Rule)
		}
		fmt.Println(line)
	}

	pterm.Warning.Printf("Found %d issue(s)\n", len(diagnostics))
	return nil
}
