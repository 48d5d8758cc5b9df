package lint

import (
	"context"
	"os/exec"
	"sort"

	"go.uber.org/zap"

	"github.com/ferrule-dev/ferrule/errors"
	"github.com/ferrule-dev/ferrule/langserver"
)

// Runner executes the registered linter for a file and returns normalized
// diagnostics. Linters signal findings with a nonzero exit, so only a
// command that failed to run at all is an error.
type Runner struct {
	registry *Registry
	dir      string
	log      *zap.SugaredLogger

	// lookPath and run are swapped by tests
	lookPath func(file string) (string, error)
	run      func(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// NewRunner builds a runner over the registry, executing linters in dir
func NewRunner(registry *Registry, dir string, log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{
		registry: registry,
		dir:      dir,
		log:      log,
		lookPath: exec.LookPath,
		run:      runCommand,
	}
}

// Lint analyzes one file. A language without a registered linter, or a
// linter binary that is not installed, surfaces ErrNotFound so callers can
// degrade gracefully.
func (r *Runner) Lint(ctx context.Context, path string) ([]Diagnostic, error) {
	language, err := langserver.LanguageForPath(path)
	if err != nil {
		return nil, err
	}

	linter, ok := r.registry.ForLanguage(language)
	if !ok {
		return nil, errors.NewNotFoundf("no linter registered for %s", language)
	}
	if _, err := r.lookPath(linter.Command); err != nil {
		return nil, errors.NewNotFoundf("linter %s is not installed", linter.Command)
	}

	args := append(append([]string{}, linter.Args...), path)
	r.log.Debugw("running linter",
		"linter", linter.Name,
		"file", path)

	output, err := r.run(ctx, r.dir, linter.Command, args...)
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, errors.Wrapf(err, "failed to run %s", linter.Name)
		}
		// Findings exit nonzero; the JSON on stdout is still the answer
	}

	diags, err := linter.Parse(output, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s output", linter.Name)
	}

	sort.Slice(diags, func(i, j int) bool {
		if diags[i].File != diags[j].File {
			return diags[i].File < diags[j].File
		}
		if diags[i].Line != diags[j].Line {
			return diags[i].Line < diags[j].Line
		}
		return diags[i].Column < diags[j].Column
	})
	return diags, nil
}

func runCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.Output()
}
