package commands

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ferrule-dev/ferrule/config"
	"github.com/ferrule-dev/ferrule/errors"
	"github.com/ferrule-dev/ferrule/lint"
)

// probeTimeout bounds each --version invocation
const probeTimeout = 10 * time.Second

// DoctorCmd checks that the configuration loads and that every configured
// server binary is installed and recent enough.
var DoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and server binaries",
	Long: `Check that the configuration loads, that every configured language and
tool server binary is on PATH, and that binaries with a min_version
constraint report an acceptable version.

Linter binaries are reported too, but a missing linter is a warning, not
a failure: the lint command degrades gracefully without one.

Examples:
  ferrule doctor`,
	SilenceUsage: true,
	RunE:         runDoctor,
}

// checkResult is one probe's outcome
type checkResult struct {
	label  string
	ok     bool
	detail string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		pterm.Error.Printf("configuration: %v\n", err)
		return errors.Wrap(err, "configuration check failed")
	}
	pterm.Success.Println("configuration loads")

	langCfgs, err := cfg.LanguageServers()
	if err != nil {
		pterm.Error.Printf("language servers: %v\n", err)
		return errors.Wrap(err, "language server check failed")
	}
	toolCfgs, err := cfg.ToolServers()
	if err != nil {
		pterm.Error.Printf("tool servers: %v\n", err)
		return errors.Wrap(err, "tool server check failed")
	}

	type target struct {
		label      string
		command    string
		minVersion string
	}
	var targets []target
	for lang, lc := range langCfgs {
		targets = append(targets, target{
			label:      fmt.Sprintf("language %s", lang),
			command:    lc.Command,
			minVersion: cfg.Languages[lang].MinVersion,
		})
	}
	for name, tc := range toolCfgs {
		if !tc.Enabled {
			continue
		}
		targets = append(targets, target{
			label:      fmt.Sprintf("server %s", name),
			command:    tc.Command,
			minVersion: cfg.Servers[name].MinVersion,
		})
	}

	// Probe every binary concurrently; --version on a cold toolchain
	// can take seconds.
	results := make([]checkResult, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = probe(cmd.Context(), t.label, t.command, t.minVersion)
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].label < results[j].label })

	failures := 0
	for _, r := range results {
		if r.ok {
			pterm.Success.Printf("%s: %s\n", r.label, r.detail)
		} else {
			failures++
			pterm.Error.Printf("%s: %s\n", r.label, r.detail)
		}
	}

	// Linters only degrade the lint command, so report without failing
	reg := lint.NewRegistry()
	for _, language := range reg.Languages() {
		l, _ := reg.ForLanguage(language)
		if _, err := exec.LookPath(l.Command); err != nil {
			pterm.Warning.Printf("linter %s: %s not found in PATH\n", l.Name, l.Command)
		} else {
			pterm.Success.Printf("linter %s: %s installed\n", l.Name, l.Command)
		}
	}

	if failures > 0 {
		return errors.Newf("%d check(s) failed", failures)
	}
	pterm.Success.Println("All checks passed")
	return nil
}

// probe looks up a server binary on PATH and, when a constraint is
// configured, runs it with --version and compares.
func probe(ctx context.Context, label, command, minVersion string) checkResult {
	path, err := exec.LookPath(command)
	if err != nil {
		return checkResult{label: label, ok: false, detail: fmt.Sprintf("%s not found in PATH", command)}
	}
	if minVersion == "" {
		return checkResult{label: label, ok: true, detail: fmt.Sprintf("%s installed", path)}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, command, "--version").CombinedOutput()
	if err != nil {
		return checkResult{label: label, ok: false, detail: fmt.Sprintf("%s --version failed: %v", command, err)}
	}

	ok, detail := checkMinVersion(string(out), minVersion)
	return checkResult{label: label, ok: ok, detail: detail}
}

// versionPattern matches the first dotted version number in --version
// output, with or without a leading v.
var versionPattern = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?)`)

// extractVersion pulls a semantic version out of --version output
func extractVersion(output string) (*semver.Version, error) {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return nil, errors.Newf("no version number in %q", strings.TrimSpace(output))
	}
	return semver.NewVersion(m[1])
}

// checkMinVersion compares --version output against a minimum version
func checkMinVersion(output, minVersion string) (bool, string) {
	constraint, err := semver.NewConstraint(">= " + minVersion)
	if err != nil {
		return false, fmt.Sprintf("invalid min_version %q: %v", minVersion, err)
	}
	v, err := extractVersion(output)
	if err != nil {
		return false, err.Error()
	}
	if !constraint.Check(v) {
		return false, fmt.Sprintf("version %s is below required %s", v, minVersion)
	}
	return true, fmt.Sprintf("version %s (>= %s)", v, minVersion)
}
