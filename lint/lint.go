// Package lint runs external analyzers one-shot and normalizes their JSON
// findings into a single diagnostic shape.
package lint

import (
	"sort"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/ferrule-dev/ferrule/errors"
)

// Severity grades a finding
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one normalized finding
type Diagnostic struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Severity Severity `json:"severity"`
	Rule     string   `json:"rule,omitempty"`
	Message  string   `json:"message"`
}

// Linter describes one analyzer: the command to run and how to mine
// diagnostics out of its JSON output. The target path is appended to Args.
type Linter struct {
	Name     string
	Language string
	Command  string
	Args     []string
	Parse    func(output []byte, target string) ([]Diagnostic, error)
}

// Registry maps language ids to linters
type Registry struct {
	mu      sync.RWMutex
	linters map[string]Linter
}

// NewRegistry builds a registry seeded with the built-in linters
func NewRegistry() *Registry {
	r := &Registry{linters: make(map[string]Linter)}
	for _, l := range builtins() {
		r.Register(l)
	}
	return r
}

// Register adds or replaces the linter for its language
func (r *Registry) Register(l Linter) {
	r.mu.Lock()
	r.linters[l.Language] = l
	r.mu.Unlock()
}

// ForLanguage returns the linter registered for a language id
func (r *Registry) ForLanguage(language string) (Linter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.linters[language]
	return l, ok
}

// Languages lists the language ids with a registered linter, sorted
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]string, 0, len(r.linters))
	for lang := range r.linters {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// named holds every linter definition ferrule knows how to parse. builtins
// picks per-language defaults from it; config may swap in any other entry by
// name (e.g. pyright instead of ruff).
func named() map[string]Linter {
	return map[string]Linter{
		"golangci-lint": {
			Name:     "golangci-lint",
			Language: "go",
			Command:  "golangci-lint",
			Args:     []string{"run", "--out-format", "json"},
			Parse:    parseGolangciLint,
		},
		"ruff": {
			Name:     "ruff",
			Language: "python",
			Command:  "ruff",
			Args:     []string{"check", "--output-format", "json"},
			Parse:    parseRuff,
		},
		"pyright": {
			Name:     "pyright",
			Language: "python",
			Command:  "pyright",
			Args:     []string{"--outputjson"},
			Parse:    parsePyright,
		},
		"eslint": {
			Name:     "eslint",
			Language: "javascript",
			Command:  "eslint",
			Args:     []string{"--format", "json"},
			Parse:    parseESLint,
		},
	}
}

// ByName returns a known linter definition re-keyed to the given language,
// so config can route any supported language to it.
func ByName(name, language string) (Linter, bool) {
	l, ok := named()[name]
	if !ok {
		return Linter{}, false
	}
	l.Language = language
	return l, true
}

func builtins() []Linter {
	defs := named()
	linters := []Linter{defs["golangci-lint"], defs["ruff"]}
	for _, lang := range []string{"javascript", "javascriptreact", "typescript", "typescriptreact"} {
		l := defs["eslint"]
		l.Language = lang
		linters = append(linters, l)
	}
	return linters
}

// parseGolangciLint mines `golangci-lint run --out-format json`:
// Issues[].{FromLinter, Text, Severity, Pos.{Filename, Line, Column}}
func parseGolangciLint(output []byte, _ string) ([]Diagnostic, error) {
	if !gjson.ValidBytes(output) {
		return nil, errors.Newf("golangci-lint produced invalid JSON: %.80s", string(output))
	}

	var diags []Diagnostic
	gjson.GetBytes(output, "Issues").ForEach(func(_, issue gjson.Result) bool {
		diags = append(diags, Diagnostic{
			File:     issue.Get("Pos.Filename").String(),
			Line:     int(issue.Get("Pos.Line").Int()),
			Column:   int(issue.Get("Pos.Column").Int()),
			Severity: normalizeSeverity(issue.Get("Severity").String()),
			Rule:     issue.Get("FromLinter").String(),
			Message:  issue.Get("Text").String(),
		})
		return true
	})
	return diags, nil
}

// parseRuff mines `ruff check --output-format json`:
// [].{code, message, filename, location.{row, column}}
func parseRuff(output []byte, _ string) ([]Diagnostic, error) {
	if !gjson.ValidBytes(output) {
		return nil, errors.Newf("ruff produced invalid JSON: %.80s", string(output))
	}

	var diags []Diagnostic
	gjson.ParseBytes(output).ForEach(func(_, finding gjson.Result) bool {
		diags = append(diags, Diagnostic{
			File:     finding.Get("filename").String(),
			Line:     int(finding.Get("location.row").Int()),
			Column:   int(finding.Get("location.column").Int()),
			Severity: SeverityWarning,
			Rule:     finding.Get("code").String(),
			Message:  finding.Get("message").String(),
		})
		return true
	})
	return diags, nil
}

// parsePyright mines `pyright --outputjson`:
// generalDiagnostics[].{file, severity, message, rule, range.start.{line,
// character}}. Positions are zero-based and bumped to one-based here.
func parsePyright(output []byte, _ string) ([]Diagnostic, error) {
	if !gjson.ValidBytes(output) {
		return nil, errors.Newf("pyright produced invalid JSON: %.80s", string(output))
	}

	var diags []Diagnostic
	gjson.GetBytes(output, "generalDiagnostics").ForEach(func(_, d gjson.Result) bool {
		diags = append(diags, Diagnostic{
			File:     d.Get("file").String(),
			Line:     int(d.Get("range.start.line").Int()) + 1,
			Column:   int(d.Get("range.start.character").Int()) + 1,
			Severity: normalizeSeverity(d.Get("severity").String()),
			Rule:     d.Get("rule").String(),
			Message:  d.Get("message").String(),
		})
		return true
	})
	return diags, nil
}

// parseESLint mines `eslint --format json`, which nests findings under
// file entries: [].{filePath, messages[].{ruleId, severity, message, line,
// column}}. Severity 2 is an error, 1 a warning.
func parseESLint(output []byte, _ string) ([]Diagnostic, error) {
	if !gjson.ValidBytes(output) {
		return nil, errors.Newf("eslint produced invalid JSON: %.80s", string(output))
	}

	var diags []Diagnostic
	gjson.ParseBytes(output).ForEach(func(_, file gjson.Result) bool {
		path := file.Get("filePath").String()
		file.Get("messages").ForEach(func(_, msg gjson.Result) bool {
			severity := SeverityWarning
			if msg.Get("severity").Int() == 2 {
				severity = SeverityError
			}
			diags = append(diags, Diagnostic{
				File:     path,
				Line:     int(msg.Get("line").Int()),
				Column:   int(msg.Get("column").Int()),
				Severity: severity,
				Rule:     msg.Get("ruleId").String(),
				Message:  msg.Get("message").String(),
			})
			return true
		})
		return true
	})
	return diags, nil
}

func normalizeSeverity(s string) Severity {
	switch s {
	case "error":
		return SeverityError
	case "info", "information", "note":
		return SeverityInfo
	default:
		return SeverityWarning
	}
}
