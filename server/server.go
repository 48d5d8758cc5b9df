// Package server exposes ferrule's language intelligence over the Model
// Context Protocol, so MCP-speaking agents can query hover, definition,
// reference, and lint information through a single stdio endpoint.
package server

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ferrule-dev/ferrule/errors"
	"github.com/ferrule-dev/ferrule/langserver"
	"github.com/ferrule-dev/ferrule/lint"
	"github.com/ferrule-dev/ferrule/version"
)

// language is the slice of langserver.Manager the code tools consume
type language interface {
	Hover(ctx context.Context, path string, line, character int) (*langserver.Hover, error)
	Definition(ctx context.Context, path string, line, character int) ([]langserver.Location, error)
	References(ctx context.Context, path string, line, character int, includeDeclaration bool) ([]langserver.Location, error)
}

// linter is the slice of lint.Runner the code_lint tool consumes
type linter interface {
	Lint(ctx context.Context, path string) ([]lint.Diagnostic, error)
}

// Server wraps the language server manager and lint runner and exposes them
// via Model Context Protocol
type Server struct {
	workspaceRoot string
	langs         language
	linter        linter
	log           *zap.SugaredLogger
	server        *mcpserver.MCPServer
}

// New creates the MCP server and registers its tools
func New(workspaceRoot string, langs language, linter linter, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	s := &Server{
		workspaceRoot: workspaceRoot,
		langs:         langs,
		linter:        linter,
		log:           log,
	}

	s.server = mcpserver.NewMCPServer(
		"ferrule",
		version.Version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// Serve answers MCP requests over stdin/stdout until the stream closes
func (s *Server) Serve() error {
	s.log.Infow("serving MCP over stdio", "workspace_root", s.workspaceRoot)
	if err := mcpserver.ServeStdio(s.server); err != nil {
		return errors.Wrap(err, "mcp server failed")
	}
	return nil
}

// registerTools registers all MCP tools for language intelligence operations
func (s *Server) registerTools() {
	hoverTool := mcp.NewTool("code_hover",
		mcp.WithDescription("Get hover information (documentation, type info) for a symbol"),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("File path, absolute or relative to the workspace root"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("Line number (zero-based)"),
		),
		mcp.WithNumber("character",
			mcp.Required(),
			mcp.Description("Character offset (zero-based)"),
		),
	)
	s.server.AddTool(hoverTool, s.handleHover)

	definitionTool := mcp.NewTool("code_definition",
		mcp.WithDescription("Find the definition of a symbol"),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("File path, absolute or relative to the workspace root"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("Line number (zero-based)"),
		),
		mcp.WithNumber("character",
			mcp.Required(),
			mcp.Description("Character offset (zero-based)"),
		),
	)
	s.server.AddTool(definitionTool, s.handleDefinition)

	referencesTool := mcp.NewTool("code_references",
		mcp.WithDescription("Find all references to a symbol"),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("File path, absolute or relative to the workspace root"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("Line number (zero-based)"),
		),
		mcp.WithNumber("character",
			mcp.Required(),
			mcp.Description("Character offset (zero-based)"),
		),
		mcp.WithBoolean("include_declaration",
			mcp.Description("Include the symbol declaration in results (default: true)"),
		),
	)
	s.server.AddTool(referencesTool, s.handleReferences)

	lintTool := mcp.NewTool("code_lint",
		mcp.WithDescription("Run the registered linter for a file and report diagnostics"),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("File path, absolute or relative to the workspace root"),
		),
	)
	s.server.AddTool(lintTool, s.handleLint)
}

// handleHover handles code_hover tool calls
func (s *Server) handleHover(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	line, err := request.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	character, err := request.RequireInt("character")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	hover, err := s.langs.Hover(ctx, s.resolvePath(file), line, character)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get hover info: %v", err)), nil
	}

	text := hover.Text()
	if text == "" {
		return mcp.NewToolResultText("No hover information available"), nil
	}

	return mcp.NewToolResultText(text), nil
}

// handleDefinition handles code_definition tool calls
func (s *Server) handleDefinition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	line, err := request.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	character, err := request.RequireInt("character")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	locations, err := s.langs.Definition(ctx, s.resolvePath(file), line, character)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get definition: %v", err)), nil
	}

	if len(locations) == 0 {
		return mcp.NewToolResultText("No definition found"), nil
	}

	result := fmt.Sprintf("Found %d definition(s):\n", len(locations))
	for i, loc := range locations {
		result += fmt.Sprintf("%d. %s:%d:%d\n", i+1, loc.Path(), loc.Range.Start.Line, loc.Range.Start.Character)
	}

	return mcp.NewToolResultText(result), nil
}

// handleReferences handles code_references tool calls
func (s *Server) handleReferences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	line, err := request.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	character, err := request.RequireInt("character")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	includeDecl := request.GetBool("include_declaration", true)

	locations, err := s.langs.References(ctx, s.resolvePath(file), line, character, includeDecl)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to find references: %v", err)), nil
	}

	if len(locations) == 0 {
		return mcp.NewToolResultText("No references found"), nil
	}

	result := fmt.Sprintf("Found %d reference(s):\n", len(locations))
	for i, loc := range locations {
		result += fmt.Sprintf("%d. %s:%d:%d\n", i+1, loc.Path(), loc.Range.Start.Line, loc.Range.Start.Character)
	}

	return mcp.NewToolResultText(result), nil
}

// handleLint handles code_lint tool calls
func (s *Server) handleLint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	diagnostics, err := s.linter.Lint(ctx, s.resolvePath(file))
	if err != nil {
		// A missing linter or unsupported language degrades to a plain
		// answer rather than a tool failure
		if errors.IsNotFound(err) {
			return mcp.NewToolResultText(fmt.Sprintf("Linting unavailable: %v", err)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to lint: %v", err)), nil
	}

	if len(diagnostics) == 0 {
		return mcp.NewToolResultText("No lint issues found"), nil
	}

	result := fmt.Sprintf("Found %d issue(s):\n", len(diagnostics))
	for i, d := range diagnostics {
		result += fmt.Sprintf("%d. %s:%d:%d [%s] %s", i+1, d.File, d.Line, d.Column, d.Severity, d.Message)
		if d.Rule != "" {
			result += fmt.Sprintf(" (%s)", d.Rule)
		}
		result += "\n"
	}

	return mcp.NewToolResultText(result), nil
}

// resolvePath anchors relative tool arguments at the workspace root
func (s *Server) resolvePath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(s.workspaceRoot, file)
}
