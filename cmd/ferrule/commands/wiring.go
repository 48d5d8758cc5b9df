package commands

import (
	"context"
	"time"

	"github.com/ferrule-dev/ferrule/config"
	"github.com/ferrule-dev/ferrule/langserver"
	"github.com/ferrule-dev/ferrule/lint"
	"github.com/ferrule-dev/ferrule/logger"
	"github.com/ferrule-dev/ferrule/toolserver"
)

// stopGrace bounds how long child servers get to exit politely on shutdown
const stopGrace = 5 * time.Second

// languageManager wires a langserver.Manager from loaded config
func languageManager(cfg *config.Config) (*langserver.Manager, error) {
	cfgs, err := cfg.LanguageServers()
	if err != nil {
		return nil, err
	}
	return langserver.NewManager(cfgs, logger.Logger.Named("langserver")), nil
}

// toolManager wires a toolserver.Manager from loaded config and the
// descriptor directory
func toolManager(cfg *config.Config) (*toolserver.Manager, error) {
	cfgs, err := cfg.ToolServers()
	if err != nil {
		return nil, err
	}
	return toolserver.NewManager(cfgs, logger.Logger.Named("toolserver")), nil
}

// lintRunner wires a lint.Runner rooted at the workspace, applying any
// per-language linter overrides from config
func lintRunner(cfg *config.Config) *lint.Runner {
	registry := lint.NewRegistry()
	for lang, lc := range cfg.Languages {
		if lc.Linter == "" {
			continue
		}
		l, ok := lint.ByName(lc.Linter, lang)
		if !ok {
			logger.Warnw("unknown linter in config, keeping default",
				"language", lang,
				"linter", lc.Linter)
			continue
		}
		registry.Register(l)
	}
	return lint.NewRunner(registry, cfg.Code.WorkspaceRoot, logger.Logger.Named("lint"))
}

// stopAll shuts down a manager's children within the grace period
func stopAll(stopper interface{ StopAll(context.Context) error }) {
	ctx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	if err := stopper.StopAll(ctx); err != nil {
		logger.Warnw("shutdown incomplete", "error", err)
	}
}
