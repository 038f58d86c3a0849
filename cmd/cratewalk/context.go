package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"cratewalk/internal/config"
	"cratewalk/internal/depgraph"
	"cratewalk/internal/logging"
	"cratewalk/internal/manifest"
	"cratewalk/internal/workspace"
)

type commandContext struct {
	workspaceFlag *string
	configFlag    *string
	logLevelFlag  *string
	logFormatFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(workspaceFlag, configFlag, logLevelFlag, logFormatFlag *string) *commandContext {
	return &commandContext{
		workspaceFlag: workspaceFlag,
		configFlag:    configFlag,
		logLevelFlag:  logLevelFlag,
		logFormatFlag: logFormatFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		level := ""
		format := ""
		if cfg, err := c.ensureConfig(); err == nil {
			level = cfg.Logging.Level
			format = cfg.Logging.Format
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			level = *c.logLevelFlag
		}
		if c.logFormatFlag != nil && *c.logFormatFlag != "" {
			format = *c.logFormatFlag
		}
		c.logger, c.loggerErr = logging.New(logging.Options{Level: level, Format: format})
	})
	return c.logger, c.loggerErr
}

// resolveRoot finds the workspace root: the explicit flag value if set,
// otherwise the nearest ancestor of the current directory declaring a
// [workspace].
func (c *commandContext) resolveRoot() (string, error) {
	start := "."
	if c.workspaceFlag != nil && strings.TrimSpace(*c.workspaceFlag) != "" {
		start = strings.TrimSpace(*c.workspaceFlag)
	}
	root, err := workspace.FindRoot(start)
	if err != nil {
		return "", fmt.Errorf("locate workspace from %s: %w", start, err)
	}
	return root, nil
}

// loadPlan resolves the workspace, normalizes its members, and computes the
// deterministic publish order. Member-pattern warnings are logged, not fatal.
func (c *commandContext) loadPlan() (*workspace.Workspace, []manifest.Package, error) {
	root, err := c.resolveRoot()
	if err != nil {
		return nil, nil, err
	}

	ws, err := workspace.Load(root)
	if err != nil {
		return nil, nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, nil, err
	}
	for _, warning := range ws.Warnings {
		logger.Warn(warning)
	}

	packages, err := manifest.LoadAll(ws)
	if err != nil {
		return nil, nil, err
	}

	graph, err := depgraph.Build(packages)
	if err != nil {
		return nil, nil, err
	}
	plan, err := graph.Sort()
	if err != nil {
		return nil, nil, err
	}
	return ws, plan, nil
}
