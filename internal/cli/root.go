// Package cli is the thin command-line surface over the recall stores. All
// domain behavior lives in the internal stores; this package only parses
// arguments, wires the per-process context, and prints results.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pbrown/claude-recall/internal/config"
	"github.com/pbrown/claude-recall/internal/debuglog"
	"github.com/pbrown/claude-recall/internal/handoffs"
	"github.com/pbrown/claude-recall/internal/lessons"
)

// Version is set by the release build.
var Version = "dev"

// App carries the per-process context: configuration, logger, and the two
// stores. Commands close over one App instead of reaching for globals.
type App struct {
	Config   *config.Config
	Log      *debuglog.Logger
	Lessons  *lessons.Store
	Handoffs *handoffs.Store
}

// NewApp resolves configuration and builds the store stack.
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log := debuglog.New(cfg.StateDir, cfg.DebugLevel(), cfg.ProjectName())
	return &App{
		Config:   cfg,
		Log:      log,
		Lessons:  lessons.NewStore(cfg, log),
		Handoffs: handoffs.NewStore(cfg, log),
	}, nil
}

// NewRootCmd builds the full command tree.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "recall",
		Short: "Tool-agnostic memory for AI coding agents",
		Long: `recall stores small durable lessons and multi-step work handoffs in
plain markdown, rates lessons by use and recency, and renders compact
context blocks for injection at session start.

Quick start:
  recall add pattern "Use table tests" "Prefer table-driven tests in Go"
  recall cite L001
  recall inject 5
  recall handoff add "Implement websocket reconnect" --phase research`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.AddCommand(
		newAddCmd(app),
		newAddAICmd(app),
		newAddSystemCmd(app),
		newCiteCmd(app),
		newInjectCmd(app),
		newListCmd(app),
		newDecayCmd(app),
		newEditCmd(app),
		newDeleteCmd(app),
		newPromoteCmd(app),
		newScoreRelevanceCmd(app),
		newHandoffCmd(app, "handoff"),
		newHandoffCmd(app, "approach"), // legacy alias, same tree
		newLogCmd(app),
		newStatsCmd(app),
	)
	return root
}

// Execute runs the CLI and returns the process exit code. Validation and
// lookup failures surface as "Error: ..." on stderr with exit code 1.
func Execute() int {
	app, err := NewApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	root := NewRootCmd(app)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		app.Log.Error("cli", err)
		return 1
	}
	return 0
}
