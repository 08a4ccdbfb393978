package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pbrown/claude-recall/internal/logview"
	"github.com/pbrown/claude-recall/internal/stats"
)

func newLogCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the debug event log",
	}
	cmd.AddCommand(newLogTailCmd(app))
	return cmd
}

// colorEnabled respects NO_COLOR and non-terminal output.
func colorEnabled() bool {
	if termenv.EnvNoColor() {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 0
}

func newLogTailCmd(app *App) *cobra.Command {
	var follow bool
	var n int
	var project, event, level, session string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print recent events, optionally following the log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := logview.NewReader(app.Log.Path(), 0)
			filter := logview.Filter{
				Project:   project,
				SessionID: session,
				Event:     event,
				Level:     level,
			}
			color := colorEnabled()
			width := terminalWidth()

			// Initial load: show only the last n matching events.
			reader.LoadBuffer()
			matching := reader.FilterEvents(filter)
			if len(matching) > n {
				matching = matching[len(matching)-n:]
			}
			for _, e := range matching {
				fmt.Println(logview.FormatEventLine(e, color, width))
			}

			// printNew emits only events appended since the last load.
			printNew := func() {
				added := reader.LoadBuffer()
				if added == 0 {
					return
				}
				events := reader.ReadAll()
				if added > len(events) {
					added = len(events)
				}
				for _, e := range events[len(events)-added:] {
					if filter.Match(e) {
						fmt.Println(logview.FormatEventLine(e, color, width))
					}
				}
			}

			if !follow {
				return nil
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()
			// Watch the directory: rotation replaces the file inode, and the
			// reader re-synchronizes on its own inode check.
			if err := watcher.Add(filepath.Dir(app.Log.Path())); err != nil {
				return err
			}

			for {
				select {
				case ev, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if ev.Name == app.Log.Path() {
						printNew()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep following the log")
	cmd.Flags().IntVarP(&n, "lines", "n", 100, "number of recent events to show")
	cmd.Flags().StringVar(&project, "project", "", "filter by project (case-insensitive)")
	cmd.Flags().StringVar(&event, "event", "", "filter by event name")
	cmd.Flags().StringVar(&level, "level", "", "filter by level (info, debug, trace, error)")
	cmd.Flags().StringVar(&session, "session", "", "filter by session id")
	return cmd
}

func newStatsCmd(app *App) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate event-log statistics and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := logview.NewReader(app.Log.Path(), 0)
			agg := stats.NewAggregator(reader)
			snapshot := agg.Compute()

			fmt.Print(agg.FormatSummary(snapshot))

			if project != "" {
				p := agg.ComputeProject(project)
				fmt.Printf("\nProject %s: %d events, %d citations, %d errors, %d sessions\n",
					p.Project, p.EventCount, p.Citations, p.Errors, p.Sessions)
			}

			timings := agg.TimingByHook(snapshot)
			if len(timings) > 0 {
				fmt.Println("\nPer-hook timings:")
				names := make([]string, 0, len(timings))
				for name := range timings {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					t := timings[name]
					fmt.Printf("  %-20s avg %.2fms  p95 %.2fms  max %.2fms  (%d)\n",
						name, t.AvgMs, t.P95Ms, t.MaxMs, t.Count)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "include per-project breakdown")
	return cmd
}
