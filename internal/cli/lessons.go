package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/pbrown/claude-recall/internal/lessons"
	"github.com/pbrown/claude-recall/internal/models"
)

func newAddCmd(app *App) *cobra.Command {
	var force, system, noPromote bool
	cmd := &cobra.Command{
		Use:   "add <category> <title> <content>",
		Short: "Add a project lesson",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := models.LevelProject
			if system {
				level = models.LevelSystem
			}
			id, err := app.Lessons.Add(level, args[0], args[1], args[2], models.SourceHuman, force, !noPromote)
			if err != nil {
				return err
			}
			note := ""
			if noPromote {
				note = " (no-promote)"
			}
			fmt.Printf("Added %s lesson %s: %s%s\n", level, id, args[1], note)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip duplicate check")
	cmd.Flags().BoolVar(&system, "system", false, "add as system lesson")
	cmd.Flags().BoolVar(&noPromote, "no-promote", false, "never promote to system level")
	return cmd
}

func newAddAICmd(app *App) *cobra.Command {
	var system, noPromote bool
	cmd := &cobra.Command{
		Use:   "add-ai <category> <title> <content>",
		Short: "Add an AI-generated lesson",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := models.LevelProject
			if system {
				level = models.LevelSystem
			}
			id, err := app.Lessons.Add(level, args[0], args[1], args[2], models.SourceAI, false, !noPromote)
			if err != nil {
				return err
			}
			note := ""
			if noPromote {
				note = " (no-promote)"
			}
			fmt.Printf("Added AI %s lesson %s: %s%s\n", level, id, args[1], note)
			return nil
		},
	}
	cmd.Flags().BoolVar(&system, "system", false, "add as system lesson")
	cmd.Flags().BoolVar(&noPromote, "no-promote", false, "never promote to system level")
	return cmd
}

func newAddSystemCmd(app *App) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "add-system <category> <title> <content>",
		Short: "Add a system lesson (alias for add --system)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.Lessons.Add(models.LevelSystem, args[0], args[1], args[2], models.SourceHuman, force, true)
			if err != nil {
				return err
			}
			fmt.Printf("Added system lesson %s: %s\n", id, args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip duplicate check")
	return cmd
}

func newCiteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cite <id>",
		Short: "Cite a lesson, incrementing its uses and velocity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.Lessons.Cite(args[0])
			if err != nil {
				return err
			}
			fmt.Println(result.Message())
			return nil
		},
	}
}

func newInjectCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "inject [N]",
		Short: "Output top lessons for context injection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 5
			if len(args) == 1 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil || parsed <= 0 {
					return &models.ValidationError{Field: "n", Message: "expected a positive integer", Value: args[0]}
				}
				n = parsed
			}
			// Session start: record the marker the decay vacation check counts.
			if err := app.Lessons.RecordSession(app.Log.SessionID()); err != nil {
				app.Log.Error("record_session", err)
			}
			out, err := app.Lessons.Inject(n)
			if err != nil {
				return err
			}
			if out != "" {
				fmt.Println(out)
			}
			return nil
		},
	}
}

func newListCmd(app *App) *cobra.Command {
	var project, system, stale bool
	var search, category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List lessons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := "all"
			if project {
				scope = models.LevelProject
			} else if system {
				scope = models.LevelSystem
			}
			found, err := app.Lessons.List(lessons.ListOptions{
				Scope:     scope,
				Search:    search,
				Category:  category,
				StaleOnly: stale,
			})
			if err != nil {
				return err
			}
			if len(found) == 0 {
				fmt.Println("(no lessons found)")
				return nil
			}
			for _, l := range found {
				prefix := ""
				if l.Source == models.SourceAI {
					prefix = models.RobotEmoji + " "
				}
				staleMark := ""
				if l.IsStale() {
					staleMark = " [STALE]"
				}
				fmt.Printf("[%s] %s %s%s%s\n", l.ID, l.Rating().Format(), prefix, l.Title, staleMark)
				fmt.Printf("    -> %s\n", l.Content)
			}
			fmt.Printf("\nTotal: %d lesson(s)\n", len(found))
			return nil
		},
	}
	cmd.Flags().BoolVar(&project, "project", false, "project lessons only")
	cmd.Flags().BoolVar(&system, "system", false, "system lessons only")
	cmd.Flags().StringVarP(&search, "search", "s", "", "search term")
	cmd.Flags().StringVarP(&category, "category", "c", "", "filter by category")
	cmd.Flags().BoolVar(&stale, "stale", false, "show stale lessons only")
	return cmd
}

func newDecayCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "decay [days]",
		Short: "Decay lesson metrics (skips in vacation mode)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			days := 30
			if len(args) == 1 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil || parsed <= 0 {
					return &models.ValidationError{Field: "days", Message: "expected a positive integer", Value: args[0]}
				}
				days = parsed
			}
			result, err := app.Lessons.Decay(days)
			if err != nil {
				return err
			}
			fmt.Println(result.Message)
			return nil
		},
	}
}

func newEditCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <content>",
		Short: "Replace a lesson's content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			old, err := app.Lessons.Get(args[0])
			if err != nil {
				return err
			}
			if err := app.Lessons.Edit(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Updated %s content\n", args[0])
			if diff := renderDiff(old.Content, args[1]); diff != "" {
				fmt.Println(diff)
			}
			return nil
		},
	}
}

// renderDiff shows a compact inline diff of the content change.
func renderDiff(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		default:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

func newDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"remove"},
		Short:   "Delete a lesson",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Lessons.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newPromoteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <id>",
		Short: "Promote a project lesson to system scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			newID, err := app.Lessons.Promote(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Promoted %s -> %s\n", args[0], newID)
			return nil
		},
	}
}
