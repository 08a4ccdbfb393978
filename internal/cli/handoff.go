package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pbrown/claude-recall/internal/models"
)

func newHandoffCmd(app *App, name string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: "Manage handoffs (multi-session work tracking)",
	}
	cmd.AddCommand(
		newHandoffAddCmd(app),
		newHandoffUpdateCmd(app),
		newHandoffCompleteCmd(app),
		newHandoffArchiveCmd(app),
		newHandoffDeleteCmd(app),
		newHandoffListCmd(app),
		newHandoffShowCmd(app),
		newHandoffInjectCmd(app),
		newHandoffSyncTodosCmd(app),
		newHandoffInjectTodosCmd(app),
		newHandoffReadyCmd(app),
		newHandoffSetContextCmd(app),
		newHandoffResumeCmd(app),
	)
	return cmd
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func newHandoffAddCmd(app *App) *cobra.Command {
	var desc, files, refs, phase, agent string
	cmd := &cobra.Command{
		Use:     "add <title>",
		Aliases: []string{"start"},
		Short:   "Add a new handoff",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refList := splitCommaList(refs)
			if refList == nil {
				refList = splitCommaList(files)
			}
			id, err := app.Handoffs.Add(args[0], desc, refList, phase, agent)
			if err != nil {
				return err
			}
			fmt.Printf("Added handoff %s: %s\n", id, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&desc, "desc", "", "description")
	cmd.Flags().StringVar(&files, "files", "", "comma-separated refs (deprecated, use --refs)")
	cmd.Flags().StringVar(&refs, "refs", "", "comma-separated path:line refs")
	cmd.Flags().StringVar(&phase, "phase", models.PhaseResearch, "initial phase (research, planning, implementing, review)")
	cmd.Flags().StringVar(&agent, "agent", "user", "agent working on this (explore, general-purpose, plan, review, user)")
	return cmd
}

func newHandoffUpdateCmd(app *App) *cobra.Command {
	var status, next, files, refs, desc, phase, agent, checkpoint, blockedBy string
	var tried []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			updated := false
			if status != "" {
				if err := app.Handoffs.UpdateStatus(id, status); err != nil {
					return err
				}
				fmt.Printf("Updated %s status to %s\n", id, status)
				updated = true
			}
			if len(tried) > 0 {
				if len(tried) != 2 {
					return &models.ValidationError{Field: "tried", Message: "expected OUTCOME DESC"}
				}
				if err := app.Handoffs.AddTried(id, tried[0], tried[1]); err != nil {
					return err
				}
				fmt.Printf("Added tried step to %s\n", id)
				updated = true
			}
			if next != "" {
				if err := app.Handoffs.UpdateNext(id, next); err != nil {
					return err
				}
				fmt.Printf("Updated %s next steps\n", id)
				updated = true
			}
			refList := splitCommaList(refs)
			if refList == nil {
				refList = splitCommaList(files)
			}
			if refList != nil {
				if err := app.Handoffs.UpdateRefs(id, refList); err != nil {
					return err
				}
				fmt.Printf("Updated %s refs\n", id)
				updated = true
			}
			if desc != "" {
				if err := app.Handoffs.UpdateDesc(id, desc); err != nil {
					return err
				}
				fmt.Printf("Updated %s description\n", id)
				updated = true
			}
			if phase != "" {
				if err := app.Handoffs.UpdatePhase(id, phase); err != nil {
					return err
				}
				fmt.Printf("Updated %s phase to %s\n", id, phase)
				updated = true
			}
			if agent != "" {
				if err := app.Handoffs.UpdateAgent(id, agent); err != nil {
					return err
				}
				fmt.Printf("Updated %s agent to %s\n", id, agent)
				updated = true
			}
			if checkpoint != "" {
				if err := app.Handoffs.UpdateCheckpoint(id, checkpoint); err != nil {
					return err
				}
				fmt.Printf("Updated %s checkpoint\n", id)
				updated = true
			}
			if cmd.Flags().Changed("blocked-by") {
				if err := app.Handoffs.UpdateBlockedBy(id, splitCommaList(blockedBy)); err != nil {
					return err
				}
				fmt.Printf("Updated %s blocked-by\n", id)
				updated = true
			}
			if !updated {
				return &models.ValidationError{Field: "flags", Message: "no update options provided"}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (not_started, in_progress, blocked, completed)")
	cmd.Flags().StringArrayVar(&tried, "tried", nil, "add tried step; pass twice: --tried OUTCOME --tried DESC (outcome: success|fail|partial)")
	cmd.Flags().StringVar(&next, "next", "", "update next steps")
	cmd.Flags().StringVar(&files, "files", "", "update refs, comma-separated (deprecated, use --refs)")
	cmd.Flags().StringVar(&refs, "refs", "", "update refs, comma-separated")
	cmd.Flags().StringVar(&desc, "desc", "", "update description")
	cmd.Flags().StringVar(&phase, "phase", "", "update phase (research, planning, implementing, review)")
	cmd.Flags().StringVar(&agent, "agent", "", "update agent (explore, general-purpose, plan, review, user)")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "update checkpoint (progress summary for session handoff)")
	cmd.Flags().StringVar(&blockedBy, "blocked-by", "", "comma-separated ids this handoff waits on")
	return cmd
}

func newHandoffCompleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a handoff completed and print the lesson-extraction prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.Handoffs.Complete(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Completed %s\n\n%s\n", args[0], result.ExtractionPrompt)
			return nil
		},
	}
}

func newHandoffArchiveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Move a handoff to the archive file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Handoffs.Archive(args[0]); err != nil {
				return err
			}
			fmt.Printf("Archived %s\n", args[0])
			return nil
		},
	}
}

func newHandoffDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"remove"},
		Short:   "Delete a handoff permanently (no archive)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Handoffs.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newHandoffListCmd(app *App) *cobra.Command {
	var status string
	var includeCompleted bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List handoffs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := app.Handoffs.List(status, includeCompleted)
			if err != nil {
				return err
			}
			if len(found) == 0 {
				fmt.Println("(no handoffs found)")
				return nil
			}
			for _, h := range found {
				fmt.Printf("[%s] %s\n", h.ID, h.Title)
				fmt.Printf("    Status: %s | Created: %s | Updated: %s\n",
					h.Status, models.DateString(h.Created), models.DateString(h.Updated))
				if len(h.Refs) > 0 {
					fmt.Printf("    Refs: %s\n", strings.Join(h.Refs, ", "))
				}
				if h.Description != "" {
					fmt.Printf("    Description: %s\n", h.Description)
				}
			}
			fmt.Printf("\nTotal: %d handoff(s)\n", len(found))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().BoolVar(&includeCompleted, "include-completed", false, "include completed handoffs")
	return cmd
}

func newHandoffShowCmd(app *App) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := app.Handoffs.Get(args[0])
			if err != nil {
				return err
			}
			if h == nil {
				return &models.NotFoundError{Kind: "handoff", ID: args[0]}
			}
			if asYAML {
				data, err := yaml.Marshal(h)
				if err != nil {
					return err
				}
				fmt.Print(string(data))
				return nil
			}
			fmt.Printf("### [%s] %s\n", h.ID, h.Title)
			fmt.Printf("- **Status**: %s\n", h.Status)
			fmt.Printf("- **Phase**: %s | **Agent**: %s\n", h.Phase, h.Agent)
			fmt.Printf("- **Created**: %s\n", models.DateString(h.Created))
			fmt.Printf("- **Updated**: %s\n", models.DateString(h.Updated))
			refs := "(none)"
			if len(h.Refs) > 0 {
				refs = strings.Join(h.Refs, ", ")
			}
			fmt.Printf("- **Refs**: %s\n", refs)
			desc := "(none)"
			if h.Description != "" {
				desc = h.Description
			}
			fmt.Printf("- **Description**: %s\n", desc)
			if h.Checkpoint != "" {
				session := ""
				if !h.LastSession.IsZero() {
					session = " (" + models.DateString(h.LastSession) + ")"
				}
				fmt.Printf("- **Checkpoint%s**: %s\n", session, h.Checkpoint)
			}
			if len(h.BlockedBy) > 0 {
				fmt.Printf("- **Blocked By**: %s\n", strings.Join(h.BlockedBy, ", "))
			}
			fmt.Println()
			fmt.Println("**Tried**:")
			if len(h.Tried) == 0 {
				fmt.Println("(none)")
			}
			for i, t := range h.Tried {
				fmt.Printf("%d. [%s] %s\n", i+1, t.Outcome, t.Description)
			}
			fmt.Println()
			next := "(none)"
			if h.NextSteps != "" {
				next = h.NextSteps
			}
			fmt.Printf("**Next**: %s\n", next)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "emit the record as YAML")
	return cmd
}

func newHandoffInjectCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "inject",
		Short: "Output handoffs for context injection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := app.Handoffs.Inject(0, 0)
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Println("(no active handoffs)")
				return nil
			}
			fmt.Println(out)
			return nil
		},
	}
}

func newHandoffSyncTodosCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-todos <todos-json>",
		Short: "Sync an external todo list into a handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var todos []models.Todo
			if err := json.Unmarshal([]byte(args[0]), &todos); err != nil {
				return &models.ValidationError{Field: "todos_json", Message: "invalid JSON array", Value: err.Error()}
			}
			id, err := app.Handoffs.SyncTodos(todos)
			if err != nil {
				return err
			}
			if id != "" {
				fmt.Printf("Synced %d todo(s) to handoff %s\n", len(todos), id)
			}
			return nil
		},
	}
}

func newHandoffInjectTodosCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "inject-todos",
		Short: "Format the active handoff as a todo continuation prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := app.Handoffs.InjectTodos()
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

func newHandoffReadyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "List handoffs whose dependencies are satisfied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ready, err := app.Handoffs.Ready()
			if err != nil {
				return err
			}
			if len(ready) == 0 {
				fmt.Println("(no ready handoffs)")
				return nil
			}
			for _, h := range ready {
				indicator := "[ ]"
				if h.Status == models.StatusInProgress {
					indicator = "[*]"
				}
				fmt.Printf("%s [%s] %s\n", indicator, h.ID, h.Title)
				fmt.Printf("    Status: %s | Phase: %s | Updated: %s\n",
					h.Status, h.Phase, models.DateString(h.Updated))
				if len(h.BlockedBy) > 0 {
					fmt.Printf("    Blocked by: %s (all completed)\n", strings.Join(h.BlockedBy, ", "))
				}
			}
			fmt.Printf("\nReady: %d handoff(s)\n", len(ready))
			return nil
		},
	}
}

func newHandoffSetContextCmd(app *App) *cobra.Command {
	var contextJSON string
	cmd := &cobra.Command{
		Use:   "set-context <id>",
		Short: "Attach a structured resumption context to a handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ctx models.HandoffContext
			if err := json.Unmarshal([]byte(contextJSON), &ctx); err != nil {
				return &models.ValidationError{Field: "json", Message: "invalid JSON object", Value: err.Error()}
			}
			if err := app.Handoffs.UpdateContext(args[0], &ctx); err != nil {
				return err
			}
			fmt.Printf("Set context for %s (git ref: %s)\n", args[0], ctx.GitRef)
			return nil
		},
	}
	cmd.Flags().StringVar(&contextJSON, "json", "", "JSON object with summary, critical_files, recent_changes, learnings, blockers, git_ref")
	cmd.MarkFlagRequired("json")
	return cmd
}

func newHandoffResumeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a handoff, validating codebase drift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.Handoffs.Resume(args[0])
			if err != nil {
				return err
			}
			h := result.Handoff
			fmt.Printf("Resuming [%s] %s\n", h.ID, h.Title)
			fmt.Printf("Status: %s | Phase: %s | Updated: %s\n",
				h.Status, h.Phase, models.DateString(h.Updated))
			if result.Context != nil && result.Context.Summary != "" {
				fmt.Printf("Summary: %s\n", result.Context.Summary)
			}
			for _, w := range result.Validation.Warnings {
				fmt.Printf("⚠️  %s\n", w)
			}
			for _, e := range result.Validation.Errors {
				fmt.Printf("✗ %s\n", e)
			}
			if result.Validation.Valid {
				fmt.Println("Validation: OK")
			} else {
				fmt.Println("Validation: FAILED")
			}
			if h.NextSteps != "" {
				fmt.Printf("Next: %s\n", h.NextSteps)
			}
			return nil
		},
	}
}
