package handoffs

import (
	"fmt"
	"strings"

	"github.com/pbrown/claude-recall/internal/models"
)

const activeFileHeader = `# HANDOFFS.md - Active Work Tracking

> Track ongoing work with tried steps and next steps.
> When completed, review for lessons to extract.

## Active Handoffs

`

const archiveFileHeader = `# HANDOFFS_ARCHIVE.md - Archived Handoffs

> Previously completed or archived handoffs.

`

// formatHandoff renders a handoff block in the current grammar.
func formatHandoff(h *models.Handoff) string {
	lines := []string{
		fmt.Sprintf("### [%s] %s", h.ID, h.Title),
		fmt.Sprintf("- **Status**: %s | **Phase**: %s | **Agent**: %s", h.Status, h.Phase, h.Agent),
		fmt.Sprintf("- **Created**: %s | **Updated**: %s",
			models.DateString(h.Created), models.DateString(h.Updated)),
		fmt.Sprintf("- **Refs**: %s", strings.Join(h.Refs, " | ")),
		fmt.Sprintf("- **Description**: %s", h.Description),
	}

	if h.Checkpoint != "" {
		lines = append(lines, fmt.Sprintf("- **Checkpoint**: %s", h.Checkpoint))
		if !h.LastSession.IsZero() {
			lines = append(lines, fmt.Sprintf("- **Last Session**: %s", models.DateString(h.LastSession)))
		}
	}

	if h.Context != nil {
		ctx := h.Context
		lines = append(lines, fmt.Sprintf("- **Handoff** (%s):", ctx.GitRef))
		lines = append(lines, fmt.Sprintf("  - Summary: %s", ctx.Summary))
		if len(ctx.CriticalFiles) > 0 {
			lines = append(lines, fmt.Sprintf("  - Refs: %s", strings.Join(ctx.CriticalFiles, " | ")))
		}
		if len(ctx.RecentChanges) > 0 {
			lines = append(lines, fmt.Sprintf("  - Changes: %s", strings.Join(ctx.RecentChanges, " | ")))
		}
		if len(ctx.Learnings) > 0 {
			lines = append(lines, fmt.Sprintf("  - Learnings: %s", strings.Join(ctx.Learnings, " | ")))
		}
		if len(ctx.Blockers) > 0 {
			lines = append(lines, fmt.Sprintf("  - Blockers: %s", strings.Join(ctx.Blockers, " | ")))
		}
	}

	if len(h.BlockedBy) > 0 {
		lines = append(lines, fmt.Sprintf("- **Blocked By**: %s", strings.Join(h.BlockedBy, ", ")))
	}

	lines = append(lines, "", "**Tried**:")
	for i, t := range h.Tried {
		lines = append(lines, fmt.Sprintf("%d. [%s] %s", i+1, t.Outcome, t.Description))
	}

	lines = append(lines, "", fmt.Sprintf("**Next**: %s", h.NextSteps), "", "---")
	return strings.Join(lines, "\n")
}
