package handoffs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pbrown/claude-recall/internal/models"
	"github.com/pbrown/claude-recall/internal/util"
)

// Step theme keywords for binning earlier tried steps in the compact
// summary. First match wins; unmatched steps count as "other".
var stepThemes = []struct {
	name     string
	keywords []string
}{
	{"guard", []string{"guard", "is_destroyed", "destructor", "cleanup"}},
	{"plugin", []string{"plugin", "phase"}},
	{"ui", []string{"xml", "button", "modal", "panel", "ui_"}},
	{"fix", []string{"fix", "bug", "issue", "error"}},
	{"refactor", []string{"refactor", "move", "rename", "extract"}},
	{"test", []string{"test", "verify", "build"}},
}

// extractThemes counts tried steps per theme.
func extractThemes(tried []models.TriedStep) map[string]int {
	counts := map[string]int{}
	for _, t := range tried {
		desc := strings.ToLower(t.Description)
		matched := false
		for _, theme := range stepThemes {
			for _, kw := range theme.keywords {
				if strings.Contains(desc, kw) {
					counts[theme.name]++
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if !matched {
			counts["other"]++
		}
	}
	return counts
}

// summarizeTried renders the compact tried-step summary: an outcome tally,
// the last three steps verbatim, and a themed bin line for everything
// earlier.
func summarizeTried(tried []models.TriedStep) []string {
	if len(tried) == 0 {
		return nil
	}
	const maxRecent = 3

	total := len(tried)
	success, fail := 0, 0
	for _, t := range tried {
		switch t.Outcome {
		case models.OutcomeSuccess:
			success++
		case models.OutcomeFail:
			fail++
		}
	}

	var lines []string
	if fail == 0 {
		lines = append(lines, fmt.Sprintf("- **Progress**: %d steps (all success)", total))
	} else {
		lines = append(lines, fmt.Sprintf("- **Progress**: %d steps (%d✓ %d✗)", total, success, fail))
	}

	recent := tried
	if len(tried) > maxRecent {
		recent = tried[len(tried)-maxRecent:]
	}
	for _, t := range recent {
		lines = append(lines, "  → "+util.Truncate(t.Description, 50))
	}

	if len(tried) > maxRecent {
		themes := extractThemes(tried[:len(tried)-maxRecent])
		if len(themes) > 0 {
			type themeCount struct {
				name  string
				count int
			}
			sorted := make([]themeCount, 0, len(themes))
			for name, count := range themes {
				sorted = append(sorted, themeCount{name, count})
			}
			sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].count > sorted[j].count })
			if len(sorted) > 4 {
				sorted = sorted[:4]
			}
			parts := make([]string, 0, len(sorted))
			for _, tc := range sorted {
				parts = append(parts, fmt.Sprintf("%d %s", tc.count, tc.name))
			}
			lines = append(lines, "  Earlier: "+strings.Join(parts, ", "))
		}
	}
	return lines
}

// relativeAge renders a day-granularity relative time.
func relativeAge(days int) string {
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "1d ago"
	default:
		return fmt.Sprintf("%dd ago", days)
	}
}

// appearsDone reports whether the last tried step reads like completed work
// on a handoff that is not marked completed.
func appearsDone(h *models.Handoff) bool {
	if len(h.Tried) == 0 || h.Status == models.StatusCompleted {
		return false
	}
	last := strings.TrimSpace(strings.ToLower(h.Tried[len(h.Tried)-1].Description))
	for _, p := range completionPatterns {
		if strings.HasPrefix(last, p) {
			return true
		}
	}
	return false
}

// Inject renders the combined handoff context blob: the active section with
// a ready count, per-handoff compact blocks, and the recent-completions
// section. Stale actives and old completed handoffs are archived first, so
// whatever is left is either fresh or recently completed.
func (s *Store) Inject(maxCompleted, maxCompletedAge int) (string, error) {
	if _, err := s.archiveStale(); err != nil {
		return "", err
	}
	if _, err := s.archiveOldCompleted(); err != nil {
		return "", err
	}

	active, err := s.List("", false)
	if err != nil {
		return "", err
	}
	completed, err := s.ListCompleted(maxCompleted, maxCompletedAge)
	if err != nil {
		return "", err
	}
	if len(active) == 0 && len(completed) == 0 {
		return "", nil
	}

	all, err := s.parseFile(s.activeFile())
	if err != nil {
		return "", err
	}
	readyCount := 0
	for _, h := range active {
		if isReady(h, all) {
			readyCount++
		}
	}

	var lines []string

	if len(active) > 0 {
		if readyCount > 0 {
			lines = append(lines, fmt.Sprintf("## Active Handoffs (Ready: %d)", readyCount))
		} else {
			lines = append(lines, "## Active Handoffs (All blocked)")
		}
		lines = append(lines, "")

		for _, h := range active {
			lines = append(lines, fmt.Sprintf("### [%s] %s", h.ID, h.Title))

			done := appearsDone(h)
			statusStr := h.Status
			if done {
				statusStr = h.Status + " → completing"
			}
			lines = append(lines, fmt.Sprintf("- **Status**: %s | **Phase**: %s | **Last**: %s",
				statusStr, h.Phase, relativeAge(models.DaysSince(h.Updated))))

			if len(h.Refs) > 0 {
				refsStr := strings.Join(h.Refs, " | ")
				if len(h.Refs) > 3 {
					refsStr = strings.Join(h.Refs[:3], " | ") + fmt.Sprintf(" (+%d more)", len(h.Refs)-3)
				}
				lines = append(lines, "- **Refs**: "+refsStr)
			}

			lines = append(lines, summarizeTried(h.Tried)...)

			if h.Checkpoint != "" {
				lines = append(lines, "- **Checkpoint**: "+h.Checkpoint)
			}

			if h.Context != nil {
				ctx := h.Context
				ref := ctx.GitRef
				if len(ref) > 7 {
					ref = ref[:7]
				}
				lines = append(lines, fmt.Sprintf("- **Handoff** (from %s):", ref))
				lines = append(lines, "  - Summary: "+ctx.Summary)
				if len(ctx.CriticalFiles) > 0 {
					refsStr := strings.Join(ctx.CriticalFiles, ", ")
					if len(ctx.CriticalFiles) > 3 {
						refsStr = strings.Join(ctx.CriticalFiles[:3], ", ") +
							fmt.Sprintf(" (+%d more)", len(ctx.CriticalFiles)-3)
					}
					lines = append(lines, "  - Refs: "+refsStr)
				}
				if len(ctx.Learnings) > 0 {
					lines = append(lines, "  - Learnings: "+strings.Join(ctx.Learnings, ", "))
				}
				if len(ctx.Blockers) > 0 {
					lines = append(lines, "  - Blockers: "+strings.Join(ctx.Blockers, ", "))
				}
			}

			if len(h.BlockedBy) > 0 {
				lines = append(lines, "- **Blocked By**: "+strings.Join(h.BlockedBy, ", "))
			}

			if done {
				lines = append(lines, fmt.Sprintf("- ⚠️ **Appears done** - last step was %q",
					util.Truncate(h.Tried[len(h.Tried)-1].Description, 30)))
			}

			if h.NextSteps != "" {
				lines = append(lines, "- **Next**: "+h.NextSteps)
			}

			lines = append(lines, "")
		}
	}

	if len(completed) > 0 {
		lines = append(lines, "## Recent Completions", "")
		for _, h := range completed {
			lines = append(lines, fmt.Sprintf("  [%s] ✓ %s (completed %s)",
				h.ID, h.Title, relativeAge(models.DaysSince(h.Updated))))
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n"), nil
}

// InjectTodos renders the most recently updated active handoff as a todo
// continuation prompt: completed tried-successes, the checkpoint as the
// in-progress item, and next-steps split on semicolons as pending items,
// with a JSON block of the non-completed subset the agent can paste into its
// tracker.
func (s *Store) InjectTodos() (string, error) {
	active, err := s.List("", false)
	if err != nil {
		return "", err
	}
	if len(active) == 0 {
		return "", nil
	}

	handoff := active[0]
	for _, h := range active[1:] {
		if h.Updated.After(handoff.Updated) {
			handoff = h
		}
	}

	prefix := fmt.Sprintf("[%s] ", handoff.ID)
	var todos []models.Todo

	for _, t := range handoff.Tried {
		if t.Outcome == models.OutcomeSuccess {
			todos = append(todos, models.Todo{
				Content:    prefix + t.Description,
				Status:     "completed",
				ActiveForm: util.Truncate(t.Description, 50),
			})
		}
	}
	if handoff.Checkpoint != "" {
		todos = append(todos, models.Todo{
			Content:    prefix + handoff.Checkpoint,
			Status:     "in_progress",
			ActiveForm: util.Truncate(handoff.Checkpoint, 50),
		})
	}
	if handoff.NextSteps != "" {
		for _, step := range strings.Split(handoff.NextSteps, ";") {
			step = strings.TrimSpace(step)
			if step != "" {
				todos = append(todos, models.Todo{
					Content:    prefix + step,
					Status:     "pending",
					ActiveForm: util.Truncate(step, 50),
				})
			}
		}
	}
	if len(todos) == 0 {
		return "", nil
	}

	sessionAgo := ""
	if !handoff.LastSession.IsZero() {
		days := models.DaysSince(handoff.LastSession)
		switch {
		case days <= 0:
			sessionAgo = "today"
		case days == 1:
			sessionAgo = "yesterday"
		default:
			sessionAgo = fmt.Sprintf("%dd ago", days)
		}
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("**CONTINUE PREVIOUS WORK** (%s: %s)", handoff.ID, handoff.Title))
	if sessionAgo != "" {
		lines = append(lines, "Last session: "+sessionAgo)
	}
	lines = append(lines, "", "Previous state:")
	for _, todo := range todos {
		icon := "?"
		switch todo.Status {
		case "completed":
			icon = "✓"
		case "in_progress":
			icon = "→"
		case "pending":
			icon = "○"
		}
		lines = append(lines, fmt.Sprintf("  %s %s", icon, todo.Content))
	}
	lines = append(lines, "", "**Use TodoWrite to resume tracking.** Copy this starting point:", "```json")

	var activeTodos []models.Todo
	for _, todo := range todos {
		if todo.Status != "completed" {
			activeTodos = append(activeTodos, todo)
		}
	}
	data, err := json.MarshalIndent(activeTodos, "", "  ")
	if err != nil {
		return "", err
	}
	lines = append(lines, string(data), "```")

	return strings.Join(lines, "\n"), nil
}
