// Package handoffs implements the handoff store: markdown persistence of
// in-flight work units with tried steps, auto-phase inference, archival,
// dependency readiness, todo syncing, and resume-time validation.
package handoffs

import (
	"regexp"
	"strings"

	"github.com/pbrown/claude-recall/internal/models"
)

// Handoff block grammar. Both generations are accepted on read: the current
// form carries Status|Phase|Agent plus a separate dates line and pipe-
// separated Refs; the legacy form folds Created/Updated into the status line
// and lists comma-separated Files. The current form is always written back.
var (
	handoffHeaderPattern = regexp.MustCompile(`^###\s*\[([A-Z]\d{3}|hf-[0-9a-f]{7})\]\s*(.+)$`)

	statusPatternNew = regexp.MustCompile(
		`^\s*-\s*\*\*Status\*\*:\s*(\w+)` +
			`\s*\|\s*\*\*Phase\*\*:\s*([\w-]+)` +
			`\s*\|\s*\*\*Agent\*\*:\s*([\w-]+)`)

	statusPatternOld = regexp.MustCompile(
		`^\s*-\s*\*\*Status\*\*:\s*(\w+)` +
			`\s*\|\s*\*\*Created\*\*:\s*(\d{4}-\d{2}-\d{2})` +
			`\s*\|\s*\*\*Updated\*\*:\s*(\d{4}-\d{2}-\d{2})`)

	datesPattern = regexp.MustCompile(
		`^\s*-\s*\*\*Created\*\*:\s*(\d{4}-\d{2}-\d{2})` +
			`\s*\|\s*\*\*Updated\*\*:\s*(\d{4}-\d{2}-\d{2})`)

	refsPattern        = regexp.MustCompile(`^\s*-\s*\*\*Refs\*\*:\s*(.*)$`)
	filesPattern       = regexp.MustCompile(`^\s*-\s*\*\*Files\*\*:\s*(.*)$`)
	descPattern        = regexp.MustCompile(`^\s*-\s*\*\*Description\*\*:\s*(.*)$`)
	checkpointPattern  = regexp.MustCompile(`^\s*-\s*\*\*Checkpoint\*\*:\s*(.*)$`)
	lastSessionPattern = regexp.MustCompile(`^\s*-\s*\*\*Last Session\*\*:\s*(\d{4}-\d{2}-\d{2})$`)
	contextPattern     = regexp.MustCompile(`^\s*-\s*\*\*Handoff\*\*\s*\(([^)]+)\):\s*$`)
	blockedByPattern   = regexp.MustCompile(`^\s*-\s*\*\*Blocked By\*\*:\s*(.*)$`)
	triedPattern       = regexp.MustCompile(`^\s*\d+\.\s*\[(\w+)\]\s*(.+)$`)
	nextPattern        = regexp.MustCompile(`^\*\*Next\*\*:\s*(.*)$`)
)

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseHandoffsText scans a full file body, collecting every parseable block
// and skipping anything malformed; a bad date or status line drops that
// block and the scanner moves to the next header.
func parseHandoffsText(content string) []*models.Handoff {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	lines := strings.Split(content, "\n")

	var handoffs []*models.Handoff
	idx := 0
	for idx < len(lines) {
		header := handoffHeaderPattern.FindStringSubmatch(lines[idx])
		if header == nil {
			idx++
			continue
		}
		id := header[1]
		title := strings.TrimSpace(header[2])
		idx++
		if idx >= len(lines) {
			break
		}

		h := &models.Handoff{
			ID:    id,
			Title: title,
			Phase: models.PhaseResearch,
			Agent: "user",
		}

		if m := statusPatternNew.FindStringSubmatch(lines[idx]); m != nil {
			h.Status, h.Phase, h.Agent = m[1], m[2], m[3]
			idx++
			if idx >= len(lines) {
				continue
			}
			dm := datesPattern.FindStringSubmatch(lines[idx])
			if dm == nil {
				continue
			}
			created, err1 := models.ParseDate(dm[1])
			updated, err2 := models.ParseDate(dm[2])
			if err1 != nil || err2 != nil {
				continue
			}
			h.Created, h.Updated = created, updated
			idx++
		} else if m := statusPatternOld.FindStringSubmatch(lines[idx]); m != nil {
			h.Status = m[1]
			created, err1 := models.ParseDate(m[2])
			updated, err2 := models.ParseDate(m[3])
			if err1 != nil || err2 != nil {
				continue
			}
			h.Created, h.Updated = created, updated
			idx++
		} else {
			continue
		}

		if idx < len(lines) {
			if m := refsPattern.FindStringSubmatch(lines[idx]); m != nil {
				h.Refs = splitList(m[1], "|")
				idx++
			} else if m := filesPattern.FindStringSubmatch(lines[idx]); m != nil {
				h.Refs = splitList(m[1], ",")
				idx++
			}
		}

		if idx < len(lines) {
			if m := descPattern.FindStringSubmatch(lines[idx]); m != nil {
				h.Description = strings.TrimSpace(m[1])
				idx++
			}
		}

		if idx < len(lines) {
			if m := checkpointPattern.FindStringSubmatch(lines[idx]); m != nil {
				h.Checkpoint = strings.TrimSpace(m[1])
				idx++
			}
		}

		if idx < len(lines) {
			if m := lastSessionPattern.FindStringSubmatch(lines[idx]); m != nil {
				if t, err := models.ParseDate(m[1]); err == nil {
					h.LastSession = t
				}
				idx++
			}
		}

		if idx < len(lines) {
			if m := contextPattern.FindStringSubmatch(lines[idx]); m != nil {
				ctx := &models.HandoffContext{GitRef: strings.TrimSpace(m[1])}
				idx++
			contextLoop:
				for idx < len(lines) {
					line := strings.TrimSpace(lines[idx])
					if !strings.HasPrefix(line, "- ") {
						break
					}
					switch {
					case strings.HasPrefix(line, "- Summary:"):
						ctx.Summary = strings.TrimSpace(strings.TrimPrefix(line, "- Summary:"))
					case strings.HasPrefix(line, "- Refs:"):
						ctx.CriticalFiles = splitList(strings.TrimPrefix(line, "- Refs:"), "|")
					case strings.HasPrefix(line, "- Changes:"):
						ctx.RecentChanges = splitList(strings.TrimPrefix(line, "- Changes:"), "|")
					case strings.HasPrefix(line, "- Learnings:"):
						ctx.Learnings = splitList(strings.TrimPrefix(line, "- Learnings:"), "|")
					case strings.HasPrefix(line, "- Blockers:"):
						ctx.Blockers = splitList(strings.TrimPrefix(line, "- Blockers:"), "|")
					default:
						break contextLoop
					}
					idx++
				}
				if !ctx.Empty() {
					h.Context = ctx
				}
			}
		}

		if idx < len(lines) {
			if m := blockedByPattern.FindStringSubmatch(lines[idx]); m != nil {
				h.BlockedBy = splitList(m[1], ",")
				idx++
			}
		}

		// Tried section: numbered "[outcome] description" items.
		for idx < len(lines) {
			line := strings.TrimSpace(lines[idx])
			if strings.HasPrefix(line, "**Tried**") || strings.HasPrefix(line, "**Next**") || line == "---" {
				break
			}
			idx++
		}
		if idx < len(lines) && strings.Contains(lines[idx], "**Tried**:") {
			idx++
			for idx < len(lines) {
				line := strings.TrimSpace(lines[idx])
				if line == "" || strings.HasPrefix(line, "**Next**:") || line == "---" {
					break
				}
				if m := triedPattern.FindStringSubmatch(lines[idx]); m != nil {
					h.Tried = append(h.Tried, models.TriedStep{
						Outcome:     m[1],
						Description: strings.TrimSpace(m[2]),
					})
				}
				idx++
			}
		}

		for idx < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[idx]), "**Next**") &&
			strings.TrimSpace(lines[idx]) != "---" {
			idx++
		}
		if idx < len(lines) && strings.TrimSpace(lines[idx]) != "---" {
			if m := nextPattern.FindStringSubmatch(strings.TrimSpace(lines[idx])); m != nil {
				h.NextSteps = strings.TrimSpace(m[1])
			}
			idx++
		}

		for idx < len(lines) && strings.TrimSpace(lines[idx]) != "---" {
			idx++
		}
		idx++ // past the separator

		handoffs = append(handoffs, h)
	}
	return handoffs
}
