package handoffs

import (
	"strings"
	"testing"
	"time"

	"github.com/pbrown/claude-recall/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParse_SingleHandoff(t *testing.T) {
	input := `# HANDOFFS.md - Active Work Tracking

> Track ongoing work with tried steps and next steps.
> When completed, review for lessons to extract.

## Active Handoffs

### [hf-a1b2c3d] Implement Parser
- **Status**: in_progress | **Phase**: implementing | **Agent**: general-purpose
- **Created**: 2026-01-15 | **Updated**: 2026-01-20
- **Refs**: internal/handoffs/parser.go:1 | internal/handoffs/parser_test.go:1
- **Description**: Create parser for HANDOFFS.md format.

**Tried**:
1. [success] Initial implementation - worked

**Next**: Step 1: Add more tests.

---
`
	handoffs := parseHandoffsText(input)
	if len(handoffs) != 1 {
		t.Fatalf("expected 1 handoff, got %d", len(handoffs))
	}
	h := handoffs[0]
	if h.ID != "hf-a1b2c3d" {
		t.Errorf("ID = %q", h.ID)
	}
	if h.Title != "Implement Parser" {
		t.Errorf("Title = %q", h.Title)
	}
	if h.Status != "in_progress" || h.Phase != "implementing" || h.Agent != "general-purpose" {
		t.Errorf("status/phase/agent = %s/%s/%s", h.Status, h.Phase, h.Agent)
	}
	if !h.Created.Equal(date(2026, 1, 15)) || !h.Updated.Equal(date(2026, 1, 20)) {
		t.Errorf("dates = %v / %v", h.Created, h.Updated)
	}
	if len(h.Refs) != 2 {
		t.Errorf("refs = %d, want 2", len(h.Refs))
	}
	if h.Description != "Create parser for HANDOFFS.md format." {
		t.Errorf("Description = %q", h.Description)
	}
	if len(h.Tried) != 1 || h.Tried[0].Outcome != "success" {
		t.Errorf("tried = %+v", h.Tried)
	}
	if h.NextSteps != "Step 1: Add more tests." {
		t.Errorf("NextSteps = %q", h.NextSteps)
	}
}

func TestParse_LegacyFormat(t *testing.T) {
	// Legacy: A### ids, Created/Updated folded into the status line,
	// comma-separated Files.
	input := `## Active Approaches

### [A001] Implementing WebSocket reconnection
- **Status**: in_progress | **Created**: 2025-12-28 | **Updated**: 2025-12-30
- **Files**: src/websocket.ts, src/connection-manager.ts
- **Description**: Add automatic reconnection with exponential backoff

**Tried**:
1. [fail] Simple setTimeout retry - races with manual disconnect
2. [partial] State machine approach - works but complex
3. [success] Event-based with AbortController - clean and testable

**Next**: Write integration tests for edge cases

---
`
	handoffs := parseHandoffsText(input)
	if len(handoffs) != 1 {
		t.Fatalf("expected 1 handoff, got %d", len(handoffs))
	}
	h := handoffs[0]
	if h.ID != "A001" {
		t.Errorf("ID = %q", h.ID)
	}
	if h.Phase != models.PhaseResearch || h.Agent != "user" {
		t.Errorf("legacy defaults phase/agent = %s/%s", h.Phase, h.Agent)
	}
	if len(h.Refs) != 2 || h.Refs[0] != "src/websocket.ts" {
		t.Errorf("legacy files = %v", h.Refs)
	}
	if len(h.Tried) != 3 {
		t.Fatalf("tried = %d, want 3", len(h.Tried))
	}
	if h.Tried[1].Outcome != "partial" {
		t.Errorf("second outcome = %q", h.Tried[1].Outcome)
	}

	// Re-serialization produces the modern grammar with pipe-separated refs.
	out := formatHandoff(h)
	if !strings.Contains(out, "**Agent**: user") {
		t.Errorf("modern status line missing: %s", out)
	}
	if !strings.Contains(out, "src/websocket.ts | src/connection-manager.ts") {
		t.Errorf("modern refs line missing: %s", out)
	}
}

func TestParse_AllOptionalFields(t *testing.T) {
	input := `### [hf-1234abc] Full Handoff
- **Status**: blocked | **Phase**: implementing | **Agent**: general-purpose
- **Created**: 2026-01-15 | **Updated**: 2026-01-20
- **Refs**: core/m.py:42
- **Description**: Everything set.
- **Checkpoint**: Mid-refactor of the store
- **Last Session**: 2026-01-19
- **Handoff** (abc1234def5678):
  - Summary: Store rework underway
  - Refs: core/m.py:42 | core/n.py:7
  - Changes: extracted parser
  - Learnings: lock ordering matters
  - Blockers: waiting on review
- **Blocked By**: hf-0000abc, A003

**Tried**:
1. [success] Extracted the parser

**Next**: Finish the rewrite

---
`
	handoffs := parseHandoffsText(input)
	if len(handoffs) != 1 {
		t.Fatalf("expected 1 handoff, got %d", len(handoffs))
	}
	h := handoffs[0]
	if h.Checkpoint != "Mid-refactor of the store" {
		t.Errorf("Checkpoint = %q", h.Checkpoint)
	}
	if !h.LastSession.Equal(date(2026, 1, 19)) {
		t.Errorf("LastSession = %v", h.LastSession)
	}
	if h.Context == nil {
		t.Fatal("Context not parsed")
	}
	if h.Context.GitRef != "abc1234def5678" {
		t.Errorf("GitRef = %q", h.Context.GitRef)
	}
	if h.Context.Summary != "Store rework underway" {
		t.Errorf("Summary = %q", h.Context.Summary)
	}
	if len(h.Context.CriticalFiles) != 2 {
		t.Errorf("CriticalFiles = %v", h.Context.CriticalFiles)
	}
	if len(h.BlockedBy) != 2 || h.BlockedBy[1] != "A003" {
		t.Errorf("BlockedBy = %v", h.BlockedBy)
	}
}

func TestParse_MalformedBlockSkipped(t *testing.T) {
	input := `### [hf-1111111] Broken dates
- **Status**: in_progress | **Phase**: research | **Agent**: user
- **Created**: not-a-date | **Updated**: 2026-01-20

**Next**: nothing

---

### [hf-2222222] Fine
- **Status**: not_started | **Phase**: research | **Agent**: user
- **Created**: 2026-01-12 | **Updated**: 2026-01-18
- **Description**: survives

**Next**: carry on

---
`
	handoffs := parseHandoffsText(input)
	if len(handoffs) != 1 {
		t.Fatalf("expected 1 surviving handoff, got %d", len(handoffs))
	}
	if handoffs[0].ID != "hf-2222222" {
		t.Errorf("survivor = %q", handoffs[0].ID)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	want := &models.Handoff{
		ID:          "hf-abcdef0",
		Title:       "Round trip handoff",
		Status:      models.StatusInProgress,
		Phase:       models.PhaseImplementing,
		Agent:       "general-purpose",
		Created:     date(2026, 1, 10),
		Updated:     date(2026, 2, 1),
		LastSession: date(2026, 1, 30),
		Refs:        []string{"a.go:1", "b.go:2-20"},
		Description: "Round trip description",
		Checkpoint:  "halfway",
		NextSteps:   "step one; step two",
		Tried: []models.TriedStep{
			{Outcome: "fail", Description: "First try"},
			{Outcome: "success", Description: "Second try"},
		},
		Context: &models.HandoffContext{
			Summary:       "ctx summary",
			CriticalFiles: []string{"a.go:1"},
			RecentChanges: []string{"changed a"},
			Learnings:     []string{"learned b"},
			Blockers:      []string{"blocked c"},
			GitRef:        "1234567890abcdef",
		},
		BlockedBy: []string{"hf-0000001"},
	}

	parsed := parseHandoffsText(formatHandoff(want))
	if len(parsed) != 1 {
		t.Fatal("round trip lost the handoff")
	}
	got := parsed[0]

	if got.ID != want.ID || got.Title != want.Title || got.Status != want.Status ||
		got.Phase != want.Phase || got.Agent != want.Agent {
		t.Errorf("identity mismatch: %+v", got)
	}
	if !got.Created.Equal(want.Created) || !got.Updated.Equal(want.Updated) ||
		!got.LastSession.Equal(want.LastSession) {
		t.Errorf("dates mismatch: %+v", got)
	}
	if len(got.Refs) != 2 || got.Refs[1] != "b.go:2-20" {
		t.Errorf("refs mismatch: %v", got.Refs)
	}
	if got.Checkpoint != want.Checkpoint || got.NextSteps != want.NextSteps {
		t.Errorf("checkpoint/next mismatch: %q / %q", got.Checkpoint, got.NextSteps)
	}
	if len(got.Tried) != 2 || got.Tried[0].Outcome != "fail" || got.Tried[1].Description != "Second try" {
		t.Errorf("tried mismatch: %+v", got.Tried)
	}
	if got.Context == nil || got.Context.Summary != want.Context.Summary ||
		got.Context.GitRef != want.Context.GitRef ||
		len(got.Context.Blockers) != 1 {
		t.Errorf("context mismatch: %+v", got.Context)
	}
	if len(got.BlockedBy) != 1 || got.BlockedBy[0] != "hf-0000001" {
		t.Errorf("blocked_by mismatch: %v", got.BlockedBy)
	}
}

func TestParse_MultipleHandoffs(t *testing.T) {
	input := `### [hf-1111111] First
- **Status**: in_progress | **Phase**: research | **Agent**: explore
- **Created**: 2026-01-10 | **Updated**: 2026-01-15
- **Description**: First task.

**Next**: Do something.

---

### [hf-2222222] Second
- **Status**: blocked | **Phase**: planning | **Agent**: plan
- **Created**: 2026-01-12 | **Updated**: 2026-01-18
- **Description**: Second task.

**Next**: Do something else.

---
`
	handoffs := parseHandoffsText(input)
	if len(handoffs) != 2 {
		t.Fatalf("expected 2 handoffs, got %d", len(handoffs))
	}
	if handoffs[0].ID != "hf-1111111" || handoffs[1].ID != "hf-2222222" {
		t.Errorf("ids = %s, %s", handoffs[0].ID, handoffs[1].ID)
	}
}
