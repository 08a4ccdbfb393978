package lessons

import (
	"strings"
	"testing"
	"time"

	"github.com/pbrown/claude-recall/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseLessonsText_Single(t *testing.T) {
	input := `# LESSONS.md - Project Level

## Active Lessons

### [L001] [*----|-----] Use table tests
- **Uses**: 1 | **Velocity**: 0 | **Learned**: 2026-01-15 | **Last**: 2026-01-20 | **Category**: pattern
> Prefer table-driven tests for parser coverage.
`
	lessons := parseLessonsText(input, models.LevelProject)
	if len(lessons) != 1 {
		t.Fatalf("expected 1 lesson, got %d", len(lessons))
	}
	l := lessons[0]
	if l.ID != "L001" {
		t.Errorf("ID = %q", l.ID)
	}
	if l.Title != "Use table tests" {
		t.Errorf("Title = %q", l.Title)
	}
	if l.Uses != 1 || l.Velocity != 0 {
		t.Errorf("Uses/Velocity = %d/%v", l.Uses, l.Velocity)
	}
	if !l.Learned.Equal(date(2026, 1, 15)) || !l.LastUsed.Equal(date(2026, 1, 20)) {
		t.Errorf("dates = %v / %v", l.Learned, l.LastUsed)
	}
	if l.Category != "pattern" || l.Source != models.SourceHuman || !l.Promotable {
		t.Errorf("category/source/promotable = %q/%q/%v", l.Category, l.Source, l.Promotable)
	}
	if l.Content != "Prefer table-driven tests for parser coverage." {
		t.Errorf("Content = %q", l.Content)
	}
}

func TestParseLessonsText_AISourceAndFlags(t *testing.T) {
	input := `### [L002] [*----|-----] 🤖 Avoid global state
- **Uses**: 4 | **Velocity**: 2.5 | **Learned**: 2026-01-01 | **Last**: 2026-02-01 | **Category**: gotcha | **Source**: ai | **Promotable**: no
> Pass context objects instead.
`
	lessons := parseLessonsText(input, models.LevelProject)
	if len(lessons) != 1 {
		t.Fatalf("expected 1 lesson, got %d", len(lessons))
	}
	l := lessons[0]
	if l.Title != "Avoid global state" {
		t.Errorf("robot marker not stripped: %q", l.Title)
	}
	if l.Source != models.SourceAI {
		t.Errorf("Source = %q", l.Source)
	}
	if l.Promotable {
		t.Error("Promotable flag not parsed")
	}
	if l.Velocity != 2.5 {
		t.Errorf("Velocity = %v", l.Velocity)
	}
}

func TestParseLessonsText_LegacyFormat(t *testing.T) {
	// Legacy metadata omits Velocity and Source.
	input := `### [S003] [**---|-----] Check exit codes
- **Uses**: 7 | **Learned**: 2025-11-02 | **Last**: 2025-12-05 | **Category**: correction
> Always check subprocess exit codes.
`
	lessons := parseLessonsText(input, models.LevelSystem)
	if len(lessons) != 1 {
		t.Fatalf("expected 1 lesson, got %d", len(lessons))
	}
	l := lessons[0]
	if l.Velocity != 0 {
		t.Errorf("legacy velocity = %v, want 0", l.Velocity)
	}
	if l.Source != models.SourceHuman {
		t.Errorf("legacy source = %q, want human", l.Source)
	}
	if !l.Promotable {
		t.Error("legacy promotable should default to true")
	}

	// Re-serialization produces the modern grammar.
	out := formatLesson(l)
	if !strings.Contains(out, "**Velocity**: 0") {
		t.Errorf("modern output missing Velocity: %q", out)
	}
}

func TestParseLessonsText_SkipsMalformed(t *testing.T) {
	input := `### [L001] [*----|-----] Good lesson
- **Uses**: 1 | **Velocity**: 0 | **Learned**: 2026-01-15 | **Last**: 2026-01-16 | **Category**: pattern
> Fine.

### [L002] [*----|-----] Broken date
- **Uses**: 1 | **Velocity**: 0 | **Learned**: 2026-13-45 | **Last**: 2026-01-16 | **Category**: pattern
> Dropped.

### [L003] [*----|-----] Also good
- **Uses**: 2 | **Velocity**: 1 | **Learned**: 2026-01-10 | **Last**: 2026-01-18 | **Category**: decision
> Kept.
`
	lessons := parseLessonsText(input, models.LevelProject)
	if len(lessons) != 2 {
		t.Fatalf("expected 2 lessons (malformed dropped), got %d", len(lessons))
	}
	if lessons[0].ID != "L001" || lessons[1].ID != "L003" {
		t.Errorf("unexpected survivors: %s, %s", lessons[0].ID, lessons[1].ID)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	tests := []*models.Lesson{
		{
			ID: "L010", Title: "Plain lesson", Content: "Some content.",
			Uses: 12, Velocity: 3.25, Learned: date(2026, 1, 1), LastUsed: date(2026, 3, 1),
			Category: "pattern", Source: models.SourceHuman, Level: models.LevelProject, Promotable: true,
		},
		{
			ID: "S004", Title: "AI non-promotable", Content: "More content.",
			Uses: 55, Velocity: 0, Learned: date(2025, 6, 1), LastUsed: date(2026, 2, 10),
			Category: "gotcha", Source: models.SourceAI, Level: models.LevelSystem, Promotable: false,
		},
	}
	for _, want := range tests {
		t.Run(want.ID, func(t *testing.T) {
			parsed := parseLessonsText(formatLesson(want), want.Level)
			if len(parsed) != 1 {
				t.Fatalf("round trip lost the lesson")
			}
			got := parsed[0]
			if got.ID != want.ID || got.Title != want.Title || got.Content != want.Content ||
				got.Uses != want.Uses || got.Velocity != want.Velocity ||
				!got.Learned.Equal(want.Learned) || !got.LastUsed.Equal(want.LastUsed) ||
				got.Category != want.Category || got.Source != want.Source ||
				got.Promotable != want.Promotable {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
			}
		})
	}
}
