package scoring

import (
	"strings"
	"testing"
	"time"

	"github.com/pbrown/claude-recall/internal/debuglog"
	"github.com/pbrown/claude-recall/internal/models"
)

func testLessons() []*models.Lesson {
	return []*models.Lesson{
		{ID: "L001", Title: "First", Content: "c1", Uses: 5},
		{ID: "L002", Title: "Second", Content: "c2", Uses: 50},
		{ID: "S001", Title: "Third", Content: "c3", Uses: 1},
	}
}

func newScorer(t *testing.T, command ...string) *Scorer {
	t.Helper()
	log := debuglog.New(t.TempDir(), 0, "test")
	return New(command, 10*time.Second, 2000, log)
}

func TestScoreParsesAndSorts(t *testing.T) {
	// The fake model drains stdin and emits scores in mixed formats,
	// including an unknown id and an out-of-range score.
	script := `cat >/dev/null; printf 'L001: 3\n[L002]: 3\nS001: 99\nL999: 5\nnoise line\n'`
	scorer := newScorer(t, "sh", "-c", script)

	result := scorer.Score("query", testLessons())
	if result.Err != "" {
		t.Fatalf("unexpected error: %s", result.Err)
	}
	if len(result.Scored) != 3 {
		t.Fatalf("scored = %d, want 3 (unknown id dropped)", len(result.Scored))
	}
	// S001 clamped to 10, sorts first; tie between L001/L002 broken by uses.
	if result.Scored[0].Lesson.ID != "S001" || result.Scored[0].Score != 10 {
		t.Errorf("first = %s/%d", result.Scored[0].Lesson.ID, result.Scored[0].Score)
	}
	if result.Scored[1].Lesson.ID != "L002" {
		t.Errorf("tie break by uses failed: %s", result.Scored[1].Lesson.ID)
	}
}

func TestScoreEmptyLessonSet(t *testing.T) {
	scorer := newScorer(t, "sh", "-c", "echo unused")
	result := scorer.Score("query", nil)
	if result.Err != "" || len(result.Scored) != 0 {
		t.Errorf("empty set result = %+v", result)
	}
}

func TestScoreTruncatesQuery(t *testing.T) {
	scorer := newScorer(t, "sh", "-c", "cat >/dev/null; echo 'L001: 1'")
	scorer.MaxQueryLen = 10
	result := scorer.Score(strings.Repeat("q", 50), testLessons())
	if len(result.Query) != 13 || !strings.HasSuffix(result.Query, "...") {
		t.Errorf("query not truncated: %d chars", len(result.Query))
	}
}

func TestScoreCommandMissing(t *testing.T) {
	scorer := newScorer(t, "definitely-not-a-real-binary-xyz")
	result := scorer.Score("query", testLessons())
	if result.Err == "" || len(result.Scored) != 0 {
		t.Errorf("expected error result, got %+v", result)
	}
	if !strings.Contains(result.Err, "not found") {
		t.Errorf("err = %q", result.Err)
	}
}

func TestScoreNonZeroExit(t *testing.T) {
	scorer := newScorer(t, "sh", "-c", "cat >/dev/null; echo doom >&2; exit 3")
	result := scorer.Score("query", testLessons())
	if result.Err == "" || !strings.Contains(result.Err, "failed") {
		t.Errorf("err = %q", result.Err)
	}
}

func TestScoreEmptyOutput(t *testing.T) {
	scorer := newScorer(t, "sh", "-c", "cat >/dev/null")
	result := scorer.Score("query", testLessons())
	if !strings.Contains(result.Err, "empty response") {
		t.Errorf("err = %q", result.Err)
	}
}

func TestScoreTimeout(t *testing.T) {
	log := debuglog.New(t.TempDir(), 0, "test")
	scorer := New([]string{"sh", "-c", "cat >/dev/null; sleep 5"}, 100*time.Millisecond, 2000, log)
	result := scorer.Score("query", testLessons())
	if !strings.Contains(result.Err, "timed out") {
		t.Errorf("err = %q", result.Err)
	}
}

func TestScoreSetsRecursionGuardEnv(t *testing.T) {
	script := `cat >/dev/null; if [ "$` + ScoringActiveEnvVar + `" = "1" ]; then echo 'L001: 7'; else echo 'L001: 0'; fi`
	scorer := newScorer(t, "sh", "-c", script)
	result := scorer.Score("query", testLessons())
	if len(result.Scored) == 0 || result.Scored[0].Score != 7 {
		t.Errorf("guard env not set: %+v", result.Scored)
	}
}

func TestFormat(t *testing.T) {
	lessons := testLessons()
	result := models.RelevanceResult{
		Scored: []models.ScoredLesson{
			{Lesson: lessons[0], Score: 8},
			{Lesson: lessons[1], Score: 4},
			{Lesson: lessons[2], Score: 1},
		},
	}
	out := Format(result, 2, 2)
	if strings.Contains(out, "Third") {
		t.Errorf("min-score filter failed:\n%s", out)
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Errorf("top cap failed: %v", lines)
	}

	if got := Format(models.RelevanceResult{Err: "boom"}, 5, 0); !strings.Contains(got, "boom") {
		t.Errorf("error formatting = %q", got)
	}
	if got := Format(models.RelevanceResult{}, 5, 0); got != "(no relevant lessons)" {
		t.Errorf("empty formatting = %q", got)
	}
}
