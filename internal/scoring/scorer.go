// Package scoring delegates lesson relevance ranking to an external model.
// The scorer shells out, feeds the query plus the lesson catalog on stdin,
// and parses "ID: SCORE" lines back. Every failure mode degrades to an empty
// result with a populated error string; scoring never fails a session.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pbrown/claude-recall/internal/debuglog"
	"github.com/pbrown/claude-recall/internal/models"
)

// ScoringActiveEnvVar marks the subprocess environment so session hooks do
// not recursively trigger another scoring pass.
const ScoringActiveEnvVar = "LESSONS_SCORING_ACTIVE"

// scorePattern accepts "L001: 8", "[S002]: 3", and similar.
var scorePattern = regexp.MustCompile(`^\[?([LS]\d{3})\]?:\s*(\d+)`)

// Scorer invokes the external model command.
type Scorer struct {
	// Command is the argv of the scoring model invocation.
	Command []string
	// Timeout bounds the whole subprocess call.
	Timeout time.Duration
	// MaxQueryLen truncates oversized query text before prompting.
	MaxQueryLen int

	log *debuglog.Logger
}

// New builds a scorer with the given invocation settings.
func New(command []string, timeout time.Duration, maxQueryLen int, log *debuglog.Logger) *Scorer {
	return &Scorer{
		Command:     command,
		Timeout:     timeout,
		MaxQueryLen: maxQueryLen,
		log:         log,
	}
}

// Score ranks the lesson set against the query text. The returned result's
// Err field carries any failure; Score has no error return.
func (s *Scorer) Score(query string, lessons []*models.Lesson) models.RelevanceResult {
	if len(query) > s.MaxQueryLen {
		query = query[:s.MaxQueryLen] + "..."
	}
	if len(lessons) == 0 {
		return models.RelevanceResult{Query: query}
	}

	start := time.Now()
	result := s.run(query, lessons)

	var top [][2]any
	for i, sl := range result.Scored {
		if i == 3 {
			break
		}
		top = append(top, [2]any{sl.Lesson.ID, sl.Score})
	}
	s.log.Relevance(len(query), len(lessons), time.Since(start), top, result.Err)

	return result
}

func (s *Scorer) run(query string, lessons []*models.Lesson) models.RelevanceResult {
	var catalog strings.Builder
	for _, l := range lessons {
		fmt.Fprintf(&catalog, "[%s] %s: %s\n", l.ID, l.Title, l.Content)
	}

	prompt := fmt.Sprintf(`Score each lesson's relevance (0-10) to this query. 10 = highly relevant, 0 = not relevant.

Query: %s

Lessons:
%s
Output ONLY lines in format: ID: SCORE
Example:
L001: 8
S002: 3

No explanations, just ID: SCORE lines.`, query, catalog.String())

	if len(s.Command) == 0 {
		return models.RelevanceResult{Query: query, Err: "scorer command not configured"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = append(os.Environ(), ScoringActiveEnvVar+"=1")

	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return models.RelevanceResult{Query: query,
			Err: fmt.Sprintf("scoring call timed out after %s", s.Timeout)}
	}
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return models.RelevanceResult{Query: query, Err: s.Command[0] + " command not found"}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return models.RelevanceResult{Query: query,
				Err: fmt.Sprintf("%s command failed: %s", s.Command[0], strings.TrimSpace(string(exitErr.Stderr)))}
		}
		return models.RelevanceResult{Query: query, Err: err.Error()}
	}

	output := strings.TrimSpace(string(out))
	if output == "" {
		return models.RelevanceResult{Query: query, Err: "empty response from scoring model"}
	}

	byID := make(map[string]*models.Lesson, len(lessons))
	for _, l := range lessons {
		byID[l.ID] = l
	}

	var scored []models.ScoredLesson
	for _, line := range strings.Split(output, "\n") {
		m := scorePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lesson, ok := byID[m[1]]
		if !ok {
			continue
		}
		score, _ := strconv.Atoi(m[2])
		scored = append(scored, models.ScoredLesson{Lesson: lesson, Score: min(10, max(0, score))})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Lesson.Uses > scored[j].Lesson.Uses
	})

	return models.RelevanceResult{Scored: scored, Query: query}
}

// Format renders a scored result for the CLI, keeping the top entries at or
// above the minimum score.
func Format(result models.RelevanceResult, topN, minScore int) string {
	if result.Err != "" {
		return "Scoring failed: " + result.Err
	}
	var lines []string
	shown := 0
	for _, sl := range result.Scored {
		if sl.Score < minScore {
			continue
		}
		if topN > 0 && shown >= topN {
			break
		}
		lines = append(lines, fmt.Sprintf("[%s] %d - %s", sl.Lesson.ID, sl.Score, sl.Lesson.Title))
		shown++
	}
	if len(lines) == 0 {
		return "(no relevant lessons)"
	}
	return strings.Join(lines, "\n")
}
