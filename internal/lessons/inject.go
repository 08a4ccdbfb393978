package lessons

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pbrown/claude-recall/internal/models"
	"github.com/pbrown/claude-recall/internal/util"
)

// HeavyContextTokens is the estimate above which the injection carries a
// warning to prune.
const HeavyContextTokens = 2000

const injectFooter = "Cite [ID] when applying. LESSON: to add."

// InjectContext selects the top lessons by cumulative uses and logs the
// session start.
func (s *Store) InjectContext(topN int) (models.InjectionResult, error) {
	all, err := s.List(ListOptions{Scope: "all"})
	if err != nil {
		return models.InjectionResult{}, err
	}
	if len(all) == 0 {
		return models.InjectionResult{}, nil
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Uses > all[j].Uses })

	top := all
	if topN < len(all) {
		top = all[:topN]
	}

	systemCount, projectCount := 0, 0
	for _, l := range all {
		if l.IsSystem() {
			systemCount++
		} else {
			projectCount++
		}
	}

	result := models.InjectionResult{
		TopLessons:   top,
		AllLessons:   all,
		TotalCount:   len(all),
		SystemCount:  systemCount,
		ProjectCount: projectCount,
	}

	topSummary := make([]map[string]any, 0, len(top))
	for _, l := range top {
		topSummary = append(topSummary, map[string]any{"id": l.ID, "uses": l.Uses})
	}
	s.log.SessionStart(s.cfg.ProjectRoot, s.cfg.BaseDir,
		len(all), systemCount, projectCount, topSummary, result.TotalTokens())

	return result, nil
}

// Inject renders the session-start lesson block: a counted header, a
// heavy-context warning when the full set is expensive, one detail line per
// top lesson, and a single compact line for the remainder.
func (s *Store) Inject(limit int) (string, error) {
	result, err := s.InjectContext(limit)
	if err != nil {
		return "", err
	}
	if len(result.AllLessons) == 0 {
		return "", nil
	}

	totalTokens := result.TotalTokens()

	var lines []string
	lines = append(lines, fmt.Sprintf("LESSONS (%dS, %dL | ~%d tokens)",
		result.SystemCount, result.ProjectCount, totalTokens))

	if totalTokens > HeavyContextTokens {
		lines = append(lines, "  ⚠️ CONTEXT HEAVY - Consider completing handoffs, archiving stale lessons")
	}

	for _, l := range result.TopLessons {
		preview := util.Truncate(l.Content, 60)
		lines = append(lines, fmt.Sprintf("  [%s] %s %s - %s", l.ID, l.Rating().Format(), l.Title, preview))
	}

	rest := result.AllLessons[len(result.TopLessons):]
	if len(rest) > 0 {
		items := make([]string, 0, len(rest))
		for _, l := range rest {
			items = append(items, fmt.Sprintf("[%s] %s", l.ID, l.Title))
		}
		lines = append(lines, "  "+strings.Join(items, " | "))
	}

	lines = append(lines, injectFooter)

	includedIDs := make([]string, 0, len(result.TopLessons))
	for _, l := range result.TopLessons {
		includedIDs = append(includedIDs, l.ID)
	}
	s.log.InjectionGenerated(totalTokens, len(result.TopLessons), len(rest), includedIDs)

	return strings.Join(lines, "\n"), nil
}
