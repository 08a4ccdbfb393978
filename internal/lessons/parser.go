// Package lessons implements the lesson store: markdown persistence, CRUD,
// duplicate detection, citation, promotion, decay, and session-start
// injection.
package lessons

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pbrown/claude-recall/internal/models"
)

// Storage grammar. Two generations are accepted on read: the current
// metadata line carries Velocity and optional Source/Promotable; the legacy
// line omits Velocity (0) and Source (human). The current form is always
// written back.
var (
	headerPattern = regexp.MustCompile(`^###\s*\[([LS]\d{3})\]\s*(?:\[([*+|/ -]+)\]\s*)?(.*)$`)

	metadataPattern = regexp.MustCompile(
		`^\s*-\s*\*\*Uses\*\*:\s*(\d+)` +
			`\s*\|\s*\*\*Velocity\*\*:\s*([\d.]+)` +
			`\s*\|\s*\*\*Learned\*\*:\s*(\d{4}-\d{2}-\d{2})` +
			`\s*\|\s*\*\*Last\*\*:\s*(\d{4}-\d{2}-\d{2})` +
			`\s*\|\s*\*\*Category\*\*:\s*(\w+)` +
			`(?:\s*\|\s*\*\*Source\*\*:\s*(\w+))?`)

	legacyMetadataPattern = regexp.MustCompile(
		`^\s*-\s*\*\*Uses\*\*:\s*(\d+)` +
			`\s*\|\s*\*\*Learned\*\*:\s*(\d{4}-\d{2}-\d{2})` +
			`\s*\|\s*\*\*Last\*\*:\s*(\d{4}-\d{2}-\d{2})` +
			`\s*\|\s*\*\*Category\*\*:\s*(\w+)` +
			`(?:\s*\|\s*\*\*Source\*\*:\s*(\w+))?`)

	contentPattern = regexp.MustCompile(`^>\s?(.*)$`)
)

// parseLesson parses one lesson block starting at lines[start]. It returns
// the lesson and the index past the block, or ok=false when the block is
// malformed; the caller then advances one line and rescans.
func parseLesson(lines []string, start int, level string) (lesson *models.Lesson, next int, ok bool) {
	if start >= len(lines) {
		return nil, start, false
	}
	m := headerPattern.FindStringSubmatch(lines[start])
	if m == nil {
		return nil, start, false
	}
	id := m[1]
	title := strings.TrimSpace(m[3])
	// The robot marker is presentation; source of truth is the Source field.
	if strings.HasPrefix(title, models.RobotEmoji) {
		title = strings.TrimSpace(strings.TrimPrefix(title, models.RobotEmoji))
	}

	if start+1 >= len(lines) {
		return nil, start, false
	}
	metaLine := lines[start+1]

	var uses int
	var velocity float64
	var learnedStr, lastStr, category, source string

	if mm := metadataPattern.FindStringSubmatch(metaLine); mm != nil {
		uses, _ = strconv.Atoi(mm[1])
		velocity, _ = strconv.ParseFloat(mm[2], 64)
		learnedStr, lastStr, category, source = mm[3], mm[4], mm[5], mm[6]
	} else if mm := legacyMetadataPattern.FindStringSubmatch(metaLine); mm != nil {
		uses, _ = strconv.Atoi(mm[1])
		learnedStr, lastStr, category, source = mm[2], mm[3], mm[4], mm[5]
	} else {
		return nil, start, false
	}
	if source == "" {
		source = models.SourceHuman
	}

	learned, err := models.ParseDate(learnedStr)
	if err != nil {
		return nil, start, false
	}
	lastUsed, err := models.ParseDate(lastStr)
	if err != nil {
		return nil, start, false
	}

	// Absent flag means promotable.
	promotable := !strings.Contains(metaLine, "**Promotable**: no")

	content := ""
	next = start + 2
	if next < len(lines) {
		if cm := contentPattern.FindStringSubmatch(lines[next]); cm != nil {
			content = cm[1]
			next++
		}
	}
	for next < len(lines) && strings.TrimSpace(lines[next]) == "" {
		next++
	}

	return &models.Lesson{
		ID:         id,
		Title:      title,
		Content:    content,
		Uses:       uses,
		Velocity:   velocity,
		Learned:    learned,
		LastUsed:   lastUsed,
		Category:   category,
		Source:     source,
		Level:      level,
		Promotable: promotable,
	}, next, true
}

// formatVelocity renders velocity without a trailing ".0" for whole values,
// matching the stored form citations produce.
func formatVelocity(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatLesson renders a lesson block in the current grammar.
func formatLesson(l *models.Lesson) string {
	rating := l.Rating().FormatLegacy()

	title := l.Title
	if l.Source == models.SourceAI {
		title = models.RobotEmoji + " " + title
	}

	meta := []string{
		fmt.Sprintf("**Uses**: %d", l.Uses),
		fmt.Sprintf("**Velocity**: %s", formatVelocity(l.Velocity)),
		fmt.Sprintf("**Learned**: %s", models.DateString(l.Learned)),
		fmt.Sprintf("**Last**: %s", models.DateString(l.LastUsed)),
		fmt.Sprintf("**Category**: %s", l.Category),
	}
	if l.Source == models.SourceAI {
		meta = append(meta, "**Source**: ai")
	}
	if !l.Promotable {
		meta = append(meta, "**Promotable**: no")
	}

	return fmt.Sprintf("### [%s] %s %s\n- %s\n> %s\n",
		l.ID, rating, title, strings.Join(meta, " | "), l.Content)
}

// parseLessonsText scans a full file body, collecting every parseable block
// and skipping anything malformed.
func parseLessonsText(content, level string) []*models.Lesson {
	lines := strings.Split(content, "\n")
	var out []*models.Lesson
	idx := 0
	for idx < len(lines) {
		if strings.HasPrefix(lines[idx], "### [") {
			if lesson, next, ok := parseLesson(lines, idx, level); ok {
				out = append(out, lesson)
				idx = next
				continue
			}
		}
		idx++
	}
	return out
}

// fileHeader generates the standard header for a fresh lessons file.
func fileHeader(level string) string {
	prefix, levelCap := "L", "Project"
	if level == models.LevelSystem {
		prefix, levelCap = "S", "System"
	}
	return fmt.Sprintf(`# LESSONS.md - %s Level

> **Lessons System**: Cite lessons with [%s###] when applying them.
> Stars accumulate with each use. At 50 uses, project lessons promote to system.
>
> **Add lessons**: `+"`LESSON: [category:] title - content`"+`
> **Categories**: pattern, correction, decision, gotcha, preference

## Active Lessons

`, levelCap, prefix)
}
