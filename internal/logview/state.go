package logview

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pbrown/claude-recall/internal/config"
	"github.com/pbrown/claude-recall/internal/models"
)

// LessonSummary is the lightweight lesson record yielded to observers.
type LessonSummary struct {
	ID       string
	Title    string
	Uses     int
	Velocity float64
	Level    string
}

// HandoffSummary is the lightweight handoff record yielded to observers.
type HandoffSummary struct {
	ID      string
	Title   string
	Status  string
	Phase   string
	Updated string
}

// DecayInfo describes the decay marker state.
type DecayInfo struct {
	LastDecayDate string
	Exists        bool
}

// Summary-parsing patterns. These accept the same grammar as the stores but
// only pull the fields the dashboards display.
var (
	summaryLessonHeader = regexp.MustCompile(`^###\s*\[([LS]\d{3})\]\s*(?:\[([*+|/ -]+)\]\s*)?(.*)$`)
	summaryLessonMeta   = regexp.MustCompile(`^\s*-\s*\*\*Uses\*\*:\s*(\d+)(?:\s*\|\s*\*\*Velocity\*\*:\s*([\d.]+))?`)
	summaryHandoffHead  = regexp.MustCompile(`^###\s*\[([A-Z]\d{3}|hf-[0-9a-f]{7})\]\s*(.+)$`)
	summaryHandoffState = regexp.MustCompile(`^\s*-\s*\*\*Status\*\*:\s*(\w+)\s*\|\s*\*\*Phase\*\*:\s*([\w-]+)`)
	summaryHandoffDate  = regexp.MustCompile(`\*\*Updated\*\*:\s*(\d{4}-\d{2}-\d{2})`)
)

// StateReader re-parses the markdown stores into summary records for
// observers. It tolerates both directory and filename generations.
type StateReader struct {
	cfg *config.Config
}

// NewStateReader builds a state reader over the resolved configuration.
func NewStateReader(cfg *config.Config) *StateReader {
	return &StateReader{cfg: cfg}
}

// Lessons returns summaries across both scopes.
func (r *StateReader) Lessons() []LessonSummary {
	var out []LessonSummary
	out = append(out, parseLessonSummaries(r.cfg.SystemLessonsFile(), models.LevelSystem)...)
	out = append(out, parseLessonSummaries(r.cfg.ProjectLessonsFile(), models.LevelProject)...)
	return out
}

// Handoffs returns summaries from the active handoffs file.
func (r *StateReader) Handoffs() []HandoffSummary {
	return parseHandoffSummaries(r.cfg.ProjectHandoffsFile())
}

// Decay reports the decay marker state.
func (r *StateReader) Decay() DecayInfo {
	data, err := os.ReadFile(r.cfg.DecayStateFile())
	if err != nil {
		return DecayInfo{}
	}
	return DecayInfo{
		LastDecayDate: strings.TrimSpace(string(data)),
		Exists:        true,
	}
}

func parseLessonSummaries(path, level string) []LessonSummary {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(string(data), "\n")

	var out []LessonSummary
	for idx := 0; idx < len(lines); idx++ {
		m := summaryLessonHeader.FindStringSubmatch(lines[idx])
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[3])
		if strings.HasPrefix(title, models.RobotEmoji) {
			title = strings.TrimSpace(strings.TrimPrefix(title, models.RobotEmoji))
		}

		uses := 0
		velocity := 0.0
		if idx+1 < len(lines) {
			if mm := summaryLessonMeta.FindStringSubmatch(lines[idx+1]); mm != nil {
				uses, _ = strconv.Atoi(mm[1])
				if mm[2] != "" {
					velocity, _ = strconv.ParseFloat(mm[2], 64)
				}
			}
		}
		out = append(out, LessonSummary{
			ID:       m[1],
			Title:    title,
			Uses:     uses,
			Velocity: velocity,
			Level:    level,
		})
	}
	return out
}

func parseHandoffSummaries(path string) []HandoffSummary {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(string(data), "\n")

	var out []HandoffSummary
	for idx := 0; idx < len(lines); idx++ {
		m := summaryHandoffHead.FindStringSubmatch(lines[idx])
		if m == nil {
			continue
		}
		summary := HandoffSummary{
			ID:     m[1],
			Title:  strings.TrimSpace(m[2]),
			Status: "unknown",
			Phase:  "unknown",
		}
		if idx+1 < len(lines) {
			if sm := summaryHandoffState.FindStringSubmatch(lines[idx+1]); sm != nil {
				summary.Status, summary.Phase = sm[1], sm[2]
			}
		}
		for i := idx + 1; i < len(lines) && i < idx+4; i++ {
			if dm := summaryHandoffDate.FindStringSubmatch(lines[i]); dm != nil {
				summary.Updated = dm[1]
				break
			}
		}
		out = append(out, summary)
	}
	return out
}

// SessionsSinceDecay counts session markers newer than the decay marker,
// mirroring the store's vacation-mode check for display.
func (r *StateReader) SessionsSinceDecay() int {
	entries, err := os.ReadDir(r.cfg.SessionStateDir())
	if err != nil {
		return 0
	}
	marker, err := os.Stat(r.cfg.DecayStateFile())
	if err != nil {
		return len(entries)
	}
	count := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(marker.ModTime()) {
			count++
		}
	}
	return count
}

// LogPath returns the debug log path for wiring readers.
func LogPath(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, "debug.log")
}
