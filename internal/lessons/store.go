package lessons

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pbrown/claude-recall/internal/config"
	"github.com/pbrown/claude-recall/internal/debuglog"
	"github.com/pbrown/claude-recall/internal/filelock"
	"github.com/pbrown/claude-recall/internal/models"
	"github.com/pbrown/claude-recall/internal/util"
)

// Store manages the two lesson scopes. Every mutation takes the file lock
// for exactly one scope, reads the whole file, rewrites it, and releases;
// reads are lock-free and rely on parser resilience.
type Store struct {
	cfg *config.Config
	log *debuglog.Logger
}

// NewStore builds a lesson store over the resolved configuration.
func NewStore(cfg *config.Config, log *debuglog.Logger) *Store {
	return &Store{cfg: cfg, log: log}
}

func (s *Store) fileFor(level string) string {
	if level == models.LevelSystem {
		return s.cfg.SystemLessonsFile()
	}
	return s.cfg.ProjectLessonsFile()
}

func levelForID(id string) string {
	if strings.HasPrefix(id, "S") {
		return models.LevelSystem
	}
	return models.LevelProject
}

// initFile creates the lessons file with its standard header if missing.
func (s *Store) initFile(level string) error {
	path := s.fileFor(level)
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(fileHeader(level)), 0644)
}

// parseFile loads every lesson from one scope. A missing file is an empty
// scope, not an error.
func (s *Store) parseFile(path, level string) ([]*models.Lesson, error) {
	done := s.log.TraceFileIO("parse", path)
	defer done()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return parseLessonsText(string(data), level), nil
}

// writeFile rewrites one scope, preserving whatever header precedes the
// first lesson block.
func (s *Store) writeFile(path string, lessons []*models.Lesson, level string) error {
	done := s.log.TraceFileIO("write", path)
	defer done()

	header := fileHeader(level)
	if data, err := os.ReadFile(path); err == nil {
		content := string(data)
		if loc := regexp.MustCompile(`(?m)^### \[`).FindStringIndex(content); loc != nil {
			header = strings.TrimRight(content[:loc[0]], "\n") + "\n"
		} else {
			header = strings.TrimRight(content, "\n") + "\n"
		}
	}

	parts := []string{header}
	for _, l := range lessons {
		parts = append(parts, "", formatLesson(l))
	}
	return util.AtomicWriteFile(path, []byte(strings.Join(parts, "\n")), 0644)
}

// Add creates a new lesson and returns its id. Duplicate titles are rejected
// unless force is set.
func (s *Store) Add(level, category, title, content, source string, force, promotable bool) (string, error) {
	if !models.ValidCategories[category] {
		return "", &models.ValidationError{Field: "category", Message: "invalid category", Value: category}
	}
	if err := s.initFile(level); err != nil {
		return "", err
	}
	path := s.fileFor(level)
	prefix := "L"
	if level == models.LevelSystem {
		prefix = "S"
	}

	var id string
	unlock := s.log.TraceLock(path)
	err := filelock.WithLock(path, func() error {
		unlock()
		existing, err := s.parseFile(path, level)
		if err != nil {
			return err
		}
		if !force {
			if dup := s.findDuplicate(title, existing); dup != "" {
				return &models.DuplicateError{Title: dup}
			}
		}
		id = nextID(existing, prefix)

		today := models.Today()
		lesson := &models.Lesson{
			ID:         id,
			Title:      title,
			Content:    content,
			Uses:       1,
			Velocity:   0,
			Learned:    today,
			LastUsed:   today,
			Category:   category,
			Source:     source,
			Level:      level,
			Promotable: promotable,
		}

		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		_, err = f.WriteString("\n" + formatLesson(lesson) + "\n")
		return err
	})
	if err != nil {
		return "", err
	}

	s.log.LessonAdded(id, level, category, source, len(title), len(content))
	return id, nil
}

// Get returns a lesson by id, or a NotFoundError.
func (s *Store) Get(id string) (*models.Lesson, error) {
	level := levelForID(id)
	lessons, err := s.parseFile(s.fileFor(level), level)
	if err != nil {
		return nil, err
	}
	for _, l := range lessons {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, &models.NotFoundError{Kind: "lesson", ID: id}
}

// Cite increments a lesson's uses (saturating at the cap) and velocity, and
// stamps last_used.
func (s *Store) Cite(id string) (models.CitationResult, error) {
	level := levelForID(id)
	path := s.fileFor(level)

	var result models.CitationResult
	var usesBefore int
	var velocityBefore float64

	unlock := s.log.TraceLock(path)
	err := filelock.WithLock(path, func() error {
		unlock()
		lessons, err := s.parseFile(path, level)
		if err != nil {
			return err
		}
		var target *models.Lesson
		for _, l := range lessons {
			if l.ID == id {
				target = l
				break
			}
		}
		if target == nil {
			return &models.NotFoundError{Kind: "lesson", ID: id}
		}

		usesBefore = target.Uses
		velocityBefore = target.Velocity

		target.Uses = min(target.Uses+1, models.MaxUses)
		target.Velocity++
		target.LastUsed = models.Today()

		result = models.CitationResult{
			LessonID: id,
			Uses:     target.Uses,
			Velocity: target.Velocity,
			PromotionReady: strings.HasPrefix(id, "L") &&
				target.Uses >= models.SystemPromotionThreshold &&
				target.Promotable,
		}
		return s.writeFile(path, lessons, level)
	})
	if err != nil {
		return models.CitationResult{}, err
	}

	s.log.Citation(id, usesBefore, result.Uses, velocityBefore, result.Velocity, result.PromotionReady)
	return result, nil
}

// Edit replaces a lesson's content.
func (s *Store) Edit(id, newContent string) error {
	level := levelForID(id)
	path := s.fileFor(level)
	err := filelock.WithLock(path, func() error {
		lessons, err := s.parseFile(path, level)
		if err != nil {
			return err
		}
		for _, l := range lessons {
			if l.ID == id {
				l.Content = newContent
				return s.writeFile(path, lessons, level)
			}
		}
		return &models.NotFoundError{Kind: "lesson", ID: id}
	})
	if err == nil {
		s.log.Mutation("edit", id, nil)
	}
	return err
}

// Delete removes a lesson permanently.
func (s *Store) Delete(id string) error {
	level := levelForID(id)
	path := s.fileFor(level)
	err := filelock.WithLock(path, func() error {
		lessons, err := s.parseFile(path, level)
		if err != nil {
			return err
		}
		remaining := lessons[:0]
		for _, l := range lessons {
			if l.ID != id {
				remaining = append(remaining, l)
			}
		}
		if len(remaining) == len(lessons) {
			return &models.NotFoundError{Kind: "lesson", ID: id}
		}
		return s.writeFile(path, remaining, level)
	})
	if err == nil {
		s.log.Mutation("delete", id, nil)
	}
	return err
}

// Promote copies a project lesson to system scope under a fresh S-id, then
// removes the project copy. The two files are locked in sequence, never
// nested; if the second phase fails the promoted copy is the source of truth
// and the leftover project record can be deleted by hand.
func (s *Store) Promote(id string) (string, error) {
	if !strings.HasPrefix(id, "L") {
		return "", &models.ValidationError{Field: "id", Message: "can only promote project lessons (L###)", Value: id}
	}
	lesson, err := s.Get(id)
	if err != nil {
		return "", err
	}
	if err := s.initFile(models.LevelSystem); err != nil {
		return "", err
	}

	systemPath := s.cfg.SystemLessonsFile()
	var newID string
	err = filelock.WithLock(systemPath, func() error {
		systemLessons, err := s.parseFile(systemPath, models.LevelSystem)
		if err != nil {
			return err
		}
		newID = nextID(systemLessons, "S")
		promoted := *lesson
		promoted.ID = newID
		promoted.Level = models.LevelSystem
		systemLessons = append(systemLessons, &promoted)
		return s.writeFile(systemPath, systemLessons, models.LevelSystem)
	})
	if err != nil {
		return "", err
	}

	projectPath := s.cfg.ProjectLessonsFile()
	err = filelock.WithLock(projectPath, func() error {
		projectLessons, err := s.parseFile(projectPath, models.LevelProject)
		if err != nil {
			return err
		}
		remaining := projectLessons[:0]
		for _, l := range projectLessons {
			if l.ID != id {
				remaining = append(remaining, l)
			}
		}
		return s.writeFile(projectPath, remaining, models.LevelProject)
	})
	if err != nil {
		return "", err
	}

	s.log.Mutation("promote", id, map[string]any{"new_id": newID})
	return newID, nil
}

// ListOptions filter a List call.
type ListOptions struct {
	Scope     string // "all", "project", or "system"
	Search    string
	Category  string
	StaleOnly bool
}

// List returns lessons across the requested scopes with in-memory filtering.
func (s *Store) List(opts ListOptions) ([]*models.Lesson, error) {
	scope := opts.Scope
	if scope == "" {
		scope = "all"
	}
	var lessons []*models.Lesson
	if scope == "all" || scope == models.LevelProject {
		project, err := s.parseFile(s.cfg.ProjectLessonsFile(), models.LevelProject)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, project...)
	}
	if scope == "all" || scope == models.LevelSystem {
		system, err := s.parseFile(s.cfg.SystemLessonsFile(), models.LevelSystem)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, system...)
	}

	if opts.Search != "" {
		needle := strings.ToLower(opts.Search)
		filtered := lessons[:0]
		for _, l := range lessons {
			if strings.Contains(strings.ToLower(l.ID), needle) ||
				strings.Contains(strings.ToLower(l.Title), needle) ||
				strings.Contains(strings.ToLower(l.Content), needle) {
				filtered = append(filtered, l)
			}
		}
		lessons = filtered
	}
	if opts.Category != "" {
		filtered := lessons[:0]
		for _, l := range lessons {
			if l.Category == opts.Category {
				filtered = append(filtered, l)
			}
		}
		lessons = filtered
	}
	if opts.StaleOnly {
		filtered := lessons[:0]
		for _, l := range lessons {
			if l.IsStale() {
				filtered = append(filtered, l)
			}
		}
		lessons = filtered
	}
	return lessons, nil
}

// Decay halves every lesson's velocity and decrements uses for lessons that
// have gone uncited past the threshold. When no coding session has happened
// since the previous decay pass, the pass is skipped entirely (vacation
// mode) so time away does not erode ratings.
func (s *Store) Decay(staleThresholdDays int) (models.DecayResult, error) {
	sessions := s.countRecentSessions()

	if sessions == 0 {
		if _, err := os.Stat(s.cfg.DecayStateFile()); err == nil {
			if err := s.touchDecayMarker(); err != nil {
				return models.DecayResult{}, err
			}
			s.log.DecayResult(0, 0, 0, true)
			return models.DecayResult{
				Skipped: true,
				Message: "No sessions since last decay - skipping (vacation mode)",
			}, nil
		}
	}

	decayedUses, decayedVelocity := 0, 0
	for _, scope := range []struct {
		level string
		path  string
	}{
		{models.LevelProject, s.cfg.ProjectLessonsFile()},
		{models.LevelSystem, s.cfg.SystemLessonsFile()},
	} {
		if _, err := os.Stat(scope.path); err != nil {
			continue
		}
		err := filelock.WithLock(scope.path, func() error {
			lessons, err := s.parseFile(scope.path, scope.level)
			if err != nil {
				return err
			}
			for _, l := range lessons {
				if l.Velocity > models.VelocityEpsilon {
					old := l.Velocity
					l.Velocity = math.Round(l.Velocity*models.VelocityDecayFactor*100) / 100
					if l.Velocity < models.VelocityEpsilon {
						l.Velocity = 0
					}
					if l.Velocity != old {
						decayedVelocity++
					}
				}
				if models.DaysSince(l.LastUsed) > staleThresholdDays && l.Uses > 1 {
					l.Uses--
					decayedUses++
				}
			}
			return s.writeFile(scope.path, lessons, scope.level)
		})
		if err != nil {
			return models.DecayResult{}, err
		}
	}

	if err := s.touchDecayMarker(); err != nil {
		return models.DecayResult{}, err
	}

	s.log.DecayResult(decayedUses, decayedVelocity, sessions, false)
	return models.DecayResult{
		DecayedUses:      decayedUses,
		DecayedVelocity:  decayedVelocity,
		SessionsSinceRun: sessions,
		Message: fmt.Sprintf("Decayed: %d uses, %d velocities (%d sessions since last run)",
			decayedUses, decayedVelocity, sessions),
	}, nil
}

// RecordSession touches a session marker so the next decay pass knows coding
// happened. Called at session start.
func (s *Store) RecordSession(sessionID string) error {
	dir := s.cfg.SessionStateDir()
	if err := util.EnsureDir(dir); err != nil {
		return err
	}
	path := filepath.Join(dir, sessionID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	f.Close()
	now := time.Now()
	return os.Chtimes(path, now, now)
}

// countRecentSessions counts session markers newer than the decay marker.
// With no decay marker, every marker counts (first run).
func (s *Store) countRecentSessions() int {
	entries, err := os.ReadDir(s.cfg.SessionStateDir())
	if err != nil {
		return 0
	}
	marker, err := os.Stat(s.cfg.DecayStateFile())
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

func (s *Store) touchDecayMarker() error {
	path := s.cfg.DecayStateFile()
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(models.DateString(models.Today())+"\n"), 0644)
}

// normalizeTitle lowercases, strips punctuation, and collapses whitespace
// for duplicate comparison.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// findDuplicate returns the conflicting title when a near-duplicate exists:
// exact normalized equality, or substring containment when either side is
// longer than the configured gate.
func (s *Store) findDuplicate(title string, existing []*models.Lesson) string {
	gate := s.cfg.Policy.DuplicateLengthGate
	normalized := normalizeTitle(title)
	for _, l := range existing {
		other := normalizeTitle(l.Title)
		if normalized == other {
			return l.Title
		}
		if len(normalized) > gate && strings.Contains(other, normalized) {
			return l.Title
		}
		if len(other) > gate && strings.Contains(normalized, other) {
			return l.Title
		}
	}
	return ""
}

// nextID allocates the next dense id for a prefix by scanning the active set.
func nextID(existing []*models.Lesson, prefix string) string {
	maxID := 0
	for _, l := range existing {
		if strings.HasPrefix(l.ID, prefix) {
			if n, err := strconv.Atoi(l.ID[1:]); err == nil && n > maxID {
				maxID = n
			}
		}
	}
	return fmt.Sprintf("%s%03d", prefix, maxID+1)
}
