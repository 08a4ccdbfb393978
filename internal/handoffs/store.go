package handoffs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pbrown/claude-recall/internal/config"
	"github.com/pbrown/claude-recall/internal/debuglog"
	"github.com/pbrown/claude-recall/internal/filelock"
	"github.com/pbrown/claude-recall/internal/models"
	"github.com/pbrown/claude-recall/internal/util"
)

// Completion patterns: a success-outcome tried step whose description starts
// with one of these (case-insensitive) auto-completes the handoff.
var completionPatterns = []string{"final", "done", "complete", "finished"}

// Keywords that indicate implementing-phase work (case-insensitive substring).
var implementingKeywords = []string{
	"implement", "build", "create", "add", "fix", "write", "update",
	"refactor", "remove", "delete", "rename", "move", "extract",
}

// Phases auto-inference never regresses from.
var protectedPhases = map[string]bool{
	models.PhaseImplementing: true,
	models.PhaseReview:       true,
}

// implementingStepThreshold is the success-step count that bumps the phase
// even without a keyword match.
const implementingStepThreshold = 10

// Store manages the project's handoff files. Mutations lock the active file;
// archival appends to the companion archive under the same lock.
type Store struct {
	cfg *config.Config
	log *debuglog.Logger
}

// NewStore builds a handoff store over the resolved configuration.
func NewStore(cfg *config.Config, log *debuglog.Logger) *Store {
	return &Store{cfg: cfg, log: log}
}

func (s *Store) activeFile() string  { return s.cfg.ProjectHandoffsFile() }
func (s *Store) archiveFile() string { return s.cfg.ProjectHandoffsArchive() }

// initFile creates the active handoffs file with its header if missing.
func (s *Store) initFile() error {
	path := s.activeFile()
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(activeFileHeader), 0644)
}

// parseFile loads every handoff from the given file. A missing file is an
// empty set, not an error.
func (s *Store) parseFile(path string) ([]*models.Handoff, error) {
	done := s.log.TraceFileIO("parse", path)
	defer done()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return parseHandoffsText(string(data)), nil
}

// writeActive rewrites the active file from the record set.
func (s *Store) writeActive(handoffs []*models.Handoff) error {
	done := s.log.TraceFileIO("write", s.activeFile())
	defer done()

	parts := []string{activeFileHeader}
	for _, h := range handoffs {
		parts = append(parts, formatHandoff(h), "")
	}
	if err := util.EnsureDir(filepath.Dir(s.activeFile())); err != nil {
		return err
	}
	return util.AtomicWriteFile(s.activeFile(), []byte(strings.Join(parts, "\n")), 0644)
}

// appendArchive appends formatted records to the archive file, creating it
// with its header on first use.
func (s *Store) appendArchive(handoffs []*models.Handoff) error {
	path := s.archiveFile()
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	content := archiveFileHeader
	if data, err := os.ReadFile(path); err == nil {
		content = string(data)
	}
	for _, h := range handoffs {
		content += "\n" + formatHandoff(h) + "\n"
	}
	return util.AtomicWriteFile(path, []byte(content), 0644)
}

// Add creates a new handoff and returns its hash id.
func (s *Store) Add(title, desc string, refs []string, phase, agent string) (string, error) {
	if phase == "" {
		phase = models.PhaseResearch
	}
	if agent == "" {
		agent = "user"
	}
	if !models.ValidPhases[phase] {
		return "", &models.ValidationError{Field: "phase", Message: "invalid phase", Value: phase}
	}
	if !models.ValidAgents[agent] {
		return "", &models.ValidationError{Field: "agent", Message: "invalid agent", Value: agent}
	}
	for _, ref := range refs {
		if !models.ValidRef(ref) {
			return "", &models.ValidationError{Field: "refs", Message: "expected path:line or path:start-end", Value: ref}
		}
	}
	if err := s.initFile(); err != nil {
		return "", err
	}

	var id string
	err := filelock.WithLock(s.activeFile(), func() error {
		handoffs, err := s.parseFile(s.activeFile())
		if err != nil {
			return err
		}
		id = models.NewHandoffID(title, time.Now())
		today := models.Today()
		handoffs = append(handoffs, &models.Handoff{
			ID:          id,
			Title:       title,
			Status:      models.StatusNotStarted,
			Phase:       phase,
			Agent:       agent,
			Created:     today,
			Updated:     today,
			Refs:        refs,
			Description: desc,
		})
		return s.writeActive(handoffs)
	})
	if err != nil {
		return "", err
	}

	s.log.HandoffCreated(id, title, phase, agent)
	return id, nil
}

// mutate locates a handoff under the lock, applies fn, stamps updated, and
// rewrites the file.
func (s *Store) mutate(id string, fn func(h *models.Handoff)) error {
	return filelock.WithLock(s.activeFile(), func() error {
		handoffs, err := s.parseFile(s.activeFile())
		if err != nil {
			return err
		}
		for _, h := range handoffs {
			if h.ID == id {
				fn(h)
				h.Updated = models.Today()
				return s.writeActive(handoffs)
			}
		}
		return &models.NotFoundError{Kind: "handoff", ID: id}
	})
}

// UpdateStatus sets a handoff's status.
func (s *Store) UpdateStatus(id, status string) error {
	if !models.ValidStatuses[status] {
		return &models.ValidationError{Field: "status", Message: "invalid status", Value: status}
	}
	var old string
	err := s.mutate(id, func(h *models.Handoff) {
		old = h.Status
		h.Status = status
	})
	if err == nil {
		s.log.HandoffChange(id, "status_change", old, status)
	}
	return err
}

// UpdatePhase sets a handoff's phase.
func (s *Store) UpdatePhase(id, phase string) error {
	if !models.ValidPhases[phase] {
		return &models.ValidationError{Field: "phase", Message: "invalid phase", Value: phase}
	}
	var old string
	err := s.mutate(id, func(h *models.Handoff) {
		old = h.Phase
		h.Phase = phase
	})
	if err == nil {
		s.log.HandoffChange(id, "phase_change", old, phase)
	}
	return err
}

// UpdateAgent sets a handoff's agent.
func (s *Store) UpdateAgent(id, agent string) error {
	if !models.ValidAgents[agent] {
		return &models.ValidationError{Field: "agent", Message: "invalid agent", Value: agent}
	}
	var old string
	err := s.mutate(id, func(h *models.Handoff) {
		old = h.Agent
		h.Agent = agent
	})
	if err == nil {
		s.log.HandoffChange(id, "agent_change", old, agent)
	}
	return err
}

// UpdateNext sets a handoff's next steps.
func (s *Store) UpdateNext(id, text string) error {
	return s.mutate(id, func(h *models.Handoff) { h.NextSteps = text })
}

// UpdateRefs replaces a handoff's refs list.
func (s *Store) UpdateRefs(id string, refs []string) error {
	for _, ref := range refs {
		if !models.ValidRef(ref) {
			return &models.ValidationError{Field: "refs", Message: "expected path:line or path:start-end", Value: ref}
		}
	}
	return s.mutate(id, func(h *models.Handoff) { h.Refs = refs })
}

// UpdateDesc sets a handoff's description.
func (s *Store) UpdateDesc(id, description string) error {
	return s.mutate(id, func(h *models.Handoff) { h.Description = description })
}

// UpdateCheckpoint sets the single-string progress summary and stamps the
// session date.
func (s *Store) UpdateCheckpoint(id, checkpoint string) error {
	return s.mutate(id, func(h *models.Handoff) {
		h.Checkpoint = checkpoint
		h.LastSession = models.Today()
	})
}

// UpdateContext attaches the structured resumption snapshot and stamps the
// session date.
func (s *Store) UpdateContext(id string, ctx *models.HandoffContext) error {
	return s.mutate(id, func(h *models.Handoff) {
		h.Context = ctx
		h.LastSession = models.Today()
	})
}

// UpdateBlockedBy replaces a handoff's dependency list.
func (s *Store) UpdateBlockedBy(id string, blockedBy []string) error {
	return s.mutate(id, func(h *models.Handoff) { h.BlockedBy = blockedBy })
}

// AddTried appends a tried step, then applies the two auto-inference rules:
// a success step whose description starts with a completion keyword flips
// the handoff to completed/review, and implementing-flavored work (keyword
// match, or the tenth success) bumps a pre-implementing phase forward.
func (s *Store) AddTried(id, outcome, description string) error {
	if !models.ValidOutcomes[outcome] {
		return &models.ValidationError{Field: "outcome", Message: "invalid outcome", Value: outcome}
	}
	err := s.mutate(id, func(h *models.Handoff) {
		h.Tried = append(h.Tried, models.TriedStep{Outcome: outcome, Description: description})

		descLower := strings.ToLower(description)
		if outcome == models.OutcomeSuccess {
			trimmed := strings.TrimSpace(descLower)
			for _, p := range completionPatterns {
				if strings.HasPrefix(trimmed, p) {
					h.Status = models.StatusCompleted
					h.Phase = models.PhaseReview
					break
				}
			}
		}

		if !protectedPhases[h.Phase] {
			bump := false
			for _, kw := range implementingKeywords {
				if strings.Contains(descLower, kw) {
					bump = true
					break
				}
			}
			if !bump && h.SuccessCount() >= implementingStepThreshold {
				bump = true
			}
			if bump {
				h.Phase = models.PhaseImplementing
			}
		}
	})
	if err == nil {
		s.log.HandoffChange(id, "tried_added", "", outcome)
	}
	return err
}

// Complete marks a handoff completed and returns the lesson-extraction
// prompt built from its history.
func (s *Store) Complete(id string) (models.HandoffCompleteResult, error) {
	var target *models.Handoff
	err := s.mutate(id, func(h *models.Handoff) {
		h.Status = models.StatusCompleted
		target = h
	})
	if err != nil {
		return models.HandoffCompleteResult{}, err
	}

	var tried []string
	for _, t := range target.Tried {
		tried = append(tried, fmt.Sprintf("- [%s] %s", t.Outcome, t.Description))
	}
	triedSummary := "(none)"
	if len(tried) > 0 {
		triedSummary = strings.Join(tried, "\n")
	}
	refs := "(none)"
	if len(target.Refs) > 0 {
		refs = strings.Join(target.Refs, ", ")
	}

	prompt := fmt.Sprintf(`Review this completed handoff for potential lessons to extract:

**Title**: %s
**Description**: %s

**Tried steps**:
%s

**Files affected**: %s

Consider extracting lessons about:
1. What worked and why
2. What didn't work and why
3. Patterns or gotchas discovered
4. Decisions made and their rationale
`, target.Title, target.Description, triedSummary, refs)

	s.log.HandoffCompleted(id, len(target.Tried), models.DaysBetween(target.Created, models.Today()))

	return models.HandoffCompleteResult{Handoff: target, ExtractionPrompt: prompt}, nil
}

// Archive moves a handoff from the active file to the archive.
func (s *Store) Archive(id string) error {
	return filelock.WithLock(s.activeFile(), func() error {
		handoffs, err := s.parseFile(s.activeFile())
		if err != nil {
			return err
		}
		var target *models.Handoff
		remaining := handoffs[:0]
		for _, h := range handoffs {
			if h.ID == id {
				target = h
			} else {
				remaining = append(remaining, h)
			}
		}
		if target == nil {
			return &models.NotFoundError{Kind: "handoff", ID: id}
		}
		if err := s.appendArchive([]*models.Handoff{target}); err != nil {
			return err
		}
		return s.writeActive(remaining)
	})
}

// Delete removes a handoff permanently, with no archive copy.
func (s *Store) Delete(id string) error {
	err := filelock.WithLock(s.activeFile(), func() error {
		handoffs, err := s.parseFile(s.activeFile())
		if err != nil {
			return err
		}
		remaining := handoffs[:0]
		for _, h := range handoffs {
			if h.ID != id {
				remaining = append(remaining, h)
			}
		}
		if len(remaining) == len(handoffs) {
			return &models.NotFoundError{Kind: "handoff", ID: id}
		}
		return s.writeActive(remaining)
	})
	if err == nil {
		s.log.Mutation("handoff_delete", id, nil)
	}
	return err
}

// Get returns a handoff by id, or nil when absent.
func (s *Store) Get(id string) (*models.Handoff, error) {
	handoffs, err := s.parseFile(s.activeFile())
	if err != nil {
		return nil, err
	}
	for _, h := range handoffs {
		if h.ID == id {
			return h, nil
		}
	}
	return nil, nil
}

// List returns handoffs, filtered to a specific status when set, excluding
// completed ones unless asked.
func (s *Store) List(statusFilter string, includeCompleted bool) ([]*models.Handoff, error) {
	handoffs, err := s.parseFile(s.activeFile())
	if err != nil {
		return nil, err
	}
	if statusFilter != "" {
		filtered := handoffs[:0]
		for _, h := range handoffs {
			if h.Status == statusFilter {
				filtered = append(filtered, h)
			}
		}
		return filtered, nil
	}
	if !includeCompleted {
		filtered := handoffs[:0]
		for _, h := range handoffs {
			if h.IsActive() {
				filtered = append(filtered, h)
			}
		}
		return filtered, nil
	}
	return handoffs, nil
}

// ListCompleted applies the hybrid visibility rule: a completed handoff is
// visible when it is within the top max-count by recency OR was updated
// within the age window.
func (s *Store) ListCompleted(maxCount, maxAgeDays int) ([]*models.Handoff, error) {
	if maxCount <= 0 {
		maxCount = s.cfg.Policy.HandoffMaxCompleted
	}
	if maxAgeDays <= 0 {
		maxAgeDays = s.cfg.Policy.HandoffMaxAgeDays
	}

	handoffs, err := s.parseFile(s.activeFile())
	if err != nil {
		return nil, err
	}
	var completed []*models.Handoff
	for _, h := range handoffs {
		if h.Status == models.StatusCompleted {
			completed = append(completed, h)
		}
	}
	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].Updated.After(completed[j].Updated)
	})

	var visible []*models.Handoff
	for i, h := range completed {
		inTopN := i < maxCount
		isRecent := models.DaysSince(h.Updated) <= maxAgeDays
		if inTopN || isRecent {
			visible = append(visible, h)
		}
	}
	return visible, nil
}

// archiveStale moves non-completed handoffs that have gone unmodified past
// the stale threshold to the archive, prefixing their description with the
// stale note. Returns the archived ids.
func (s *Store) archiveStale() ([]string, error) {
	staleDays := s.cfg.Policy.HandoffStaleDays
	var archived []string
	err := filelock.WithLock(s.activeFile(), func() error {
		handoffs, err := s.parseFile(s.activeFile())
		if err != nil || len(handoffs) == 0 {
			return err
		}
		var stale []*models.Handoff
		remaining := handoffs[:0]
		for _, h := range handoffs {
			if h.IsActive() && models.DaysSince(h.Updated) > staleDays {
				note := fmt.Sprintf("[Auto-archived: stale after %d days]", staleDays)
				if h.Description != "" {
					h.Description = note + " " + h.Description
				} else {
					h.Description = note
				}
				stale = append(stale, h)
				archived = append(archived, h.ID)
			} else {
				remaining = append(remaining, h)
			}
		}
		if len(stale) == 0 {
			return nil
		}
		if err := s.appendArchive(stale); err != nil {
			return err
		}
		return s.writeActive(remaining)
	})
	return archived, err
}

// archiveOldCompleted moves completed handoffs older than the archive window
// to the archive. Returns the archived ids.
func (s *Store) archiveOldCompleted() ([]string, error) {
	archiveDays := s.cfg.Policy.HandoffCompletedArchiveDays
	var archived []string
	err := filelock.WithLock(s.activeFile(), func() error {
		handoffs, err := s.parseFile(s.activeFile())
		if err != nil || len(handoffs) == 0 {
			return err
		}
		var old []*models.Handoff
		remaining := handoffs[:0]
		for _, h := range handoffs {
			if h.Status == models.StatusCompleted && models.DaysSince(h.Updated) > archiveDays {
				old = append(old, h)
				archived = append(archived, h.ID)
			} else {
				remaining = append(remaining, h)
			}
		}
		if len(old) == 0 {
			return nil
		}
		if err := s.appendArchive(old); err != nil {
			return err
		}
		return s.writeActive(remaining)
	})
	return archived, err
}
