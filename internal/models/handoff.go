package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// Handoff status values.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusBlocked    = "blocked"
	StatusCompleted  = "completed"
)

// ValidStatuses is the set of valid handoff status values.
var ValidStatuses = map[string]bool{
	StatusNotStarted: true,
	StatusInProgress: true,
	StatusBlocked:    true,
	StatusCompleted:  true,
}

// Handoff phase values.
const (
	PhaseResearch     = "research"
	PhasePlanning     = "planning"
	PhaseImplementing = "implementing"
	PhaseReview       = "review"
)

// ValidPhases is the set of valid handoff phase values.
var ValidPhases = map[string]bool{
	PhaseResearch:     true,
	PhasePlanning:     true,
	PhaseImplementing: true,
	PhaseReview:       true,
}

// ValidAgents is the set of agent names a handoff can be assigned to.
var ValidAgents = map[string]bool{
	"explore":         true,
	"general-purpose": true,
	"plan":            true,
	"review":          true,
	"user":            true,
}

// Tried-step outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFail    = "fail"
	OutcomePartial = "partial"
)

// ValidOutcomes is the set of valid tried-step outcomes.
var ValidOutcomes = map[string]bool{
	OutcomeSuccess: true,
	OutcomeFail:    true,
	OutcomePartial: true,
}

// TriedStep is one attempted action within a handoff.
type TriedStep struct {
	Outcome     string `yaml:"outcome"`
	Description string `yaml:"description"`
}

// HandoffContext is the structured resumption snapshot captured at
// pre-compact time: what was going on, which files matter, and the git ref
// the snapshot was taken at.
type HandoffContext struct {
	Summary       string   `yaml:"summary" json:"summary"`
	CriticalFiles []string `yaml:"critical_files" json:"critical_files"`
	RecentChanges []string `yaml:"recent_changes" json:"recent_changes"`
	Learnings     []string `yaml:"learnings" json:"learnings"`
	Blockers      []string `yaml:"blockers" json:"blockers"`
	GitRef        string   `yaml:"git_ref" json:"git_ref"`
}

// Empty reports whether the context carries no information at all.
func (c *HandoffContext) Empty() bool {
	return c.Summary == "" && len(c.CriticalFiles) == 0 && len(c.RecentChanges) == 0 &&
		len(c.Learnings) == 0 && len(c.Blockers) == 0
}

// Handoff is a unit of in-flight multi-session work.
type Handoff struct {
	ID          string          `yaml:"id"`
	Title       string          `yaml:"title"`
	Status      string          `yaml:"status"`
	Phase       string          `yaml:"phase"`
	Agent       string          `yaml:"agent"`
	Created     time.Time       `yaml:"created"`
	Updated     time.Time       `yaml:"updated"`
	LastSession time.Time       `yaml:"last_session,omitempty"`
	Refs        []string        `yaml:"refs,omitempty"`
	Description string          `yaml:"description,omitempty"`
	Checkpoint  string          `yaml:"checkpoint,omitempty"`
	NextSteps   string          `yaml:"next_steps,omitempty"`
	Tried       []TriedStep     `yaml:"tried,omitempty"`
	Context     *HandoffContext `yaml:"context,omitempty"`
	BlockedBy   []string        `yaml:"blocked_by,omitempty"`
}

// IsActive reports whether the handoff still represents open work.
func (h *Handoff) IsActive() bool {
	return h.Status != StatusCompleted
}

// SuccessCount returns the number of success-outcome tried steps.
func (h *Handoff) SuccessCount() int {
	n := 0
	for _, t := range h.Tried {
		if t.Outcome == OutcomeSuccess {
			n++
		}
	}
	return n
}

var (
	handoffIDPattern = regexp.MustCompile(`^(?:[A-Z]\d{3}|hf-[0-9a-f]{7})$`)
	refPattern       = regexp.MustCompile(`^[^\s:]+:\d+(-\d+)?$`)
)

// ValidHandoffID reports whether s is a legacy A### or modern hf-<7hex> id.
func ValidHandoffID(s string) bool {
	return handoffIDPattern.MatchString(s)
}

// ValidRef reports whether s matches path:line or path:start-end.
func ValidRef(s string) bool {
	return refPattern.MatchString(s)
}

// NewHandoffID derives a hash id from the title and creation instant. Hash
// ids stay unique across concurrent agent sessions where a sequential
// counter would race.
func NewHandoffID(title string, now time.Time) string {
	seed := fmt.Sprintf("%s:%s", title, now.Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(seed))
	return "hf-" + hex.EncodeToString(sum[:])[:7]
}

// HandoffCompleteResult pairs a completed handoff with the lesson-mining
// prompt handed back to the caller.
type HandoffCompleteResult struct {
	Handoff          *Handoff
	ExtractionPrompt string
}

// ValidationResult is the outcome of resume-time codebase drift checks.
// Warnings do not invalidate; errors do.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// HandoffResumeResult packages a handoff with its resume validation.
type HandoffResumeResult struct {
	Handoff    *Handoff
	Validation ValidationResult
	Context    *HandoffContext
}

// Todo mirrors one entry of an external agent todo list, as received on the
// sync-todos wire.
type Todo struct {
	Content    string `json:"content"`
	Status     string `json:"status"`
	ActiveForm string `json:"activeForm,omitempty"`
}
