package handoffs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pbrown/claude-recall/internal/models"
)

// gitTimeout bounds the rev-parse call during resume validation; a slow or
// absent git skips the check rather than stalling the session.
const gitTimeout = 5 * time.Second

// isReady reports whether a handoff's dependency set is satisfied: no
// blockers, or every referenced blocker either no longer exists in the
// active set (deleted or archived, treated as completed) or is completed.
func isReady(h *models.Handoff, all []*models.Handoff) bool {
	if len(h.BlockedBy) == 0 {
		return true
	}
	byID := make(map[string]*models.Handoff, len(all))
	for _, other := range all {
		byID[other.ID] = other
	}
	for _, blockerID := range h.BlockedBy {
		blocker, exists := byID[blockerID]
		if !exists {
			continue
		}
		if blocker.Status != models.StatusCompleted {
			return false
		}
	}
	return true
}

// Ready lists the non-completed handoffs whose dependencies are satisfied,
// in-progress work first, then most recently updated.
func (s *Store) Ready() ([]*models.Handoff, error) {
	all, err := s.parseFile(s.activeFile())
	if err != nil {
		return nil, err
	}
	var ready []*models.Handoff
	for _, h := range all {
		if h.Status == models.StatusCompleted {
			continue
		}
		if isReady(h, all) {
			ready = append(ready, h)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		pi, pj := 1, 1
		if ready[i].Status == models.StatusInProgress {
			pi = 0
		}
		if ready[j].Status == models.StatusInProgress {
			pj = 0
		}
		if pi != pj {
			return pi < pj
		}
		return ready[i].Updated.After(ready[j].Updated)
	})
	return ready, nil
}

// Resume returns a handoff together with a validation of codebase drift
// since its context snapshot: a warning when HEAD moved from the recorded
// git ref, an error per critical file that no longer exists. Warnings leave
// the result valid; errors do not.
func (s *Store) Resume(id string) (models.HandoffResumeResult, error) {
	handoff, err := s.Get(id)
	if err != nil {
		return models.HandoffResumeResult{}, err
	}
	if handoff == nil {
		return models.HandoffResumeResult{}, &models.NotFoundError{Kind: "handoff", ID: id}
	}

	ctx := handoff.Context
	if ctx == nil {
		return models.HandoffResumeResult{
			Handoff:    handoff,
			Validation: models.ValidationResult{Valid: true},
		}, nil
	}

	var warnings, errors []string

	if ctx.GitRef != "" {
		if head, ok := s.currentHead(); ok && head != ctx.GitRef {
			warnings = append(warnings,
				"Codebase has changed since handoff (was "+abbrevRef(ctx.GitRef)+", now "+abbrevRef(head)+")")
		}
	}

	for _, fileRef := range ctx.CriticalFiles {
		path := fileRef
		if i := strings.Index(fileRef, ":"); i >= 0 {
			path = fileRef[:i]
		}
		if _, err := os.Stat(filepath.Join(s.cfg.ProjectRoot, path)); err != nil {
			errors = append(errors, "File no longer exists: "+path)
		}
	}

	return models.HandoffResumeResult{
		Handoff: handoff,
		Validation: models.ValidationResult{
			Valid:    len(errors) == 0,
			Warnings: warnings,
			Errors:   errors,
		},
		Context: ctx,
	}, nil
}

// currentHead returns the repository HEAD, or ok=false when git is absent,
// slow, or the directory is not a repository.
func (s *Store) currentHead() (string, bool) {
	cctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", "rev-parse", "HEAD")
	cmd.Dir = s.cfg.ProjectRoot
	out, err := cmd.Output()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}

func abbrevRef(ref string) string {
	if len(ref) > 7 {
		return ref[:7]
	}
	return ref
}
