package handoffs

import (
	"fmt"

	"github.com/pbrown/claude-recall/internal/models"
	"github.com/pbrown/claude-recall/internal/util"
)

// SyncTodos reconciles an external todo list into a handoff, bridging the
// agent's ephemeral tracker with the persistent store: completed todos
// become success tried steps, the first in-progress todo becomes the
// checkpoint, and pending todos become the next-steps string. Targets the
// most recently updated active handoff, creating one from the first todo
// when none exists. Returns the handoff id, or "" when todos is empty.
func (s *Store) SyncTodos(todos []models.Todo) (string, error) {
	if len(todos) == 0 {
		return "", nil
	}

	var completed, inProgress, pending []models.Todo
	for _, t := range todos {
		switch t.Status {
		case "completed":
			completed = append(completed, t)
		case "in_progress":
			inProgress = append(inProgress, t)
		case "pending":
			pending = append(pending, t)
		}
	}

	active, err := s.List("", false)
	if err != nil {
		return "", err
	}

	var handoffID string
	if len(active) > 0 {
		target := active[0]
		for _, h := range active[1:] {
			if h.Updated.After(target.Updated) {
				target = h
			}
		}
		handoffID = target.ID
	} else {
		title := todos[0].Content
		if title == "" {
			title = "Work in progress"
		}
		handoffID, err = s.Add(util.Truncate(title, 50), "", nil, "", "")
		if err != nil {
			return "", err
		}
	}

	// Completed todos become tried steps, skipping exact-description repeats.
	existing := map[string]bool{}
	if handoff, err := s.Get(handoffID); err == nil && handoff != nil {
		for _, t := range handoff.Tried {
			existing[t.Description] = true
		}
	}
	for _, t := range completed {
		if t.Content != "" && !existing[t.Content] {
			if err := s.AddTried(handoffID, models.OutcomeSuccess, t.Content); err != nil {
				return "", err
			}
		}
	}

	if len(inProgress) > 0 {
		checkpoint := inProgress[0].Content
		if len(inProgress) > 1 {
			checkpoint += fmt.Sprintf(" (and %d more)", len(inProgress)-1)
		}
		if err := s.UpdateCheckpoint(handoffID, checkpoint); err != nil {
			return "", err
		}
	}

	if len(pending) > 0 {
		items := pending
		if len(items) > 5 {
			items = items[:5]
		}
		next := ""
		for i, t := range items {
			if i > 0 {
				next += "; "
			}
			next += t.Content
		}
		if len(pending) > 5 {
			next += fmt.Sprintf(" (and %d more)", len(pending)-5)
		}
		if err := s.UpdateNext(handoffID, next); err != nil {
			return "", err
		}
	}

	if len(inProgress) > 0 {
		if err := s.UpdateStatus(handoffID, models.StatusInProgress); err != nil {
			return "", err
		}
	} else if len(pending) > 0 && len(completed) == 0 {
		if err := s.UpdateStatus(handoffID, models.StatusNotStarted); err != nil {
			return "", err
		}
	}

	s.log.Mutation("sync_todos", handoffID, map[string]any{
		"completed":   len(completed),
		"in_progress": len(inProgress),
		"pending":     len(pending),
	})

	return handoffID, nil
}
